package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultSweepEvery is how many chat requests pass between sweeps.
const DefaultSweepEvery = 5

// EvictCallback is called for every session a sweep removes.
type EvictCallback func(Eviction)

// Reaper sweeps the store opportunistically: every Nth observed chat request
// starts a sweep on its own goroutine. There is no timer, so eviction is best
// effort.
type Reaper struct {
	store    *Store
	every    int64
	onEvict  EvictCallback
	requests atomic.Int64
	sweeping atomic.Bool
	inFlight sync.WaitGroup
}

// NewReaper creates a reaper for store. every < 1 uses DefaultSweepEvery.
func NewReaper(store *Store, every int, onEvict EvictCallback) *Reaper {
	if every < 1 {
		every = DefaultSweepEvery
	}
	return &Reaper{store: store, every: int64(every), onEvict: onEvict}
}

// Observe counts one chat request and reports whether it scheduled a sweep.
// A sweep already in progress is not doubled up.
func (r *Reaper) Observe() bool {
	if r.requests.Add(1)%r.every != 0 {
		return false
	}
	if !r.sweeping.CompareAndSwap(false, true) {
		return false
	}

	r.inFlight.Add(1)
	go func() {
		defer r.inFlight.Done()
		defer r.sweeping.Store(false)
		r.SweepNow()
	}()
	return true
}

// SweepNow runs a sweep on the calling goroutine.
func (r *Reaper) SweepNow() []Eviction {
	evicted := r.store.Sweep()

	for _, ev := range evicted {
		slog.Info("Session reaper evicted session",
			"session_id", ev.SessionID,
			"reason", ev.Reason,
			"idle", ev.Idle,
			"agents", ev.Bindings,
			"turns", ev.Turns)
		if r.onEvict != nil {
			r.onEvict(ev)
		}
	}
	if len(evicted) > 0 {
		slog.Info("Session reaper sweep completed", "evicted", len(evicted))
	}
	return evicted
}

// Requests returns the number of observed chat requests.
func (r *Reaper) Requests() int64 { return r.requests.Load() }

// Wait blocks until background sweeps have finished.
func (r *Reaper) Wait() { r.inFlight.Wait() }

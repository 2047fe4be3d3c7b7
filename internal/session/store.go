// Package session tracks conversational sessions, their bound agents and
// their liveness.
//
// All state sits behind one mutex and no I/O or agent construction happens
// while it is held. Concurrent first requests for the same session and
// content type may each build an agent; the first one stored wins and the
// other is dropped. Timestamps are last-writer-wins.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/ashureev/mentor-relay/internal/agent"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Default eviction thresholds.
const (
	DefaultActivityTTL  = 30 * time.Minute
	DefaultHeartbeatTTL = 5 * time.Minute
)

// Turn is one transcript entry.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the state held for one session id.
type Session struct {
	ID            string
	Transcript    []Turn
	CreatedAt     time.Time
	LastActivity  time.Time
	LastHeartbeat time.Time

	// bindings is keyed by normalized content type; "" is the general agent.
	bindings map[string]agent.Capability
}

// activity falls back to CreatedAt for sessions that were never touched.
func (s *Session) activity() time.Time {
	if s.LastActivity.IsZero() {
		return s.CreatedAt
	}
	return s.LastActivity
}

// Factory builds a new agent for a normalized content type.
type Factory interface {
	New(contentType string) agent.Capability
}

// Reason explains why a session was evicted.
type Reason string

// Eviction reasons.
const (
	ReasonInactive         Reason = "inactive"
	ReasonHeartbeatExpired Reason = "heartbeat_expired"
	ReasonNoHeartbeat      Reason = "no_heartbeat"
)

// Eviction describes one session removed by Sweep.
type Eviction struct {
	SessionID string
	Reason    Reason
	Idle      time.Duration
	Bindings  int
	Turns     int
}

// Status is a point-in-time copy of a session for diagnostics.
type Status struct {
	ID            string
	CreatedAt     time.Time
	LastActivity  time.Time
	LastHeartbeat time.Time
	HistoryLength int
	BindingKeys   []string
}

// HasAgent reports whether the session holds at least one agent binding.
func (s Status) HasAgent() bool { return len(s.BindingKeys) > 0 }

// HasHeartbeat reports whether a heartbeat was ever recorded.
func (s Status) HasHeartbeat() bool { return !s.LastHeartbeat.IsZero() }

// Stats aggregates the store.
type Stats struct {
	Sessions    int
	WithHistory int
	Agents      int
	Heartbeats  int
	BindingKeys []string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTTLs overrides the eviction thresholds. Non-positive values keep the defaults.
func WithTTLs(activity, heartbeat time.Duration) Option {
	return func(s *Store) {
		if activity > 0 {
			s.activityTTL = activity
		}
		if heartbeat > 0 {
			s.heartbeatTTL = heartbeat
		}
	}
}

// Store is the in-memory session registry.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	factory      Factory
	activityTTL  time.Duration
	heartbeatTTL time.Duration
	now          func() time.Time
}

// NewStore creates an empty store that builds agents with factory.
func NewStore(factory Factory, opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*Session),
		factory:      factory,
		activityTTL:  DefaultActivityTTL,
		heartbeatTTL: DefaultHeartbeatTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindingKey is the diagnostic name of a (session, content type) binding:
// the bare id for the general agent, id_contentType otherwise.
func BindingKey(id, contentType string) string {
	ct := agent.NormalizeContentType(contentType)
	if ct == "" {
		return id
	}
	return id + "_" + ct
}

// GetOrCreate returns the agent bound to (id, contentType), creating the
// session and the agent on first use. created reports whether this call
// stored a new agent.
func (s *Store) GetOrCreate(id, contentType string) (agent.Capability, bool) {
	ct := agent.NormalizeContentType(contentType)

	s.mu.Lock()
	if c, ok := s.ensureLocked(id).bindings[ct]; ok {
		s.mu.Unlock()
		return c, false
	}
	s.mu.Unlock()

	fresh := s.factory.New(ct)

	s.mu.Lock()
	defer s.mu.Unlock()
	// The session may have been evicted while the agent was built; it is
	// recreated rather than resurrected.
	sess := s.ensureLocked(id)
	if c, ok := sess.bindings[ct]; ok {
		return c, false
	}
	sess.bindings[ct] = fresh
	return fresh, true
}

// Record appends one transcript entry. It reports false when the session
// does not exist.
func (s *Store) Record(id, role, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Transcript = append(sess.Transcript, Turn{Role: role, Text: text, At: s.now()})
	return true
}

// RecordTurn appends a user message and its answer together. Either both
// entries are stored or, when the session is gone, neither.
func (s *Store) RecordTurn(id, user, assistant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	now := s.now()
	sess.Transcript = append(sess.Transcript,
		Turn{Role: RoleUser, Text: user, At: now},
		Turn{Role: RoleAssistant, Text: assistant, At: now},
	)
	return true
}

// Touch marks the session active and alive, creating it if needed.
func (s *Store) Touch(id string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.ensureLocked(id)
	sess.LastActivity = now
	sess.LastHeartbeat = now
	return now
}

// Evict removes a session with its transcript and agents. It reports
// whether there was a conversation or an agent to clear.
func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	return len(sess.Transcript) > 0 || len(sess.bindings) > 0
}

// Sweep evicts every expired session in a single pass and returns what it
// removed.
func (s *Store) Sweep() []Eviction {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var evicted []Eviction
	for id, sess := range s.sessions {
		reason, idle, expired := s.expired(sess, now)
		if !expired {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, Eviction{
			SessionID: id,
			Reason:    reason,
			Idle:      idle,
			Bindings:  len(sess.bindings),
			Turns:     len(sess.Transcript),
		})
	}

	sort.Slice(evicted, func(i, j int) bool { return evicted[i].SessionID < evicted[j].SessionID })
	return evicted
}

// expired applies the eviction policy: activity older than the activity
// TTL, a heartbeat older than the heartbeat TTL, or, with no heartbeat ever
// seen, activity older than the heartbeat TTL.
func (s *Store) expired(sess *Session, now time.Time) (Reason, time.Duration, bool) {
	sinceActivity := now.Sub(sess.activity())
	if sinceActivity > s.activityTTL {
		return ReasonInactive, sinceActivity, true
	}
	if !sess.LastHeartbeat.IsZero() {
		if since := now.Sub(sess.LastHeartbeat); since > s.heartbeatTTL {
			return ReasonHeartbeatExpired, since, true
		}
		return "", 0, false
	}
	if sinceActivity > s.heartbeatTTL {
		return ReasonNoHeartbeat, sinceActivity, true
	}
	return "", 0, false
}

// Snapshot returns a copy of the session's state.
func (s *Store) Snapshot(id string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Status{ID: id}, false
	}
	return Status{
		ID:            id,
		CreatedAt:     sess.CreatedAt,
		LastActivity:  sess.LastActivity,
		LastHeartbeat: sess.LastHeartbeat,
		HistoryLength: len(sess.Transcript),
		BindingKeys:   bindingKeys(id, sess),
	}, true
}

// Transcript returns a copy of the session's transcript.
func (s *Store) Transcript(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]Turn(nil), sess.Transcript...)
}

// Stats summarises the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Sessions: len(s.sessions), BindingKeys: []string{}}
	for id, sess := range s.sessions {
		if len(sess.Transcript) > 0 {
			st.WithHistory++
		}
		if !sess.LastHeartbeat.IsZero() {
			st.Heartbeats++
		}
		st.Agents += len(sess.bindings)
		st.BindingKeys = append(st.BindingKeys, bindingKeys(id, sess)...)
	}
	sort.Strings(st.BindingKeys)
	return st
}

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// HeartbeatTTL returns the configured heartbeat threshold.
func (s *Store) HeartbeatTTL() time.Duration { return s.heartbeatTTL }

// ActivityTTL returns the configured activity threshold.
func (s *Store) ActivityTTL() time.Duration { return s.activityTTL }

func (s *Store) ensureLocked(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			ID:        id,
			CreatedAt: s.now(),
			bindings:  make(map[string]agent.Capability),
		}
		s.sessions[id] = sess
	}
	return sess
}

func bindingKeys(id string, sess *Session) []string {
	keys := make([]string, 0, len(sess.bindings))
	for ct := range sess.bindings {
		keys = append(keys, BindingKey(id, ct))
	}
	sort.Strings(keys)
	return keys
}

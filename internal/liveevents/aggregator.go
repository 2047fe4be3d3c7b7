// Package liveevents aggregates the catalog's paged live-events listing into
// a filtered, searchable, locally paginated list of upcoming events.
package liveevents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/mentor-relay/internal/catalog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPageSize is used when a query asks for fewer than one event per page.
	DefaultPageSize = 20
	// DefaultMaxPages caps how many upstream pages one listing walks.
	DefaultMaxPages = 10

	walkTimeout = 2 * time.Minute

	// StatusUpcoming is the only status an emitted event can have.
	StatusUpcoming = "upcoming"

	defaultLevel    = "All Levels"
	defaultTitle    = "Untitled Event"
	multipleSession = "Multiple sessions"
)

// Source is the catalog surface the aggregator reads from.
type Source interface {
	FirstLiveEventsURL(startAfter string) (string, error)
	LiveEventsPage(ctx context.Context, pageURL string) (*catalog.LiveEventsPage, error)
	CoverURL(path string) string
	WebURL() string
	HasToken() bool
}

// Event is the projection of one upcoming live event.
type Event struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CoverURL     string  `json:"coverUrl"`
	EventURL     string  `json:"eventUrl"`
	Duration     string  `json:"duration"`
	Status       string  `json:"status"`
	Level        string  `json:"level"`
	Instructor   *string `json:"instructor"`
	StartDate    *string `json:"startDate"`
	EndDate      *string `json:"endDate"`
	SessionCount int     `json:"sessionCount"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalPages  int  `json:"total_pages"`
	TotalEvents int  `json:"total_events"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// Query selects a page of the listing.
type Query struct {
	Page     int
	PageSize int
	Search   string
}

// Normalize applies the defaults for page and page size.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// Listing is one page of upcoming events.
type Listing struct {
	Events     []Event
	Pagination Pagination
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithMaxPages overrides the upstream page cap.
func WithMaxPages(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxPages = n
		}
	}
}

// Aggregator builds live-event listings. Every call re-reads upstream;
// concurrent calls for the same start date share one upstream walk.
type Aggregator struct {
	source   Source
	maxPages int
	now      func() time.Time
	walks    singleflight.Group
}

// NewAggregator creates an aggregator over source.
func NewAggregator(source Source, opts ...Option) *Aggregator {
	a := &Aggregator{source: source, maxPages: DefaultMaxPages, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// List fetches, filters, searches and paginates upcoming events. Upstream
// failures are returned as errors and never retried.
func (a *Aggregator) List(ctx context.Context, q Query) (*Listing, error) {
	if !a.source.HasToken() {
		return nil, catalog.ErrMissingToken
	}
	q = q.Normalize()
	now := a.now()

	raw, err := a.fetch(ctx, now)
	if err != nil {
		return nil, err
	}

	events := Search(a.project(raw, now), q.Search)
	page, pagination := Paginate(events, q.Page, q.PageSize)
	slog.Debug("Live events listed",
		"fetched", len(raw),
		"matching", len(events),
		"page", pagination.Page,
		"total_pages", pagination.TotalPages)
	return &Listing{Events: page, Pagination: pagination}, nil
}

// fetch joins or starts the walk for the start date. The walk runs detached
// from any single caller so one disconnect cannot fail the others; each caller
// still stops waiting when its own context ends.
func (a *Aggregator) fetch(ctx context.Context, now time.Time) ([]catalog.LiveEvent, error) {
	startAfter := now.UTC().AddDate(0, 0, 1).Format("2006-01-02")
	ch := a.walks.DoChan(startAfter, func() (any, error) {
		walkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), walkTimeout)
		defer cancel()
		return a.walk(walkCtx, startAfter)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]catalog.LiveEvent), nil
	}
}

// walk follows next links until the listing ends or maxPages is reached.
func (a *Aggregator) walk(ctx context.Context, startAfter string) ([]catalog.LiveEvent, error) {
	pageURL, err := a.source.FirstLiveEventsURL(startAfter)
	if err != nil {
		return nil, fmt.Errorf("live events url: %w", err)
	}

	var all []catalog.LiveEvent
	for n := 1; pageURL != "" && n <= a.maxPages; n++ {
		page, err := a.source.LiveEventsPage(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		pageURL = page.Next
	}
	return all, nil
}

// project keeps events that start strictly after now and shapes them for
// display. Events without a parsable start time are dropped.
func (a *Aggregator) project(raw []catalog.LiveEvent, now time.Time) []Event {
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		if item.StartDatetime == "" {
			continue
		}
		start, err := parseTime(item.StartDatetime)
		if err != nil {
			slog.Debug("Skipping live event with bad start time", "id", item.Identifier, "error", err)
			continue
		}
		if !start.After(now) {
			continue
		}

		ev := Event{
			ID:           item.Identifier,
			Title:        orDefault(item.Title, defaultTitle),
			Description:  describe(int(item.Sessions)),
			CoverURL:     a.source.CoverURL(item.Cover),
			EventURL:     a.eventURL(item.SeriesOURN),
			Duration:     multipleSession,
			Status:       StatusUpcoming,
			Level:        defaultLevel,
			StartDate:    strPtr(item.StartDatetime),
			SessionCount: int(item.Sessions),
		}
		if item.EndDatetime != "" {
			if end, err := parseTime(item.EndDatetime); err == nil {
				ev.EndDate = strPtr(item.EndDatetime)
				if d := end.Sub(start); d > 0 {
					ev.Duration = formatDuration(d)
				}
			}
		}
		events = append(events, ev)
	}
	return events
}

// eventURL links to the event's series page, identified by the last
// segment of its series OURN.
func (a *Aggregator) eventURL(seriesOURN string) string {
	base := a.source.WebURL() + "/live-events/"
	if seriesOURN == "" {
		return base
	}
	parts := strings.Split(seriesOURN, ":")
	return base + "-/" + parts[len(parts)-1] + "/"
}

// Search keeps events whose title, description or instructor contains term,
// ignoring case. A blank term keeps everything.
func Search(events []Event, term string) []Event {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return events
	}
	matched := make([]Event, 0, len(events))
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), term) ||
			strings.Contains(strings.ToLower(ev.Description), term) ||
			(ev.Instructor != nil && strings.Contains(strings.ToLower(*ev.Instructor), term)) {
			matched = append(matched, ev)
		}
	}
	return matched
}

// Paginate slices events for page (1-based) of pageSize. The page is clamped
// into [1, total pages], or 1 when there are none.
func Paginate(events []Event, page, pageSize int) ([]Event, Pagination) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	total := len(events)
	totalPages := (total + pageSize - 1) / pageSize

	page = min(max(page, 1), max(totalPages, 1))

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return append([]Event{}, events[start:end]...), Pagination{
		Page:        page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalEvents: total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func describe(sessions int) string {
	switch {
	case sessions == 1:
		return "Live training event with 1 session"
	case sessions > 1:
		return fmt.Sprintf("Live training event with %d sessions", sessions)
	default:
		return "Live training event"
	}
}

func formatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func strPtr(s string) *string { return &s }

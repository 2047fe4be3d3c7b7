package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// LiveEvent is a raw record from the live-events listing.
type LiveEvent struct {
	Identifier    string       `json:"identifier"`
	OURN          string       `json:"ourn"`
	SeriesOURN    string       `json:"series_ourn"`
	Title         string       `json:"title"`
	Cover         string       `json:"cover"`
	StartDatetime string       `json:"start_datetime"`
	EndDatetime   string       `json:"end_datetime"`
	Sessions      sessionCount `json:"sessions"`
}

// LiveEventsPage is one page of the listing. Next is empty on the last page.
type LiveEventsPage struct {
	Results []LiveEvent `json:"results"`
	Next    string      `json:"next"`
}

// FirstLiveEventsURL builds the first listing URL for events starting after
// startAfter (YYYY-MM-DD). Subsequent pages are reached through Next.
func (c *Client) FirstLiveEventsURL(startAfter string) (string, error) {
	params := url.Values{}
	params.Set("start_datetime_after", startAfter)
	params.Set("limit", strconv.Itoa(liveEventsPageSize))
	return withQuery(c.liveEventsURL, params)
}

// LiveEventsPage fetches a single listing page from pageURL.
func (c *Client) LiveEventsPage(ctx context.Context, pageURL string) (*LiveEventsPage, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	var page LiveEventsPage
	if err := c.getJSON(ctx, pageURL, &page); err != nil {
		return nil, fmt.Errorf("live events page: %w", err)
	}
	return &page, nil
}

// sessionCount decodes the sessions array as its length; any other shape counts as zero.
type sessionCount int

func (s *sessionCount) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = 0
		return nil
	}
	*s = sessionCount(len(raw))
	return nil
}

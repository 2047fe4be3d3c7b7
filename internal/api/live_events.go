package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/mentor-relay/internal/catalog"
	"github.com/ashureev/mentor-relay/internal/chat"
	"github.com/ashureev/mentor-relay/internal/liveevents"
)

type liveEventsResponse struct {
	Status     string                `json:"status"`
	Message    string                `json:"message,omitempty"`
	Events     []liveevents.Event    `json:"events"`
	Pagination liveevents.Pagination `json:"pagination"`
}

// LiveEvents handles GET /live-events.
func (h *Handler) LiveEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := liveevents.Query{Page: 1, PageSize: liveevents.DefaultPageSize, Search: query.Get("search")}

	var err error
	if q.Page, err = intParam(query.Get("page"), q.Page); err != nil {
		h.liveEventsError(w, http.StatusBadRequest, q, "page must be an integer")
		return
	}
	if q.PageSize, err = intParam(query.Get("page_size"), q.PageSize); err != nil {
		h.liveEventsError(w, http.StatusBadRequest, q, "page_size must be an integer")
		return
	}
	q = q.Normalize()

	listing, err := h.events.List(r.Context(), q)
	if err != nil {
		slog.Error("Failed to list live events", "error", err)
		h.liveEventsError(w, http.StatusOK, q, liveEventsMessage(err))
		return
	}

	JSON(w, http.StatusOK, liveEventsResponse{
		Status:     chat.StatusSuccess,
		Events:     listing.Events,
		Pagination: listing.Pagination,
	})
}

func (h *Handler) liveEventsError(w http.ResponseWriter, status int, q liveevents.Query, message string) {
	q = q.Normalize()
	JSON(w, status, liveEventsResponse{
		Status:     chat.StatusError,
		Message:    message,
		Events:     []liveevents.Event{},
		Pagination: liveevents.Pagination{Page: q.Page, PageSize: q.PageSize},
	})
}

func liveEventsMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnauthorized):
		return "Authentication failed"
	case errors.Is(err, catalog.ErrMissingToken):
		return "Catalog API token is not configured"
	default:
		return err.Error()
	}
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

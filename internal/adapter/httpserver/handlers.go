// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the two client-facing endpoints spec.md describes: GET
// /feed/{user_id}, which serves a ranked page of post IDs, and POST
// /events, which accepts a batch of client interaction events for
// asynchronous ingest. The package keeps HTTP concerns (decoding,
// validation, status mapping) separate from the ranking and events
// packages that hold the actual logic.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feedpipeline/feedsvc/internal/adapter/eventsingest"
	"github.com/feedpipeline/feedsvc/internal/config"
	"github.com/feedpipeline/feedsvc/internal/domain"
	"github.com/feedpipeline/feedsvc/internal/ranking"
)

const maxEventsBatchBytes = 1 << 20 // 1MB
const maxEventsBatchSize = 100

const defaultFeedLimit = 20

// Server aggregates handler dependencies.
type Server struct {
	Cfg            config.Config
	Ranking        *ranking.Service
	EventsProducer *eventsingest.Producer
	OLAPCheck      func(ctx context.Context) error
	OLTPCheck      func(ctx context.Context) error
	RedisCheck     func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, rankingSvc *ranking.Service, eventsProducer *eventsingest.Producer, olapCheck, oltpCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:            cfg,
		Ranking:        rankingSvc,
		EventsProducer: eventsProducer,
		OLAPCheck:      olapCheck,
		OLTPCheck:      oltpCheck,
		RedisCheck:     redisCheck,
	}
}

type feedResponse struct {
	PostIDs    []string `json:"post_ids"`
	HasMore    bool     `json:"has_more"`
	TotalCount int      `json:"total_count"`
	Source     string   `json:"source"`
}

// FeedHandler serves GET /feed/{user_id}. Per spec.md §7, this endpoint
// never returns 5xx for a well-formed request: every internal failure is
// absorbed by ranking.Service and surfaces as a 200 with a degraded
// source tag instead.
func (s *Server) FeedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if res := ValidateUserID(userID); !res.Valid {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "invalid user_id", Details: res.Errors,
			}})
			return
		}

		limitStr := r.URL.Query().Get("limit")
		offsetStr := r.URL.Query().Get("offset")
		if res := ValidatePagination(limitStr, offsetStr); !res.Valid {
			writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
				Code: "INVALID_ARGUMENT", Message: "invalid pagination", Details: res.Errors,
			}})
			return
		}

		limit := defaultFeedLimit
		if limitStr != "" {
			limit, _ = strconv.Atoi(limitStr)
		}
		offset := 0
		if offsetStr != "" {
			offset, _ = strconv.Atoi(offsetStr)
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.Cfg.FeedRequestDeadline)
		defer cancel()

		page, err := s.Ranking.GetFeed(ctx, userID, limit, offset)
		if err != nil {
			// GetFeed degrades internally on every dependency failure and
			// returns a nil error on every path; this branch is only a
			// safety net.
			writeError(w, r, err, nil)
			return
		}

		writeJSON(w, http.StatusOK, feedResponse{
			PostIDs:    page.PostIDs,
			HasMore:    page.HasMore,
			TotalCount: page.TotalCount,
			Source:     string(page.Source),
		})
	}
}

type eventBatchRequest struct {
	Events []eventsingest.EventRequest `json:"events"`
}

type eventResult struct {
	EventID string `json:"event_id,omitempty"`
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// EventsHandler serves POST /events: a batch of client interaction
// events, each validated and published independently so one malformed
// event does not fail its siblings.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxEventsBatchBytes)

		var req eventBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if len(req.Events) == 0 {
			writeError(w, r, fmt.Errorf("%w: events must be a non-empty array", domain.ErrInvalidArgument), nil)
			return
		}
		if len(req.Events) > maxEventsBatchSize {
			writeError(w, r, fmt.Errorf("%w: batch exceeds %d events", domain.ErrInvalidArgument, maxEventsBatchSize), nil)
			return
		}

		ctx := r.Context()
		results := make([]eventResult, len(req.Events))
		accepted := 0
		for i, raw := range req.Events {
			ev, err := eventsingest.Validate(raw)
			if err != nil {
				results[i] = eventResult{Index: i, Status: "rejected", Error: err.Error()}
				continue
			}
			if err := s.EventsProducer.Publish(ctx, ev); err != nil {
				results[i] = eventResult{Index: i, EventID: ev.EventID, Status: "rejected", Error: err.Error()}
				continue
			}
			results[i] = eventResult{Index: i, EventID: ev.EventID, Status: "accepted"}
			accepted++
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted": accepted,
			"rejected": len(req.Events) - accepted,
			"results":  results,
		})
	}
}

// ReadyzHandler returns a readiness handler that probes the OLAP pool,
// the OLTP pool, and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make([]check, 0, 3)
		run := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: name, OK: true})
			}
		}
		run("olap", s.OLAPCheck)
		run("oltp", s.OLTPCheck)
		run("redis", s.RedisCheck)

		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// HealthzHandler returns a trivial liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

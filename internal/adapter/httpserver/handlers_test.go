package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	httpserver "github.com/feedpipeline/feedsvc/internal/adapter/httpserver"
	"github.com/feedpipeline/feedsvc/internal/config"
	"github.com/go-chi/chi/v5"
)

func newTestServer(cfg config.Config) *httpserver.Server {
	return httpserver.NewServer(cfg, nil, nil, nil, nil, nil)
}

func TestFeedHandler_RejectsInvalidUserID(t *testing.T) {
	s := newTestServer(config.Config{})
	r := chi.NewRouter()
	r.Get("/feed/{user_id}", s.FeedHandler())

	req := httptest.NewRequest("GET", "/feed/bad@user", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != 400 {
		t.Fatalf("want 400, got %d", rw.Result().StatusCode)
	}
}

func TestFeedHandler_RejectsInvalidPagination(t *testing.T) {
	s := newTestServer(config.Config{})
	r := chi.NewRouter()
	r.Get("/feed/{user_id}", s.FeedHandler())

	req := httptest.NewRequest("GET", "/feed/user1?limit=9999", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != 400 {
		t.Fatalf("want 400, got %d", rw.Result().StatusCode)
	}
}

func TestEventsHandler_RejectsInvalidJSON(t *testing.T) {
	s := newTestServer(config.Config{})
	req := httptest.NewRequest("POST", "/events", bytes.NewBufferString("not json"))
	rw := httptest.NewRecorder()
	s.EventsHandler()(rw, req)

	if rw.Result().StatusCode != 400 {
		t.Fatalf("want 400, got %d", rw.Result().StatusCode)
	}
}

func TestEventsHandler_RejectsEmptyBatch(t *testing.T) {
	s := newTestServer(config.Config{})
	body, _ := json.Marshal(map[string]any{"events": []any{}})
	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	s.EventsHandler()(rw, req)

	if rw.Result().StatusCode != 400 {
		t.Fatalf("want 400, got %d", rw.Result().StatusCode)
	}
}

func TestEventsHandler_RejectsMalformedEventWithoutFailingBatch(t *testing.T) {
	s := newTestServer(config.Config{})
	body, _ := json.Marshal(map[string]any{
		"events": []map[string]any{
			{"user_id": "u1", "post_id": "p1", "action": "not-a-real-action"},
		},
	})
	req := httptest.NewRequest("POST", "/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	s.EventsHandler()(rw, req)

	if rw.Result().StatusCode != 202 {
		t.Fatalf("want 202 even when every event is rejected, got %d", rw.Result().StatusCode)
	}
	var resp map[string]any
	if err := json.NewDecoder(rw.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["accepted"].(float64) != 0 {
		t.Fatalf("want 0 accepted, got %v", resp["accepted"])
	}
}

func TestReadyzHandler_AllOK(t *testing.T) {
	s := httpserver.NewServer(config.Config{}, nil, nil,
		func(_ context.Context) error { return nil },
		func(_ context.Context) error { return nil },
		func(_ context.Context) error { return nil },
	)
	rw := httptest.NewRecorder()
	s.ReadyzHandler()(rw, httptest.NewRequest("GET", "/readyz", nil))
	if rw.Result().StatusCode != 200 {
		t.Fatalf("want 200, got %d", rw.Result().StatusCode)
	}
}

func TestReadyzHandler_DegradedWhenOneCheckFails(t *testing.T) {
	s := httpserver.NewServer(config.Config{}, nil, nil,
		func(_ context.Context) error { return nil },
		func(_ context.Context) error { return errFake },
		func(_ context.Context) error { return nil },
	)
	rw := httptest.NewRecorder()
	s.ReadyzHandler()(rw, httptest.NewRequest("GET", "/readyz", nil))
	if rw.Result().StatusCode != 503 {
		t.Fatalf("want 503, got %d", rw.Result().StatusCode)
	}
}

var errFake = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "dependency down" }

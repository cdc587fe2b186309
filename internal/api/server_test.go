package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"Aegis-Engine/internal/config"
	"Aegis-Engine/internal/engine"
	"Aegis-Engine/internal/eventbus"
	"Aegis-Engine/internal/journal"
)

func testServer() *Server {
	eng := engine.New(&config.Config{}, nil, nil, nil)
	return NewServer(":0", eng, journal.NewMemoryStore(10), eventbus.NewMemoryBus(10))
}

func TestHandleEngineStatus(t *testing.T) {
	server := testServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/engine/status", nil)
	rec := httptest.NewRecorder()
	server.handleEngineStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var got engine.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Running || got.Initialized {
		t.Fatalf("fresh engine must be idle: %+v", got)
	}
}

func TestHandleEngineStatusRejectsPost(t *testing.T) {
	server := testServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/status", nil)
	rec := httptest.NewRecorder()
	server.handleEngineStatus(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleJournal(t *testing.T) {
	server := testServer()
	for i := 0; i < 3; i++ {
		record := journal.Record{ID: "r", AgentID: uint64(i), Strategy: "trading"}
		if err := server.journal.Append(context.Background(), record); err != nil {
			t.Fatalf("append record: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/journal?limit=2", nil)
	rec := httptest.NewRecorder()
	server.handleJournal(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var got []journal.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 || got[0].AgentID != 2 {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestHandleEvents(t *testing.T) {
	server := testServer()
	event := eventbus.Event{Type: eventbus.TypeExecution, AgentID: 7}
	if err := server.events.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	server.handleEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var got []eventbus.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].AgentID != 7 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestHandleAgentScopedErrors(t *testing.T) {
	server := testServer()

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/abc", nil)
		rec := httptest.NewRecorder()
		server.handleAgentScoped(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("unknown agent stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/42", nil)
		rec := httptest.NewRecorder()
		server.handleAgentScoped(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("unknown agent risk", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/42/risk", nil)
		rec := httptest.NewRecorder()
		server.handleAgentScoped(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("unknown agent removal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/agents/42", nil)
		rec := httptest.NewRecorder()
		server.handleAgentScoped(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

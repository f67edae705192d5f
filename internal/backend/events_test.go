package backend_test

import (
	"testing"

	"github.com/p-n-ai/pai-lessons/internal/backend"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := backend.NewMemoryEventLogger()

	err := logger.LogEvent(t.Context(), backend.Event{
		UserID:    "user-1",
		LessonID:  "lesson-1",
		EventType: backend.EventResponseSaved,
		Data: map[string]any{
			"kind": "poll",
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != backend.EventResponseSaved {
		t.Errorf("EventType = %q, want %s", events[0].EventType, backend.EventResponseSaved)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := backend.NewMemoryEventLogger()
	if err := logger.LogEvent(t.Context(), backend.Event{UserID: "u"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := backend.NewPostgresEventLogger(nil)

	err := logger.LogEvent(t.Context(), backend.Event{
		UserID:    "user-1",
		EventType: backend.EventResponseSaved,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestClient_SaveResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/responses/quiz-question" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["lesson_id"] != "lesson-1" {
			t.Errorf("lesson_id = %v, want lesson-1", body["lesson_id"])
		}
		if body["associated_activity"] != "q1" {
			t.Errorf("associated_activity = %v, want q1", body["associated_activity"])
		}
		if body["time_spent"] != float64(5) {
			t.Errorf("time_spent = %v, want 5", body["time_spent"])
		}
		if body["id"] != nil {
			t.Errorf("id = %v, want null", body["id"])
		}

		w.Write([]byte(`{"data":{"id":"srv-1","associated_activity":"q1","partial_response":false,"time_spent":5,"attempts_left":1,"selected_choices":["a"]}}`))
	}))
	defer server.Close()

	client := NewClient(staticToken("tok-1"), WithBaseURL(server.URL))

	saved, err := client.SaveResponse(context.Background(), responses.KindQuizQuestion, "lesson-1", responses.Record{
		AssociatedActivity: "q1",
		TimeSpent:          5,
		Payload:            responses.QuizQuestionPayload{SelectedChoices: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}
	if saved.ID == nil || *saved.ID != "srv-1" {
		t.Errorf("ID = %v, want srv-1", saved.ID)
	}
	if saved.AttemptsLeft != 1 {
		t.Errorf("AttemptsLeft = %d, want 1", saved.AttemptsLeft)
	}
	if got := saved.Payload.(responses.QuizQuestionPayload).SelectedChoices; len(got) != 1 || got[0] != "a" {
		t.Errorf("SelectedChoices = %v, want [a]", got)
	}
}

func TestClient_SaveResponse_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"down"}`))
	}))
	defer server.Close()

	client := NewClient(staticToken("tok"), WithBaseURL(server.URL))
	_, err := client.SaveResponse(context.Background(), responses.KindPoll, "l", responses.NewRecord("p1", responses.PollPayload{}))

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
}

func TestClient_SaveResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"no data", `{"message":"ok"}`},
		{"null data", `{"data":null}`},
		{"missing activity", `{"data":{"id":"x","selected_choice":"a"}}`},
		{"wrong type", `{"data":{"associated_activity":"p1","selected_choice":42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(staticToken("tok"), WithBaseURL(server.URL))
			_, err := client.SaveResponse(context.Background(), responses.KindPoll, "l", responses.NewRecord("p1", responses.PollPayload{}))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestClient_ListResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/responses/video" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("lesson_id") != "lesson 1" {
			t.Errorf("lesson_id = %q, want 'lesson 1'", r.URL.Query().Get("lesson_id"))
		}
		w.Write([]byte(`{"data":[{"id":"a","associated_activity":"v1","time_spent":10,"watched_percentage":50},{"id":"b","associated_activity":"v2","time_spent":3,"watched_percentage":100}]}`))
	}))
	defer server.Close()

	client := NewClient(staticToken("tok"), WithBaseURL(server.URL))
	list, err := client.ListResponses(context.Background(), responses.KindVideo, "lesson 1")
	if err != nil {
		t.Fatalf("ListResponses() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if got := list[1].Payload.(responses.VideoPayload).WatchedPercentage; got != 100 {
		t.Errorf("WatchedPercentage = %v, want 100", got)
	}
}

func TestClient_EndSession(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(staticToken("tok-9"), WithBaseURL(server.URL))
	if err := client.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/sessions" {
		t.Errorf("request = %s %s, want DELETE /sessions", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok-9" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClient_NoTokenOmitsHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("Authorization = %q, want none", h)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(staticToken(""), WithBaseURL(server.URL))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestClient_ImplementsBackend(t *testing.T) {
	var _ responses.Backend = NewClient(nil)
}

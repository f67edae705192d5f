package responses_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

func TestRecord_MarshalJSON_Flat(t *testing.T) {
	r := responses.Record{
		AssociatedActivity: "q1",
		PartialResponse:    true,
		TimeSpent:          5,
		AttemptsLeft:       2,
		Payload:            responses.QuizQuestionPayload{SelectedChoices: []string{"a", "c"}},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if fields["id"] != nil {
		t.Errorf("id = %v, want null", fields["id"])
	}
	if fields["associated_activity"] != "q1" {
		t.Errorf("associated_activity = %v, want q1", fields["associated_activity"])
	}
	if fields["time_spent"] != float64(5) {
		t.Errorf("time_spent = %v, want 5", fields["time_spent"])
	}
	choices, ok := fields["selected_choices"].([]any)
	if !ok || len(choices) != 2 {
		t.Errorf("selected_choices = %v, want two entries at top level", fields["selected_choices"])
	}
}

func TestDecodeRecord(t *testing.T) {
	data := []byte(`{"id":"srv-1","associated_activity":"v1","partial_response":false,"time_spent":42,"attempts_left":0,"watched_percentage":87.5,"last_position":120}`)

	r, err := responses.DecodeRecord(responses.KindVideo, data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if r.ID == nil || *r.ID != "srv-1" {
		t.Errorf("ID = %v, want srv-1", r.ID)
	}
	if r.TimeSpent != 42 {
		t.Errorf("TimeSpent = %d, want 42", r.TimeSpent)
	}
	video, ok := r.Payload.(responses.VideoPayload)
	if !ok {
		t.Fatalf("Payload = %T, want VideoPayload", r.Payload)
	}
	if video.WatchedPercentage != 87.5 || video.LastPosition != 120 {
		t.Errorf("video = %+v", video)
	}
}

func TestDecodeRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		kind responses.Kind
		data string
		want error
	}{
		{"unknown kind", "essay", `{"associated_activity":"x"}`, responses.ErrUnknownKind},
		{"missing activity", responses.KindPoll, `{"selected_choice":"a"}`, responses.ErrMalformedRecord},
		{"not json", responses.KindPoll, `nope`, responses.ErrMalformedRecord},
		{"wrong field type", responses.KindPoll, `{"associated_activity":"p","selected_choice":3}`, responses.ErrMalformedRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := responses.DecodeRecord(tt.kind, []byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeRecord() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecord_RoundTripEveryKind(t *testing.T) {
	for _, kind := range responses.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			payload, err := responses.NewPayload(kind)
			if err != nil {
				t.Fatalf("NewPayload() error = %v", err)
			}
			data, err := json.Marshal(responses.NewRecord("a1", payload))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := responses.DecodeRecord(kind, data)
			if err != nil {
				t.Fatalf("DecodeRecord() error = %v", err)
			}
			if got.Kind() != kind {
				t.Errorf("Kind() = %q, want %q", got.Kind(), kind)
			}
			if !got.PartialResponse {
				t.Error("seed record should be partial")
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	if _, err := responses.ParseKind("quiz-question"); err != nil {
		t.Errorf("ParseKind(quiz-question) error = %v", err)
	}
	if _, err := responses.ParseKind("quiz_question"); !errors.Is(err, responses.ErrUnknownKind) {
		t.Errorf("ParseKind(quiz_question) error = %v, want ErrUnknownKind", err)
	}
}

func TestRecord_Clone(t *testing.T) {
	correct := true
	r := responses.Record{
		ID:                 responses.StringID("srv-1"),
		AssociatedActivity: "q1",
		Payload:            responses.QuizQuestionPayload{SelectedChoices: []string{"a"}, Correct: &correct},
	}

	c := r.Clone()
	*c.ID = "changed"
	c.Payload.(responses.QuizQuestionPayload).SelectedChoices[0] = "z"
	*c.Payload.(responses.QuizQuestionPayload).Correct = false

	if *r.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", *r.ID)
	}
	orig := r.Payload.(responses.QuizQuestionPayload)
	if orig.SelectedChoices[0] != "a" || !*orig.Correct {
		t.Errorf("original payload mutated: %+v", orig)
	}
}

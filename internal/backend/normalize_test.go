package backend

import (
	"testing"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

func TestNormalize(t *testing.T) {
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	tests := []struct {
		name    string
		payload responses.Payload
		check   func(t *testing.T, p responses.Payload)
	}{
		{"writing", responses.WritingPayload{Submission: decomposed}, func(t *testing.T, p responses.Payload) {
			if got := p.(responses.WritingPayload).Submission; got != composed {
				t.Errorf("Submission = %q, want %q", got, composed)
			}
		}},
		{"poll", responses.PollPayload{SelectedChoice: decomposed}, func(t *testing.T, p responses.Payload) {
			if got := p.(responses.PollPayload).SelectedChoice; got != composed {
				t.Errorf("SelectedChoice = %q", got)
			}
		}},
		{"fill in blank", responses.FillInBlankPayload{Answers: []string{decomposed, "x"}}, func(t *testing.T, p responses.Payload) {
			got := p.(responses.FillInBlankPayload).Answers
			if got[0] != composed || got[1] != "x" {
				t.Errorf("Answers = %q", got)
			}
		}},
		{"quiz question", responses.QuizQuestionPayload{SelectedChoices: []string{decomposed}}, func(t *testing.T, p responses.Payload) {
			if got := p.(responses.QuizQuestionPayload).SelectedChoices[0]; got != composed {
				t.Errorf("SelectedChoices[0] = %q", got)
			}
		}},
		{"matching", responses.MatchingPayload{Matches: map[string]string{decomposed: decomposed}}, func(t *testing.T, p responses.Payload) {
			if got := p.(responses.MatchingPayload).Matches[composed]; got != composed {
				t.Errorf("Matches = %q", p.(responses.MatchingPayload).Matches)
			}
		}},
		{"video untouched", responses.VideoPayload{WatchedPercentage: 50}, func(t *testing.T, p responses.Payload) {
			if got := p.(responses.VideoPayload).WatchedPercentage; got != 50 {
				t.Errorf("WatchedPercentage = %v", got)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := normalize(responses.NewRecord("a1", tt.payload))
			tt.check(t, r.Payload)
		})
	}
}

func TestNormalize_DoesNotAliasInput(t *testing.T) {
	in := responses.FillInBlankPayload{Answers: []string{"cafe\u0301"}}
	normalize(responses.NewRecord("a1", in))
	if in.Answers[0] != "cafe\u0301" {
		t.Errorf("input mutated to %q", in.Answers[0])
	}
}

package responses

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Payload is the kind-specific part of a response record. The set of
// implementations is closed: one struct per Kind.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// QuizPayload is the parent record of a quiz; individual questions are
// tracked separately as QuizQuestionPayload.
type QuizPayload struct {
	Score             float64 `json:"score"`
	QuestionsAnswered int     `json:"questions_answered"`
}

func (QuizPayload) Kind() Kind       { return KindQuiz }
func (p QuizPayload) clone() Payload { return p }

// QuizQuestionPayload is one question inside a quiz.
type QuizQuestionPayload struct {
	SelectedChoices []string `json:"selected_choices"`
	Correct         *bool    `json:"correct,omitempty"`
}

func (QuizQuestionPayload) Kind() Kind { return KindQuizQuestion }
func (p QuizQuestionPayload) clone() Payload {
	p.SelectedChoices = slices.Clone(p.SelectedChoices)
	if p.Correct != nil {
		c := *p.Correct
		p.Correct = &c
	}
	return p
}

type PollPayload struct {
	SelectedChoice string `json:"selected_choice"`
}

func (PollPayload) Kind() Kind       { return KindPoll }
func (p PollPayload) clone() Payload { return p }

type WritingPayload struct {
	Submission string `json:"submission"`
}

func (WritingPayload) Kind() Kind       { return KindWriting }
func (p WritingPayload) clone() Payload { return p }

// VideoPayload positions are in seconds.
type VideoPayload struct {
	WatchedPercentage float64 `json:"watched_percentage"`
	LastPosition      float64 `json:"last_position"`
}

func (VideoPayload) Kind() Kind       { return KindVideo }
func (p VideoPayload) clone() Payload { return p }

// MatchingPayload maps a dragged item id to the target id it was dropped on.
type MatchingPayload struct {
	Matches map[string]string `json:"matches"`
}

func (MatchingPayload) Kind() Kind { return KindMatching }
func (p MatchingPayload) clone() Payload {
	p.Matches = maps.Clone(p.Matches)
	return p
}

// FillInBlankPayload holds one answer per blank, in blank order.
type FillInBlankPayload struct {
	Answers []string `json:"answers"`
}

func (FillInBlankPayload) Kind() Kind { return KindFillInBlank }
func (p FillInBlankPayload) clone() Payload {
	p.Answers = slices.Clone(p.Answers)
	return p
}

type TextToSpeechPayload struct {
	Played bool `json:"played"`
}

func (TextToSpeechPayload) Kind() Kind       { return KindTextToSpeech }
func (p TextToSpeechPayload) clone() Payload { return p }

// NewPayload returns the zero payload for kind.
func NewPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindQuiz:
		return QuizPayload{}, nil
	case KindQuizQuestion:
		return QuizQuestionPayload{SelectedChoices: []string{}}, nil
	case KindPoll:
		return PollPayload{}, nil
	case KindWriting:
		return WritingPayload{}, nil
	case KindVideo:
		return VideoPayload{}, nil
	case KindMatching:
		return MatchingPayload{Matches: map[string]string{}}, nil
	case KindFillInBlank:
		return FillInBlankPayload{Answers: []string{}}, nil
	case KindTextToSpeech:
		return TextToSpeechPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// DecodePayload reads the kind-specific fields of data. Fields belonging to
// other kinds or to the record base are ignored.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindQuiz:
		return decodeInto[QuizPayload](data)
	case KindQuizQuestion:
		return decodeInto[QuizQuestionPayload](data)
	case KindPoll:
		return decodeInto[PollPayload](data)
	case KindWriting:
		return decodeInto[WritingPayload](data)
	case KindVideo:
		return decodeInto[VideoPayload](data)
	case KindMatching:
		return decodeInto[MatchingPayload](data)
	case KindFillInBlank:
		return decodeInto[FillInBlankPayload](data)
	case KindTextToSpeech:
		return decodeInto[TextToSpeechPayload](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeInto[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.Kind(), err)
	}
	return p, nil
}

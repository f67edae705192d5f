// Package responses tracks learner responses to lesson activities: one shared
// "current response" slot, the per-kind lists of responses the backend has
// confirmed, time accounting, and the save path that reconciles the two.
package responses

import "fmt"

// Kind is the closed set of activity categories. The string value doubles as
// the backend endpoint segment (POST /responses/{kind}).
type Kind string

const (
	KindQuiz         Kind = "quiz"
	KindQuizQuestion Kind = "quiz-question"
	KindPoll         Kind = "poll"
	KindWriting      Kind = "writing"
	KindVideo        Kind = "video"
	KindMatching     Kind = "matching"
	KindFillInBlank  Kind = "fill-in-blank"
	KindTextToSpeech Kind = "text-to-speech"
)

var allKinds = []Kind{
	KindQuiz,
	KindQuizQuestion,
	KindPoll,
	KindWriting,
	KindVideo,
	KindMatching,
	KindFillInBlank,
	KindTextToSpeech,
}

// Kinds returns every known activity kind in a stable order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind converts an endpoint segment or config value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

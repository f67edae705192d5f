package backend

import (
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

// normalize rewrites the free text of a record in NFC so that equal answers
// typed on different keyboards compare equal.
func normalize(r responses.Record) responses.Record {
	switch p := r.Payload.(type) {
	case responses.WritingPayload:
		p.Submission = norm.NFC.String(p.Submission)
		r.Payload = p
	case responses.PollPayload:
		p.SelectedChoice = norm.NFC.String(p.SelectedChoice)
		r.Payload = p
	case responses.FillInBlankPayload:
		p.Answers = nfcAll(p.Answers)
		r.Payload = p
	case responses.QuizQuestionPayload:
		p.SelectedChoices = nfcAll(p.SelectedChoices)
		r.Payload = p
	case responses.MatchingPayload:
		if p.Matches != nil {
			m := make(map[string]string, len(p.Matches))
			for k, v := range p.Matches {
				m[norm.NFC.String(k)] = norm.NFC.String(v)
			}
			p.Matches = m
		}
		r.Payload = p
	}
	return r
}

func nfcAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = norm.NFC.String(s)
	}
	return out
}

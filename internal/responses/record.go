package responses

import (
	"encoding/json"
	"fmt"
)

// Record is one learner's answer state for one activity instance.
//
// On the wire it is a single flat JSON object: the base fields below plus the
// payload's own fields.
type Record struct {
	// ID is nil until the backend has persisted the record.
	ID                 *string
	AssociatedActivity string
	// PartialResponse is true while the activity is not yet complete.
	PartialResponse bool
	// TimeSpent is the aggregate number of seconds, never a delta.
	TimeSpent    int
	AttemptsLeft int
	Payload      Payload
}

type recordBase struct {
	ID                 *string `json:"id"`
	AssociatedActivity string  `json:"associated_activity"`
	PartialResponse    bool    `json:"partial_response"`
	TimeSpent          int     `json:"time_spent"`
	AttemptsLeft       int     `json:"attempts_left"`
}

// NewRecord builds the seed record for an activity that has never been saved.
func NewRecord(activityID string, payload Payload) Record {
	return Record{
		AssociatedActivity: activityID,
		PartialResponse:    true,
		Payload:            payload,
	}
}

// Kind returns the kind of the record's payload, or "" when it has none.
func (r Record) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// Saved reports whether the backend has assigned an id.
func (r Record) Saved() bool {
	return r.ID != nil
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r.ID != nil {
		id := *r.ID
		r.ID = &id
	}
	if r.Payload != nil {
		r.Payload = r.Payload.clone()
	}
	return r
}

// MarshalJSON flattens the base fields and the payload into one object.
// Base fields win on a name clash.
func (r Record) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if r.Payload != nil {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("flatten payload: %w", err)
		}
	}

	base, err := json.Marshal(recordBase{
		ID:                 r.ID,
		AssociatedActivity: r.AssociatedActivity,
		PartialResponse:    r.PartialResponse,
		TimeSpent:          r.TimeSpent,
		AttemptsLeft:       r.AttemptsLeft,
	})
	if err != nil {
		return nil, err
	}
	var baseFields map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseFields); err != nil {
		return nil, err
	}
	for k, v := range baseFields {
		fields[k] = v
	}

	return json.Marshal(fields)
}

// DecodeRecord parses a flat JSON record of the given kind.
func DecodeRecord(kind Kind, data []byte) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var base recordBase
	if err := json.Unmarshal(data, &base); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if base.AssociatedActivity == "" {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedRecord, ErrMissingActivity)
	}

	payload, err := DecodePayload(kind, data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	return Record{
		ID:                 base.ID,
		AssociatedActivity: base.AssociatedActivity,
		PartialResponse:    base.PartialResponse,
		TimeSpent:          base.TimeSpent,
		AttemptsLeft:       base.AttemptsLeft,
		Payload:            payload,
	}, nil
}

// Override adjusts a record before it is seeded or saved.
type Override func(*Record)

// WithPartialResponse sets PartialResponse.
func WithPartialResponse(partial bool) Override {
	return func(r *Record) {
		r.PartialResponse = partial
	}
}

// WithAttemptsLeft sets AttemptsLeft.
func WithAttemptsLeft(n int) Override {
	return func(r *Record) {
		r.AttemptsLeft = n
	}
}

// WithTimeSpent sets TimeSpent.
func WithTimeSpent(seconds int) Override {
	return func(r *Record) {
		r.TimeSpent = seconds
	}
}

// WithPayload replaces the payload.
func WithPayload(p Payload) Override {
	return func(r *Record) {
		r.Payload = p
	}
}

func applyOverrides(r Record, overrides []Override) Record {
	for _, o := range overrides {
		if o != nil {
			o(&r)
		}
	}
	return r
}

// StringID is a convenience for building record ids in literals.
func StringID(id string) *string {
	return &id
}

package responses

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backend persists a response and returns the authoritative record.
type Backend interface {
	SaveResponse(ctx context.Context, kind Kind, lessonID string, r Record) (Record, error)
}

// SaveRequest is one explicit save.
type SaveRequest struct {
	Kind      Kind
	Response  Record
	TrackTime bool
}

// Dispatcher posts responses to the backend and folds the results into the
// store.
type Dispatcher struct {
	store   *Store
	backend Backend
	auth    Authenticator
}

// NewDispatcher creates a Dispatcher. A nil auth is treated as anonymous.
func NewDispatcher(store *Store, backend Backend, auth Authenticator) *Dispatcher {
	if auth == nil {
		auth = Anonymous{}
	}
	return &Dispatcher{
		store:   store,
		backend: backend,
		auth:    auth,
	}
}

// Save submits req.Response. With nobody signed in it returns nil, nil and
// touches nothing.
//
// When req.TrackTime is set the elapsed seconds since the last reset are
// added to the record's time_spent; otherwise time_spent is sent as 0. On
// failure nothing is merged and the current slot is left as it was.
func (d *Dispatcher) Save(ctx context.Context, req SaveRequest) (*Record, error) {
	if !d.auth.Authenticated() {
		slog.Debug("skipping response save, no signed-in user",
			"kind", req.Kind,
			"associated_activity", req.Response.AssociatedActivity,
		)
		return nil, nil
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if req.Response.AssociatedActivity == "" {
		return nil, ErrMissingActivity
	}
	if req.Response.Payload == nil || req.Response.Payload.Kind() != req.Kind {
		return nil, fmt.Errorf("%w: %s record sent as %s", ErrKindMismatch, req.Response.Kind(), req.Kind)
	}

	outgoing := req.Response.Clone()
	if req.TrackTime {
		outgoing.TimeSpent += d.store.ElapsedSeconds()
	} else {
		outgoing.TimeSpent = 0
	}

	_, _, revision := d.store.owner()
	start := time.Now()

	saved, err := d.backend.SaveResponse(ctx, req.Kind, d.store.LessonID(), outgoing)
	if err != nil {
		// Skip merge: the persisted list and the current slot stay as they were.
		slog.Warn("response save failed",
			"kind", req.Kind,
			"associated_activity", outgoing.AssociatedActivity,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, fmt.Errorf("save %s response: %w", req.Kind, err)
	}
	if saved.AssociatedActivity != outgoing.AssociatedActivity || saved.Kind() != req.Kind {
		return nil, fmt.Errorf("save %s response: %w: got %s record for %q",
			req.Kind, ErrMalformedRecord, saved.Kind(), saved.AssociatedActivity)
	}

	if req.TrackTime {
		d.store.ResetTimeReference()
	}
	d.store.MergeSavedResponse(req.Kind, saved)
	d.store.settle(req.Kind, saved, revision)

	slog.Info("response saved",
		"kind", req.Kind,
		"associated_activity", saved.AssociatedActivity,
		"time_spent", saved.TimeSpent,
		"duration", time.Since(start),
	)

	out := saved.Clone()
	return &out, nil
}

// SaveCurrent saves the current slot using the kind and time tracking of the
// current context.
func (d *Dispatcher) SaveCurrent(ctx context.Context, overrides ...Override) (*Record, error) {
	if !d.auth.Authenticated() {
		return nil, nil
	}

	c, ok := d.store.CurrentContext()
	if !ok {
		return nil, ErrNoCurrentResponse
	}
	r, ok := d.store.CurrentResponse()
	if !ok {
		return nil, ErrNoCurrentResponse
	}

	return d.Save(ctx, SaveRequest{
		Kind:      c.Kind,
		Response:  applyOverrides(r, overrides),
		TrackTime: c.TrackTime,
	})
}

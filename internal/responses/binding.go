package responses

import (
	"context"
	"fmt"
)

// Authenticator reports whether a user is signed in. Without one, edits stay
// local and saves are skipped.
type Authenticator interface {
	Authenticated() bool
}

// Anonymous is an Authenticator that never has a signed-in user.
type Anonymous struct{}

func (Anonymous) Authenticated() bool { return false }

// Binder attaches activity instances to a Store.
type Binder struct {
	store      *Store
	dispatcher *Dispatcher
	auth       Authenticator
}

// NewBinder creates a Binder. A nil auth is treated as anonymous.
func NewBinder(store *Store, dispatcher *Dispatcher, auth Authenticator) *Binder {
	if auth == nil {
		auth = Anonymous{}
	}
	return &Binder{
		store:      store,
		dispatcher: dispatcher,
		auth:       auth,
	}
}

// Binding is one activity's handle on the current slot.
type Binding struct {
	binder     *Binder
	kind       Kind
	activityID string
	trackTime  bool
	defaults   Payload
	overlay    []Override
}

// Bind attaches the activity (kind, activityID) to the store and claims the
// current slot unless the activity already owns it. The seed is the persisted
// record for the activity when one exists, otherwise a fresh record built from
// defaults and overlay. A nil defaults uses the kind's zero payload.
//
// If another activity held the slot with unsaved edits, those edits are
// discarded. The last claim wins.
func (b *Binder) Bind(kind Kind, activityID string, trackTime bool, defaults Payload, overlay ...Override) (*Binding, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if activityID == "" {
		return nil, ErrMissingActivity
	}
	if defaults == nil {
		p, err := NewPayload(kind)
		if err != nil {
			return nil, err
		}
		defaults = p
	}
	if defaults.Kind() != kind {
		return nil, fmt.Errorf("%w: %s payload for %s activity", ErrKindMismatch, defaults.Kind(), kind)
	}

	binding := &Binding{
		binder:     b,
		kind:       kind,
		activityID: activityID,
		trackTime:  trackTime,
		defaults:   defaults.clone(),
		overlay:    overlay,
	}

	prior, hasPrior, _ := b.store.owner()
	if hasPrior && prior.owns(kind, activityID) {
		return binding, nil
	}

	saved := true
	if b.auth.Authenticated() && hasPrior {
		saved = prior.CurrentResponseSaved
	}
	b.store.claim(Context{
		Kind:                 kind,
		AssociatedActivity:   activityID,
		TrackTime:            trackTime,
		CurrentResponseSaved: saved,
	}, binding.seed())

	return binding, nil
}

func (b *Binding) Kind() Kind         { return b.kind }
func (b *Binding) ActivityID() string { return b.activityID }
func (b *Binding) TrackTime() bool    { return b.trackTime }

// seed is the value the activity starts from when it does not own the slot.
func (b *Binding) seed() Record {
	if r, ok := b.binder.store.FindSaved(b.kind, b.activityID); ok {
		return r
	}
	r := NewRecord(b.activityID, b.defaults.clone())
	return applyOverrides(r, b.overlay)
}

// Owns reports whether this activity currently holds the slot.
func (b *Binding) Owns() bool {
	c, ok, _ := b.binder.store.owner()
	return ok && c.owns(b.kind, b.activityID)
}

// Value returns the live value: the current slot while this activity owns
// it, otherwise the seed.
func (b *Binding) Value() Record {
	if b.Owns() {
		if r, ok := b.binder.store.CurrentResponse(); ok && r.AssociatedActivity == b.activityID {
			return r
		}
	}
	return b.seed()
}

// Set replaces the activity's value and marks the slot unsaved.
func (b *Binding) Set(r Record) error {
	return b.Update(func(Record) Record { return r })
}

// Update applies fn to the latest store value for this activity.
func (b *Binding) Update(fn func(Record) Record) error {
	owner := Context{
		Kind:                 b.kind,
		AssociatedActivity:   b.activityID,
		TrackTime:            b.trackTime,
		CurrentResponseSaved: !b.binder.auth.Authenticated(),
	}
	return b.binder.store.mutateCurrent(owner, b.seed(), func(latest Record) (Record, error) {
		next := fn(latest.Clone())
		return b.check(next)
	})
}

func (b *Binding) check(r Record) (Record, error) {
	if r.AssociatedActivity == "" {
		r.AssociatedActivity = b.activityID
	}
	if r.AssociatedActivity != b.activityID {
		return Record{}, fmt.Errorf("%w: %q is bound to %q", ErrActivityMismatch, r.AssociatedActivity, b.activityID)
	}
	if r.Payload == nil {
		r.Payload = b.defaults.clone()
	}
	if r.Payload.Kind() != b.kind {
		return Record{}, fmt.Errorf("%w: %s payload for %s activity", ErrKindMismatch, r.Payload.Kind(), b.kind)
	}
	return r, nil
}

// SaveNow sends the live value, with overrides applied, through the
// dispatcher. It returns nil without error when nobody is signed in.
func (b *Binding) SaveNow(ctx context.Context, overrides ...Override) (*Record, error) {
	r, err := b.check(applyOverrides(b.Value(), overrides))
	if err != nil {
		return nil, err
	}
	return b.binder.dispatcher.Save(ctx, SaveRequest{
		Kind:      b.kind,
		Response:  r,
		TrackTime: b.trackTime,
	})
}

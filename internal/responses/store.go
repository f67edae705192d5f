package responses

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Context describes which activity owns the current slot and how its time is
// accounted.
type Context struct {
	Kind               Kind   `json:"kind"`
	AssociatedActivity string `json:"associated_activity"`
	TrackTime          bool   `json:"track_time"`
	// CurrentResponseSaved is false once the slot has diverged from the backend.
	CurrentResponseSaved bool `json:"current_response_saved"`
}

func (c Context) owns(kind Kind, activityID string) bool {
	return c.Kind == kind && c.AssociatedActivity == activityID
}

// Store is the lesson response aggregate for one lesson session. It holds a
// single current slot, its context, and the persisted list for every kind.
type Store struct {
	mu              sync.RWMutex
	lessonID        string
	highestActivity int
	current         *Record
	context         *Context
	saved           map[Kind][]Record
	// revision increments on every write to the current slot.
	revision uint64
	timer    *TimeAccumulator
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used for time accounting.
func WithClock(clock Clock) StoreOption {
	return func(s *Store) {
		s.timer = NewTimeAccumulator(clock)
	}
}

// NewStore creates an empty aggregate.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		saved: make(map[Kind][]Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = NewTimeAccumulator(SystemClock{})
	}
	return s
}

// LessonID returns the lesson this aggregate belongs to.
func (s *Store) LessonID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lessonID
}

// HighestActivity returns the furthest unlocked step.
func (s *Store) HighestActivity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highestActivity
}

// BeginLesson points the aggregate at lessonID. Switching to a different
// lesson discards everything held for the previous one.
func (s *Store) BeginLesson(lessonID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lessonID == lessonID {
		return
	}
	s.resetLocked()
	s.lessonID = lessonID
}

// AdvanceHighest raises the furthest unlocked step; it never lowers it.
func (s *Store) AdvanceHighest(step int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step > s.highestActivity {
		s.highestActivity = step
	}
}

// CurrentResponse returns a copy of the current slot.
func (s *Store) CurrentResponse() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Record{}, false
	}
	return s.current.Clone(), true
}

// CurrentContext returns a copy of the current context.
func (s *Store) CurrentContext() (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.context == nil {
		return Context{}, false
	}
	return *s.context, true
}

// SetCurrentResponse replaces the current slot verbatim. Nil vacates it.
func (s *Store) SetCurrentResponse(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCurrentLocked(r)
}

// SetCurrentContext replaces the context descriptor. Nil clears it.
func (s *Store) SetCurrentContext(c *Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.context = nil
		return
	}
	cp := *c
	s.context = &cp
}

// MergeSavedResponse inserts r into kind's persisted list, replacing in place
// any record with the same associated_activity.
func (s *Store) MergeSavedResponse(kind Kind, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.saved[kind]
	for i := range list {
		if list[i].AssociatedActivity == r.AssociatedActivity {
			list[i] = r.Clone()
			return
		}
	}
	s.saved[kind] = append(list, r.Clone())
}

// SetSavedResponses replaces kind's persisted list wholesale. Later entries
// win when records share an associated_activity.
func (s *Store) SetSavedResponses(kind Kind, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Record, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		if i, ok := index[r.AssociatedActivity]; ok {
			list[i] = r.Clone()
			continue
		}
		index[r.AssociatedActivity] = len(list)
		list = append(list, r.Clone())
	}
	s.saved[kind] = list
}

// SavedResponses returns a copy of kind's persisted list.
func (s *Store) SavedResponses(kind Kind) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.saved[kind]
	out := make([]Record, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}

// FindSaved looks up the persisted record for activityID.
func (s *Store) FindSaved(kind Kind, activityID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.saved[kind] {
		if r.AssociatedActivity == activityID {
			return r.Clone(), true
		}
	}
	return Record{}, false
}

// ResetTimeReference restarts time accounting from now.
func (s *Store) ResetTimeReference() {
	s.timer.Reset()
}

// ElapsedSeconds returns seconds since the last time reference reset.
func (s *Store) ElapsedSeconds() int {
	return s.timer.ElapsedSeconds()
}

// TimeReference returns the current time-accounting reference.
func (s *Store) TimeReference() time.Time {
	return s.timer.Reference()
}

// ResetAll restores the aggregate to its initial empty state.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.lessonID = ""
	s.highestActivity = 0
	s.setCurrentLocked(nil)
	s.context = nil
	s.saved = make(map[Kind][]Record)
	s.timer.Reset()
}

func (s *Store) setCurrentLocked(r *Record) {
	s.revision++
	if r == nil {
		s.current = nil
		return
	}
	cp := r.Clone()
	s.current = &cp
}

// claim hands the current slot to owner, seeding it with seed.
func (s *Store) claim(owner Context, seed Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = &owner
	s.setCurrentLocked(&seed)
}

// owner returns the context, whether one is set, and the slot revision.
func (s *Store) owner() (Context, bool, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.context == nil {
		return Context{}, false, s.revision
	}
	return *s.context, true, s.revision
}

// mutateCurrent applies fn to the latest value of owner's slot, falling back
// to fallback when another activity holds it, and claims the slot with the
// result. The read and the write happen under one lock.
func (s *Store) mutateCurrent(owner Context, fallback Record, fn func(Record) (Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := fallback
	if s.context != nil && s.context.owns(owner.Kind, owner.AssociatedActivity) && s.current != nil {
		latest = s.current.Clone()
	}

	next, err := fn(latest)
	if err != nil {
		return err
	}

	s.context = &owner
	s.setCurrentLocked(&next)
	return nil
}

// settle folds an authoritative record back into the current slot after a
// save. When the slot was not written since the save was dispatched it is
// replaced outright and marked saved; otherwise only the server-assigned id
// and aggregate time are adopted so in-flight edits survive.
func (s *Store) settle(kind Kind, saved Record, dispatchedAt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context == nil || s.current == nil || !s.context.owns(kind, saved.AssociatedActivity) {
		return
	}

	if s.revision == dispatchedAt {
		s.setCurrentLocked(&saved)
		s.context.CurrentResponseSaved = true
		return
	}

	if saved.ID != nil {
		id := *saved.ID
		s.current.ID = &id
	}
	s.current.TimeSpent = saved.TimeSpent
}

type snapshotDoc struct {
	LessonID        string                     `json:"lesson_id"`
	HighestActivity int                        `json:"highest_activity"`
	TimeReference   time.Time                  `json:"time_reference"`
	CurrentContext  *Context                   `json:"current_context,omitempty"`
	CurrentResponse json.RawMessage            `json:"current_response,omitempty"`
	SavedResponses  map[Kind][]json.RawMessage `json:"saved_responses"`
}

// Snapshot serialises the whole aggregate into an opaque document.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := snapshotDoc{
		LessonID:        s.lessonID,
		HighestActivity: s.highestActivity,
		TimeReference:   s.timer.Reference(),
		SavedResponses:  make(map[Kind][]json.RawMessage, len(s.saved)),
	}
	if s.context != nil {
		c := *s.context
		doc.CurrentContext = &c
	}
	if s.current != nil {
		raw, err := json.Marshal(s.current)
		if err != nil {
			return nil, fmt.Errorf("marshal current response: %w", err)
		}
		doc.CurrentResponse = raw
	}
	for kind, list := range s.saved {
		for _, r := range list {
			raw, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("marshal %s response: %w", kind, err)
			}
			doc.SavedResponses[kind] = append(doc.SavedResponses[kind], raw)
		}
	}

	return json.Marshal(doc)
}

// Restore replaces the aggregate with a document produced by Snapshot.
// A current response without a context cannot be decoded and is dropped.
func (s *Store) Restore(data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	saved := make(map[Kind][]Record, len(doc.SavedResponses))
	for kind, raws := range doc.SavedResponses {
		for _, raw := range raws {
			r, err := DecodeRecord(kind, raw)
			if err != nil {
				return fmt.Errorf("decode saved %s response: %w", kind, err)
			}
			saved[kind] = append(saved[kind], r)
		}
	}

	var current *Record
	if doc.CurrentContext != nil && len(doc.CurrentResponse) > 0 {
		r, err := DecodeRecord(doc.CurrentContext.Kind, doc.CurrentResponse)
		if err != nil {
			return fmt.Errorf("decode current response: %w", err)
		}
		current = &r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lessonID = doc.LessonID
	s.highestActivity = doc.HighestActivity
	s.context = doc.CurrentContext
	s.setCurrentLocked(current)
	s.saved = saved
	if !doc.TimeReference.IsZero() {
		s.timer.setReference(doc.TimeReference)
	}
	return nil
}

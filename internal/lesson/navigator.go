package lesson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

var (
	ErrActivityIncomplete = errors.New("activity must be completed before moving on")
	ErrActivityLocked     = errors.New("activity not unlocked yet")
	ErrNoActivity         = errors.New("no such activity")
)

// ResponseLister fetches a learner's persisted responses for a lesson.
type ResponseLister interface {
	ListResponses(ctx context.Context, kind responses.Kind, lessonID string) ([]responses.Record, error)
}

// CurrentSaver flushes the current response slot.
type CurrentSaver interface {
	SaveCurrent(ctx context.Context, overrides ...responses.Override) (*responses.Record, error)
}

// Navigator moves a learner through one lesson, saving the current response
// on every step and unlocking activities as they are reached.
//
// Moves are serialized by moveMu, which is held while the current response is
// flushed. mu guards only the index, so Index and Current stay responsive
// while a save is in flight.
type Navigator struct {
	lesson Lesson
	store  *responses.Store
	saver  CurrentSaver
	lister ResponseLister
	auth   responses.Authenticator

	moveMu sync.Mutex
	mu     sync.Mutex
	index  int
}

// NewNavigator creates a navigator for lsn. lister may be nil when prior
// responses are never fetched.
func NewNavigator(lsn Lesson, store *responses.Store, saver CurrentSaver, lister ResponseLister, auth responses.Authenticator) *Navigator {
	return &Navigator{
		lesson: lsn,
		store:  store,
		saver:  saver,
		lister: lister,
		auth:   auth,
	}
}

// Lesson returns the lesson being navigated.
func (n *Navigator) Lesson() Lesson { return n.lesson }

// Open points the store at the lesson, loads the learner's persisted
// responses when signed in, and resumes at the furthest unlocked activity.
func (n *Navigator) Open(ctx context.Context) error {
	if len(n.lesson.Activities) == 0 {
		return fmt.Errorf("%w: lesson %s has no activities", ErrNoActivity, n.lesson.ID)
	}

	n.moveMu.Lock()
	defer n.moveMu.Unlock()

	n.store.BeginLesson(n.lesson.ID)

	if n.auth.Authenticated() && n.lister != nil {
		for _, kind := range n.lesson.Kinds() {
			list, err := n.lister.ListResponses(ctx, kind, n.lesson.ID)
			if err != nil {
				return fmt.Errorf("loading %s responses: %w", kind, err)
			}
			n.store.SetSavedResponses(kind, list)
		}
	}

	index := min(n.store.HighestActivity(), len(n.lesson.Activities)-1)
	n.setIndex(index)

	n.store.ResetTimeReference()
	slog.Info("lesson opened", "lesson_id", n.lesson.ID, "activity", index)
	return nil
}

// Index returns the position of the current activity.
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

func (n *Navigator) setIndex(i int) {
	n.mu.Lock()
	n.index = i
	n.mu.Unlock()
}

// Current returns the current activity. It reports false when the lesson
// has no activities.
func (n *Navigator) Current() (Activity, bool) {
	i := n.Index()
	if i < 0 || i >= len(n.lesson.Activities) {
		return Activity{}, false
	}
	return n.lesson.Activities[i], true
}

// Bind binds the current activity to the store.
func (n *Navigator) Bind(binder *responses.Binder) (*responses.Binding, error) {
	act, ok := n.Current()
	if !ok {
		return nil, fmt.Errorf("%w: lesson %s has no activities", ErrNoActivity, n.lesson.ID)
	}
	return binder.Bind(act.Kind, act.ID, act.TrackTime, nil, act.overlay()...)
}

// BindChild binds a child of the current activity. Children never track time;
// the parent's save carries it.
func (n *Navigator) BindChild(binder *responses.Binder, childID string) (*responses.Binding, error) {
	act, _ := n.Current()
	child, ok := act.Child(childID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoActivity, childID)
	}
	return binder.Bind(child.Kind, child.ID, false, nil, child.overlay()...)
}

// Next moves to the following activity. It refuses while the current
// activity requires completion and its response is still partial, and it
// stays put if flushing the current response fails.
func (n *Navigator) Next(ctx context.Context) error {
	n.moveMu.Lock()
	defer n.moveMu.Unlock()

	index := n.Index()
	if index+1 >= len(n.lesson.Activities) {
		return fmt.Errorf("%w: lesson %s has no activity after %d", ErrNoActivity, n.lesson.ID, index)
	}

	act := n.lesson.Activities[index]
	if act.RequiresCompletion && !n.completed(act) {
		return fmt.Errorf("%w: %s", ErrActivityIncomplete, act.ID)
	}

	if err := n.flush(ctx); err != nil {
		return err
	}

	n.setIndex(index + 1)
	n.store.AdvanceHighest(index + 1)
	return nil
}

// Previous moves back one activity. A failed save is logged, not fatal.
func (n *Navigator) Previous(ctx context.Context) error {
	n.moveMu.Lock()
	defer n.moveMu.Unlock()

	index := n.Index()
	if index <= 0 {
		return fmt.Errorf("%w: lesson %s has no activity before 0", ErrNoActivity, n.lesson.ID)
	}
	if err := n.flush(ctx); err != nil {
		slog.Warn("saving before moving back failed", "lesson_id", n.lesson.ID, "error", err)
	}
	n.setIndex(index - 1)
	return nil
}

// GoTo jumps to activity i, which must already be unlocked.
func (n *Navigator) GoTo(ctx context.Context, i int) error {
	n.moveMu.Lock()
	defer n.moveMu.Unlock()

	if i < 0 || i >= len(n.lesson.Activities) {
		return fmt.Errorf("%w: %d", ErrNoActivity, i)
	}
	if i > n.store.HighestActivity() {
		return fmt.Errorf("%w: %d (highest %d)", ErrActivityLocked, i, n.store.HighestActivity())
	}
	if i == n.Index() {
		return nil
	}
	if err := n.flush(ctx); err != nil {
		slog.Warn("saving before jump failed", "lesson_id", n.lesson.ID, "error", err)
	}
	n.setIndex(i)
	return nil
}

// completed reports whether act has a non-partial response, preferring the
// live slot over the persisted list.
func (n *Navigator) completed(act Activity) bool {
	if c, ok := n.store.CurrentContext(); ok && c.Kind == act.Kind && c.AssociatedActivity == act.ID {
		if r, ok := n.store.CurrentResponse(); ok {
			return !r.PartialResponse
		}
	}
	r, ok := n.store.FindSaved(act.Kind, act.ID)
	return ok && !r.PartialResponse
}

// flush saves the current slot if it holds unsaved edits.
func (n *Navigator) flush(ctx context.Context) error {
	c, ok := n.store.CurrentContext()
	if !ok || c.CurrentResponseSaved {
		return nil
	}
	if _, err := n.saver.SaveCurrent(ctx); err != nil {
		return fmt.Errorf("saving %s %s: %w", c.Kind, c.AssociatedActivity, err)
	}
	return nil
}

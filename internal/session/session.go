// Package session holds the signed-in user and tears the client state down
// on logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-lessons/internal/responses"
	"github.com/p-n-ai/pai-lessons/internal/snapshot"
)

// AnonymousKey is the snapshot key used when nobody is signed in.
const AnonymousKey = "anonymous"

// Session is the signed-in user. The zero value is signed out.
type Session struct {
	mu     sync.RWMutex
	token  string
	userID string
}

// New returns a signed-out session.
func New() *Session {
	return &Session{}
}

// SignIn records the user's bearer token and id.
func (s *Session) SignIn(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = userID
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the signed-in user's id.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SnapshotKey is the key the user's snapshot is stored under.
func (s *Session) SnapshotKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return AnonymousKey
	}
	return s.userID
}

// Clear signs the user out.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.userID = ""
}

// CurrentSaver flushes the current response slot.
type CurrentSaver interface {
	SaveCurrent(ctx context.Context, overrides ...responses.Override) (*responses.Record, error)
}

// SessionEnder ends the session on the backend.
type SessionEnder interface {
	EndSession(ctx context.Context) error
}

// Teardown runs logout against the response store and its collaborators.
type Teardown struct {
	session   *Session
	store     *responses.Store
	saver     CurrentSaver
	backend   SessionEnder
	snapshots snapshot.Store
}

// NewTeardown wires the logout collaborators. snapshots may be nil.
func NewTeardown(session *Session, store *responses.Store, saver CurrentSaver, backend SessionEnder, snapshots snapshot.Store) *Teardown {
	return &Teardown{
		session:   session,
		store:     store,
		saver:     saver,
		backend:   backend,
		snapshots: snapshots,
	}
}

// Logout flushes an unsaved current response, ends the backend session and
// clears all local state. If the backend refuses, local state is left intact
// and the error is returned.
func (t *Teardown) Logout(ctx context.Context) error {
	if c, ok := t.store.CurrentContext(); ok && !c.CurrentResponseSaved {
		if _, err := t.saver.SaveCurrent(ctx); err != nil && !errors.Is(err, responses.ErrNoCurrentResponse) {
			slog.Warn("saving current response before logout failed",
				"kind", c.Kind,
				"associated_activity", c.AssociatedActivity,
				"error", err,
			)
		}
	}

	if err := t.backend.EndSession(ctx); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}

	key := t.session.SnapshotKey()

	t.store.ResetAll()
	t.store.SetCurrentResponse(nil)
	t.store.SetCurrentContext(nil)

	if t.snapshots != nil {
		if err := t.snapshots.Delete(ctx, key); err != nil {
			slog.Warn("deleting snapshot after logout failed", "key", key, "error", err)
		}
	}

	t.session.Clear()
	slog.Info("logged out", "key", key)
	return nil
}

// Persist stores a snapshot of the response aggregate for the current user.
func (t *Teardown) Persist(ctx context.Context) error {
	if t.snapshots == nil {
		return nil
	}
	data, err := t.store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting responses: %w", err)
	}
	return t.snapshots.Save(ctx, t.session.SnapshotKey(), data)
}

// Resume restores the aggregate from the current user's snapshot, if any.
func (t *Teardown) Resume(ctx context.Context) (bool, error) {
	if t.snapshots == nil {
		return false, nil
	}
	data, ok, err := t.snapshots.Load(ctx, t.session.SnapshotKey())
	if err != nil || !ok {
		return false, err
	}
	if err := t.store.Restore(data); err != nil {
		return false, fmt.Errorf("restoring responses: %w", err)
	}
	return true, nil
}

package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-lessons/internal/responses"
	"github.com/p-n-ai/pai-lessons/internal/session"
	"github.com/p-n-ai/pai-lessons/internal/snapshot"
)

type fakeEnder struct {
	err   error
	calls int
}

func (f *fakeEnder) EndSession(context.Context) error {
	f.calls++
	return f.err
}

type fixture struct {
	sess      *session.Session
	store     *responses.Store
	backend   *responses.MockBackend
	ender     *fakeEnder
	snapshots *snapshot.MemoryStore
	binder    *responses.Binder
	teardown  *session.Teardown
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sess:      session.New(),
		store:     responses.NewStore(),
		backend:   responses.NewMockBackend(),
		ender:     &fakeEnder{},
		snapshots: snapshot.NewMemoryStore(),
	}
	f.sess.SignIn("tok-1", "user-1")
	dispatcher := responses.NewDispatcher(f.store, f.backend, f.sess)
	f.binder = responses.NewBinder(f.store, dispatcher, f.sess)
	f.teardown = session.NewTeardown(f.sess, f.store, dispatcher, f.ender, f.snapshots)
	f.store.BeginLesson("lesson-1")
	return f
}

func TestSession_SignInAndClear(t *testing.T) {
	s := session.New()
	if s.Authenticated() {
		t.Fatal("new session should be signed out")
	}
	if s.SnapshotKey() != session.AnonymousKey {
		t.Errorf("SnapshotKey() = %q, want %q", s.SnapshotKey(), session.AnonymousKey)
	}

	s.SignIn("tok", "u1")
	if !s.Authenticated() || s.Token() != "tok" || s.UserID() != "u1" {
		t.Errorf("after SignIn: auth=%v token=%q user=%q", s.Authenticated(), s.Token(), s.UserID())
	}
	if s.SnapshotKey() != "u1" {
		t.Errorf("SnapshotKey() = %q, want u1", s.SnapshotKey())
	}

	s.Clear()
	if s.Authenticated() || s.Token() != "" {
		t.Error("Clear() should sign the user out")
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := session.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SignIn("tok", "u")
		}()
		go func() {
			defer wg.Done()
			_ = s.Authenticated()
		}()
	}
	wg.Wait()
}

func TestLogout_SavesUnsavedCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	b, err := f.binder.Bind(responses.KindWriting, "w1", true, responses.WritingPayload{})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	b.Update(func(r responses.Record) responses.Record {
		r.Payload = responses.WritingPayload{Submission: "draft"}
		return r
	})
	f.teardown.Persist(ctx)

	if err := f.teardown.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	calls := f.backend.Calls()
	if len(calls) != 1 {
		t.Fatalf("backend saves = %d, want 1", len(calls))
	}
	if got := calls[0].Record.Payload.(responses.WritingPayload).Submission; got != "draft" {
		t.Errorf("saved submission = %q, want draft", got)
	}
	if f.ender.calls != 1 {
		t.Errorf("EndSession calls = %d, want 1", f.ender.calls)
	}

	if _, ok := f.store.CurrentResponse(); ok {
		t.Error("current response should be cleared")
	}
	if _, ok := f.store.CurrentContext(); ok {
		t.Error("current context should be cleared")
	}
	if len(f.store.SavedResponses(responses.KindWriting)) != 0 {
		t.Error("saved responses should be cleared")
	}
	if _, ok, _ := f.snapshots.Load(ctx, "user-1"); ok {
		t.Error("snapshot should be deleted")
	}
	if f.sess.Authenticated() {
		t.Error("session should be cleared")
	}
}

func TestLogout_SkipsSaveWhenSaved(t *testing.T) {
	f := newFixture(t)

	if _, err := f.binder.Bind(responses.KindPoll, "p1", false, responses.PollPayload{}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := f.teardown.Logout(t.Context()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if n := len(f.backend.Calls()); n != 0 {
		t.Errorf("backend saves = %d, want 0", n)
	}
}

func TestLogout_SaveFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.backend.Err = errors.New("offline")

	b, _ := f.binder.Bind(responses.KindPoll, "p1", false, responses.PollPayload{})
	b.Update(func(r responses.Record) responses.Record {
		r.Payload = responses.PollPayload{SelectedChoice: "a"}
		return r
	})

	if err := f.teardown.Logout(t.Context()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if f.ender.calls != 1 {
		t.Errorf("EndSession calls = %d, want 1", f.ender.calls)
	}
	if f.sess.Authenticated() {
		t.Error("session should be cleared")
	}
}

func TestLogout_BackendRefusalKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.ender.err = errors.New("503")

	f.store.MergeSavedResponse(responses.KindPoll, responses.Record{
		ID:                 responses.StringID("r1"),
		AssociatedActivity: "p1",
		Payload:            responses.PollPayload{},
	})
	f.teardown.Persist(ctx)

	if err := f.teardown.Logout(ctx); err == nil {
		t.Fatal("Logout() should fail when the backend refuses")
	}
	if !f.sess.Authenticated() {
		t.Error("session should survive a failed logout")
	}
	if f.store.LessonID() != "lesson-1" {
		t.Errorf("LessonID() = %q, want lesson-1", f.store.LessonID())
	}
	if len(f.store.SavedResponses(responses.KindPoll)) != 1 {
		t.Error("saved responses should survive a failed logout")
	}
	if _, ok, _ := f.snapshots.Load(ctx, "user-1"); !ok {
		t.Error("snapshot should survive a failed logout")
	}
}

func TestTeardown_PersistAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.store.AdvanceHighest(3)
	if err := f.teardown.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	f.store.ResetAll()
	ok, err := f.teardown.Resume(ctx)
	if err != nil || !ok {
		t.Fatalf("Resume() = %v, %v", ok, err)
	}
	if f.store.HighestActivity() != 3 || f.store.LessonID() != "lesson-1" {
		t.Errorf("resumed = %q/%d", f.store.LessonID(), f.store.HighestActivity())
	}
}

func TestTeardown_ResumeWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	ok, err := f.teardown.Resume(t.Context())
	if err != nil || ok {
		t.Errorf("Resume() = %v, %v; want false, nil", ok, err)
	}
}

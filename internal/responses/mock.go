package responses

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBackend is a test double for Backend. By default it echoes the record
// back, assigning "srv-N" ids to records that have none.
type MockBackend struct {
	mu      sync.Mutex
	Err     error
	Respond func(kind Kind, r Record) Record
	calls   []MockCall
	nextID  int
}

// MockCall captures one SaveResponse invocation.
type MockCall struct {
	Kind     Kind
	LessonID string
	Record   Record
}

// NewMockBackend creates an echoing MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) SaveResponse(_ context.Context, kind Kind, lessonID string, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Kind: kind, LessonID: lessonID, Record: r.Clone()})
	if m.Err != nil {
		return Record{}, m.Err
	}
	if m.Respond != nil {
		return m.Respond(kind, r.Clone()), nil
	}

	out := r.Clone()
	if out.ID == nil {
		m.nextID++
		out.ID = StringID(fmt.Sprintf("srv-%d", m.nextID))
	}
	return out, nil
}

// Calls returns every recorded call in order.
func (m *MockBackend) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// LastCall returns the most recent call.
func (m *MockBackend) LastCall() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// StaticAuth is an Authenticator with a fixed answer.
type StaticAuth bool

func (a StaticAuth) Authenticated() bool { return bool(a) }

// FakeClock is a manually advanced Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a FakeClock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

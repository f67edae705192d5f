// Package backend is the reference server for learner responses: it stores
// one record per (user, lesson, kind, activity), validates payloads and
// exports a lesson's responses as a workbook.
package backend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StoredResponse is a persisted record with its ownership keys.
type StoredResponse struct {
	UserID    string
	LessonID  string
	Kind      responses.Kind
	Record    responses.Record
	UpdatedAt time.Time
}

// Repository persists learner responses.
type Repository interface {
	// Upsert stores r, replacing any record for the same user, lesson, kind
	// and activity, and returns the stored record with its id.
	Upsert(ctx context.Context, userID, lessonID string, kind responses.Kind, r responses.Record) (responses.Record, error)
	List(ctx context.Context, userID, lessonID string, kind responses.Kind) ([]responses.Record, error)
	// ListLesson returns every record userID stored for lessonID, across kinds.
	ListLesson(ctx context.Context, userID, lessonID string) ([]StoredResponse, error)
}

type responseKey struct {
	userID   string
	lessonID string
	kind     responses.Kind
	activity string
}

// MemoryRepository is an in-memory implementation of Repository.
type MemoryRepository struct {
	rows map[responseKey]StoredResponse
	mu   sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[responseKey]StoredResponse)}
}

func (m *MemoryRepository) Upsert(_ context.Context, userID, lessonID string, kind responses.Kind, r responses.Record) (responses.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := responseKey{userID, lessonID, kind, r.AssociatedActivity}
	stored := r.Clone()
	if prev, ok := m.rows[key]; ok {
		stored.ID = prev.Record.ID
	} else {
		stored.ID = responses.StringID(uuid.NewString())
	}

	m.rows[key] = StoredResponse{
		UserID:    userID,
		LessonID:  lessonID,
		Kind:      kind,
		Record:    stored,
		UpdatedAt: time.Now(),
	}
	return stored.Clone(), nil
}

func (m *MemoryRepository) List(_ context.Context, userID, lessonID string, kind responses.Kind) ([]responses.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []StoredResponse
	for k, row := range m.rows {
		if k.userID == userID && k.lessonID == lessonID && k.kind == kind {
			rows = append(rows, row)
		}
	}
	sortRows(rows)

	out := make([]responses.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Record.Clone())
	}
	return out, nil
}

func (m *MemoryRepository) ListLesson(_ context.Context, userID, lessonID string) ([]StoredResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []StoredResponse
	for k, row := range m.rows {
		if k.userID == userID && k.lessonID == lessonID {
			row.Record = row.Record.Clone()
			rows = append(rows, row)
		}
	}
	sortRows(rows)
	return rows, nil
}

func sortRows(rows []StoredResponse) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Record.AssociatedActivity < b.Record.AssociatedActivity
	})
}

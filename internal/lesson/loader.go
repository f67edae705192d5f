// Package lesson loads lesson content and walks a learner through it.
package lesson

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

// Loader loads and caches lessons from the filesystem.
type Loader struct {
	rootDir  string
	lessons  map[string]Lesson
	validate *validator.Validate
	mu       sync.RWMutex
}

// NewLoader creates a lesson loader and loads every lesson under rootDir.
// Files that fail to parse or validate are skipped with a warning.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:  rootDir,
		lessons:  make(map[string]Lesson),
		validate: newValidator(),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading lessons: %w", err)
	}

	slog.Info("lessons loaded", "lessons", len(l.lessons))
	return l, nil
}

// Get returns a lesson by ID.
func (l *Loader) Get(id string) (Lesson, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lsn, ok := l.lessons[id]
	return lsn, ok
}

// All returns every loaded lesson sorted by ID.
func (l *Loader) All() []Lesson {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Lesson, 0, len(l.lessons))
	for _, lsn := range l.lessons {
		out = append(out, lsn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks a lesson's structure.
func (l *Loader) Validate(lsn Lesson) error {
	return l.validate.Struct(lsn)
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); err != nil {
		return err
	}
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadLesson(path)
		}
		return nil
	})
}

func (l *Loader) loadLesson(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lsn Lesson
	if err := yaml.Unmarshal(data, &lsn); err != nil {
		slog.Warn("skipping invalid lesson YAML", "path", path, "error", err)
		return nil
	}
	if lsn.ID == "" && len(lsn.Activities) == 0 {
		return nil // Not a lesson file
	}

	if err := l.Validate(lsn); err != nil {
		slog.Warn("skipping invalid lesson", "path", path, "lesson_id", lsn.ID, "error", err)
		return nil
	}

	l.mu.Lock()
	if _, dup := l.lessons[lsn.ID]; dup {
		slog.Warn("duplicate lesson id, later file wins", "path", path, "lesson_id", lsn.ID)
	}
	l.lessons[lsn.ID] = lsn
	l.mu.Unlock()

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("activity_kind", func(fl validator.FieldLevel) bool {
		return responses.Kind(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(uniqueActivityIDs, Lesson{})
	return v
}

// uniqueActivityIDs rejects lessons that reuse an activity id anywhere in the
// tree; ids key the persisted responses.
func uniqueActivityIDs(sl validator.StructLevel) {
	lsn := sl.Current().Interface().(Lesson)
	seen := make(map[string]bool)
	var walk func([]Activity)
	walk = func(acts []Activity) {
		for _, a := range acts {
			if a.ID != "" && seen[a.ID] {
				sl.ReportError(a.ID, "Activities", "Activities", "unique_id", a.ID)
			}
			seen[a.ID] = true
			walk(a.Children)
		}
	}
	walk(lsn.Activities)
}

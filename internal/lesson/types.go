package lesson

import "github.com/p-n-ai/pai-lessons/internal/responses"

// Lesson is an ordered list of activities loaded from YAML.
type Lesson struct {
	ID         string     `yaml:"id" validate:"required"`
	Title      string     `yaml:"title"`
	Activities []Activity `yaml:"activities" validate:"required,min=1,dive"`
}

// Activity is one step of a lesson. Children are nested activities, such as
// the questions of a quiz, whose time is counted by the parent.
type Activity struct {
	ID                 string         `yaml:"id" validate:"required"`
	Kind               responses.Kind `yaml:"kind" validate:"required,activity_kind"`
	Title              string         `yaml:"title"`
	TrackTime          bool           `yaml:"track_time"`
	RequiresCompletion bool           `yaml:"requires_completion"`
	Attempts           int            `yaml:"attempts" validate:"min=0"`
	Children           []Activity     `yaml:"children" validate:"omitempty,dive"`
}

// Kinds returns every activity kind used by the lesson, children included,
// in first-seen order.
func (l Lesson) Kinds() []responses.Kind {
	seen := make(map[responses.Kind]bool)
	var kinds []responses.Kind
	var walk func([]Activity)
	walk = func(acts []Activity) {
		for _, a := range acts {
			if !seen[a.Kind] {
				seen[a.Kind] = true
				kinds = append(kinds, a.Kind)
			}
			walk(a.Children)
		}
	}
	walk(l.Activities)
	return kinds
}

// Child returns the child activity with the given id.
func (a Activity) Child(id string) (Activity, bool) {
	for _, c := range a.Children {
		if c.ID == id {
			return c, true
		}
	}
	return Activity{}, false
}

func (a Activity) overlay() []responses.Override {
	if a.Attempts <= 0 {
		return nil
	}
	return []responses.Override{responses.WithAttemptsLeft(a.Attempts)}
}

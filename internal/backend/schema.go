package backend

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

const baseProperties = `
	"id": {"type": ["string", "null"]},
	"lesson_id": {"type": "string", "minLength": 1},
	"associated_activity": {"type": "string", "minLength": 1},
	"partial_response": {"type": "boolean"},
	"time_spent": {"type": "integer", "minimum": 0},
	"attempts_left": {"type": "integer", "minimum": 0}`

var payloadProperties = map[responses.Kind]string{
	responses.KindQuiz: `
	"score": {"type": "number", "minimum": 0, "maximum": 100},
	"questions_answered": {"type": "integer", "minimum": 0}`,
	responses.KindQuizQuestion: `
	"selected_choices": {"type": ["array", "null"], "items": {"type": "string"}, "uniqueItems": true},
	"correct": {"type": ["boolean", "null"]}`,
	responses.KindPoll: `
	"selected_choice": {"type": "string"}`,
	responses.KindWriting: `
	"submission": {"type": "string", "maxLength": 20000}`,
	responses.KindVideo: `
	"watched_percentage": {"type": "number", "minimum": 0, "maximum": 100},
	"last_position": {"type": "number", "minimum": 0}`,
	responses.KindMatching: `
	"matches": {"type": ["object", "null"], "additionalProperties": {"type": "string"}}`,
	responses.KindFillInBlank: `
	"answers": {"type": ["array", "null"], "items": {"type": "string"}}`,
	responses.KindTextToSpeech: `
	"played": {"type": "boolean"}`,
}

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned when a request body fails its kind's schema.
type ValidationErrors []FieldError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Schemas validates request bodies against the per-kind JSON schema.
type Schemas struct {
	byKind map[responses.Kind]*gojsonschema.Schema
}

// NewSchemas compiles a schema for every activity kind.
func NewSchemas() (*Schemas, error) {
	s := &Schemas{byKind: make(map[responses.Kind]*gojsonschema.Schema)}
	for _, kind := range responses.Kinds() {
		props, ok := payloadProperties[kind]
		if !ok {
			return nil, fmt.Errorf("no schema for kind %s", kind)
		}
		doc := fmt.Sprintf(`{
	"type": "object",
	"required": ["lesson_id", "associated_activity"],
	"properties": {%s,%s}
}`, baseProperties, props)

		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		s.byKind[kind] = schema
	}
	return s, nil
}

// Validate checks body against the schema for kind.
func (s *Schemas) Validate(kind responses.Kind, body []byte) error {
	schema, ok := s.byKind[kind]
	if !ok {
		return fmt.Errorf("%w: %q", responses.ErrUnknownKind, kind)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return ValidationErrors{{Field: "(root)", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	errs := make(ValidationErrors, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return errs
}

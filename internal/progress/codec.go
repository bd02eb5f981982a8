package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const progressSchemaJSON = `{
  "type": "object",
  "required": ["current_part_index", "completed_parts", "is_story_completed"],
  "properties": {
    "current_part_index": {"type": "integer", "minimum": 0},
    "completed_parts": {"type": "array", "items": {"type": "integer", "minimum": 0}},
    "is_story_completed": {"type": "boolean"}
  }
}`

const quizSchemaJSON = `{
  "type": "object",
  "required": ["questions", "answers", "score", "total", "attempts", "status"],
  "properties": {
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["prompt", "options", "correct_index"],
        "properties": {
          "prompt": {"type": "string"},
          "options": {"type": "array", "minItems": 1, "items": {"type": "string"}},
          "correct_index": {"type": "integer", "minimum": 0}
        }
      }
    },
    "answers": {"type": "array", "items": {"type": ["integer", "null"]}},
    "score": {"type": "integer", "minimum": 0},
    "total": {"type": "integer", "minimum": 0},
    "attempts": {"type": "integer", "minimum": 1},
    "passed_at_attempt": {"type": ["integer", "null"], "minimum": 1},
    "status": {"enum": ["completed", "failed"]},
    "content_hash": {"type": "string"},
    "submitted_at": {"type": "string"}
  }
}`

const rewardSchemaJSON = `{
  "type": "object",
  "required": ["xp", "best_score", "total"],
  "properties": {
    "xp": {"type": "integer", "minimum": 0},
    "best_score": {"type": "integer", "minimum": 0},
    "total": {"type": "integer", "minimum": 0},
    "badge": {"type": ["string", "null"]},
    "awarded_at": {"type": "string", "format": "date-time"}
  }
}`

var (
	progressSchema = &recordSchema{name: "progress", source: progressSchemaJSON}
	quizSchema     = &recordSchema{name: "quiz", source: quizSchemaJSON}
	rewardSchema   = &recordSchema{name: "reward", source: rewardSchemaJSON}
)

// recordSchema is a lazily compiled JSON schema for one record type.
type recordSchema struct {
	name   string
	source string

	once   sync.Once
	schema *gojsonschema.Schema
	err    error
}

func (s *recordSchema) validate(raw string) error {
	s.once.Do(func() {
		s.schema, s.err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.source))
	})
	if s.err != nil {
		return fmt.Errorf("compile %s schema: %w", s.name, s.err)
	}

	res, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("parse %s record: %w", s.name, err)
	}
	if !res.Valid() {
		return fmt.Errorf("invalid %s record: %s", s.name, res.Errors()[0])
	}
	return nil
}

// decodeRecord validates raw against schema and unmarshals it into out. Any
// mismatch is logged and reported as false so callers fall back to defaults.
func decodeRecord[T any](schema *recordSchema, key, raw string, out *T) bool {
	if err := schema.validate(raw); err != nil {
		slog.Warn("discarding malformed record", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("discarding malformed record", "key", key, "error", err)
		return false
	}
	return true
}

func encodeRecord(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

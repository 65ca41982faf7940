package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned when a submission names a content type the
	// pipeline does not handle.
	ErrUnknownType = errors.New("unknown content type")

	// ErrUnknownPriority is returned for priority values outside the accepted set.
	ErrUnknownPriority = errors.New("unknown priority")
)

// Type identifies the kind of educational content carried by a submission.
type Type string

const (
	TypeGame     Type = "game"
	TypeScene    Type = "scene"
	TypeQuiz     Type = "quiz"
	TypeDialogue Type = "dialogue"
)

// ParseType validates a raw content type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeGame, TypeScene, TypeQuiz, TypeDialogue:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Priority orders submissions within the scheduler queue.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority validates a raw priority string. An empty value defaults to normal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}

// Rank maps a priority to its queue tier. Higher drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// Metadata carries submitter context attached at intake.
type Metadata struct {
	UserID   string   `json:"user_id"`
	TeamID   string   `json:"team_id"`
	Priority Priority `json:"priority"`
	Target   string   `json:"target_deployment"`
}

// Submission is the immutable input to the pipeline. The payload is kept as
// raw JSON until the validation engine decodes it into its typed form;
// everything after intake references the submission by fingerprint.
type Submission struct {
	ID      string          `json:"id"`
	Type    Type            `json:"content_type"`
	Payload json.RawMessage `json:"payload"`
	Meta    Metadata        `json:"metadata"`
}

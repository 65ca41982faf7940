package content

import (
	"encoding/json"
	"fmt"
)

// Payload is the decoded, typed form of a submission payload. Exactly one
// concrete type exists per content Type, so validation can dispatch with an
// exhaustive type switch instead of probing duck-typed maps.
type Payload interface {
	isPayload()
}

// QuizContent is a set of questions with selectable answer options.
type QuizContent struct {
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizQuestion is a single prompt with its answer options.
type QuizQuestion struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	Options     []QuizOption `json:"options"`
	Explanation string       `json:"explanation,omitempty"`
}

// QuizOption is one selectable answer.
type QuizOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// DialogueContent is a scripted exchange between declared speakers.
type DialogueContent struct {
	Title    string         `json:"title"`
	Speakers []Speaker      `json:"speakers"`
	Lines    []DialogueLine `json:"lines"`
}

// Speaker declares a participant referenced by dialogue lines.
type Speaker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// DialogueLine is one utterance; Speaker must resolve to a declared Speaker ID.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// SceneContent is a single interactive screen with positioned entities.
type SceneContent struct {
	Title        string             `json:"title"`
	Background   string             `json:"background"`
	Entities     []SceneEntity      `json:"entities"`
	Interactions []SceneInteraction `json:"interactions,omitempty"`
}

// SceneEntity is a visual element placed on the scene grid (0-100 on both axes).
type SceneEntity struct {
	ID    string  `json:"id"`
	Kind  string  `json:"kind"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// SceneInteraction binds a trigger on an entity to an action.
type SceneInteraction struct {
	Trigger  string `json:"trigger"`
	Entity   string `json:"entity"`
	Action   string `json:"action"`
	Argument string `json:"argument,omitempty"`
}

// GameContent is a directed graph of scenes with an entry point.
type GameContent struct {
	Title      string       `json:"title"`
	StartScene string       `json:"start_scene"`
	Scenes     []GameScene  `json:"scenes"`
	Scoring    *GameScoring `json:"scoring,omitempty"`
}

// GameScene is one node in the game graph; Next holds scene IDs.
type GameScene struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Next  []string `json:"next,omitempty"`
}

// GameScoring defines the pass threshold relative to the maximum score.
type GameScoring struct {
	PassScore int `json:"pass_score"`
	MaxScore  int `json:"max_score"`
}

func (QuizContent) isPayload()     {}
func (DialogueContent) isPayload() {}
func (SceneContent) isPayload()    {}
func (GameContent) isPayload()     {}

// DecodePayload unmarshals raw payload JSON into the typed form for the given
// content type. Unknown JSON fields are tolerated and dropped; a JSON type
// mismatch surfaces as *json.UnmarshalTypeError so callers can report the
// offending field.
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeQuiz:
		var p QuizContent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeDialogue:
		var p DialogueContent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeScene:
		var p SceneContent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeGame:
		var p GameContent
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

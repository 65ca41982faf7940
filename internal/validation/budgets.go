package validation

import (
	"bytes"
	"encoding/json"
)

// Budgets holds the fixed size and complexity limits enforced during
// validation. Budget violations are hard errors: content over these limits
// cannot be rendered within the downstream latency envelope.
type Budgets struct {
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
	MaxDepth        int `yaml:"max_depth"`

	MaxIDLen    int `yaml:"max_id_len"`
	MaxTitleLen int `yaml:"max_title_len"`
	MaxTextLen  int `yaml:"max_text_len"`

	MaxQuestions int `yaml:"max_questions"`
	MaxOptions   int `yaml:"max_options"`
	MinOptions   int `yaml:"min_options"`

	MaxSpeakers int `yaml:"max_speakers"`
	MaxLines    int `yaml:"max_lines"`

	MaxSceneEntities int `yaml:"max_scene_entities"`
	MaxInteractions  int `yaml:"max_interactions"`

	MaxScenes int `yaml:"max_scenes"`
}

// DefaultBudgets returns the production limits.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxPayloadBytes:  256 * 1024,
		MaxDepth:         12,
		MaxIDLen:         64,
		MaxTitleLen:      200,
		MaxTextLen:       2000,
		MaxQuestions:     50,
		MaxOptions:       10,
		MinOptions:       2,
		MaxSpeakers:      20,
		MaxLines:         500,
		MaxSceneEntities: 100,
		MaxInteractions:  200,
		MaxScenes:        100,
	}
}

// withDefaults fills zero-valued limits from the defaults so a partial
// config section never disables a budget.
func (b Budgets) withDefaults() Budgets {
	def := DefaultBudgets()
	if b.MaxPayloadBytes <= 0 {
		b.MaxPayloadBytes = def.MaxPayloadBytes
	}
	if b.MaxDepth <= 0 {
		b.MaxDepth = def.MaxDepth
	}
	if b.MaxIDLen <= 0 {
		b.MaxIDLen = def.MaxIDLen
	}
	if b.MaxTitleLen <= 0 {
		b.MaxTitleLen = def.MaxTitleLen
	}
	if b.MaxTextLen <= 0 {
		b.MaxTextLen = def.MaxTextLen
	}
	if b.MaxQuestions <= 0 {
		b.MaxQuestions = def.MaxQuestions
	}
	if b.MaxOptions <= 0 {
		b.MaxOptions = def.MaxOptions
	}
	if b.MinOptions <= 0 {
		b.MinOptions = def.MinOptions
	}
	if b.MaxSpeakers <= 0 {
		b.MaxSpeakers = def.MaxSpeakers
	}
	if b.MaxLines <= 0 {
		b.MaxLines = def.MaxLines
	}
	if b.MaxSceneEntities <= 0 {
		b.MaxSceneEntities = def.MaxSceneEntities
	}
	if b.MaxInteractions <= 0 {
		b.MaxInteractions = def.MaxInteractions
	}
	if b.MaxScenes <= 0 {
		b.MaxScenes = def.MaxScenes
	}
	return b
}

// jsonDepth measures the maximum nesting depth of a JSON document by
// streaming tokens, so oversized trees are never fully materialized.
func jsonDepth(raw []byte) int {
	dec := json.NewDecoder(bytes.NewReader(raw))
	depth, max := 0, 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return max
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > max {
					max = depth
				}
			case '}', ']':
				depth--
			}
		}
	}
}

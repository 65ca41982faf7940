package validation

import (
	"fmt"
	"strings"
)

// Mode selects how content-quality findings are reported.
type Mode string

const (
	// ModeStrict promotes quality findings to hard errors.
	ModeStrict Mode = "strict"
	// ModeLenient keeps quality findings as warnings.
	ModeLenient Mode = "lenient"
)

// ParseMode validates a raw severity mode string. Empty defaults to strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModeLenient:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown severity mode %q", s)
	}
}

// Policy bundles the severity mode with the moderation term list applied to
// free-text fields.
type Policy struct {
	mode   Mode
	banned []string
}

// NewPolicy constructs a policy, normalizing the banned-term list.
func NewPolicy(mode Mode, banned []string) Policy {
	if mode == "" {
		mode = ModeStrict
	}
	normalized := make([]string, 0, len(banned))
	for _, term := range banned {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		normalized = append(normalized, term)
	}
	return Policy{mode: mode, banned: normalized}
}

// Lenient reports whether quality findings downgrade to warnings.
func (p Policy) Lenient() bool { return p.mode == ModeLenient }

// BannedTerm returns the first banned term contained in text, if any.
func (p Policy) BannedTerm(text string) (string, bool) {
	if len(p.banned) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, term := range p.banned {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

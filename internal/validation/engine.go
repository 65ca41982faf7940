// Package validation implements the pure content validation engine: a
// deterministic transformation from a submission to a result, with no I/O and
// no shared state, safe to run from any number of workers.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumilearn/content-pipeline/internal/content"
)

// Engine validates submissions against the structural schema, the fixed
// budgets, and the content-quality policy.
type Engine struct {
	budgets Budgets
	policy  Policy
}

// NewEngine constructs an engine. Zero-valued budget fields are filled from
// the defaults.
func NewEngine(budgets Budgets, policy Policy) *Engine {
	return &Engine{budgets: budgets.withDefaults(), policy: policy}
}

// Budgets returns the effective limits, after defaulting.
func (e *Engine) Budgets() Budgets { return e.budgets }

// Validate checks a single submission and produces its result. Check groups
// run in order: structural and reference integrity, type/range, complexity
// budgets, then quality. Payload size and nesting depth gate everything,
// so an over-budget document is rejected before its tree is walked. The
// result carries sanitized content only when no hard error was found.
func (e *Engine) Validate(sub content.Submission) Result {
	rep := &report{policy: e.policy}

	if len(sub.Payload) > e.budgets.MaxPayloadBytes {
		rep.fail(KindSizeExceeded, "payload",
			fmt.Sprintf("serialized payload is %d bytes, budget is %d", len(sub.Payload), e.budgets.MaxPayloadBytes))
		return Result{Errors: rep.errors}
	}
	if depth := jsonDepth(sub.Payload); depth > e.budgets.MaxDepth {
		rep.fail(KindSizeExceeded, "payload",
			fmt.Sprintf("nesting depth %d exceeds budget of %d", depth, e.budgets.MaxDepth))
		return Result{Errors: rep.errors}
	}

	payload, err := content.DecodePayload(sub.Type, sub.Payload)
	if err != nil {
		rep.errors = append(rep.errors, decodeIssue(err))
		return Result{Errors: rep.errors}
	}

	var sanitized content.Payload
	switch p := payload.(type) {
	case content.QuizContent:
		sanitized = e.checkQuiz(p, rep)
	case content.DialogueContent:
		sanitized = e.checkDialogue(p, rep)
	case content.SceneContent:
		sanitized = e.checkScene(p, rep)
	case content.GameContent:
		sanitized = e.checkGame(p, rep)
	}

	res := Result{Errors: rep.errors, Warnings: rep.warnings}
	if len(rep.errors) == 0 {
		res.Valid = true
		if raw, err := json.Marshal(sanitized); err == nil {
			res.Sanitized = raw
		}
	}
	return res
}

// decodeIssue turns a payload decode failure into a located issue.
func decodeIssue(err error) Issue {
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
		path := typeErr.Field
		if path == "" {
			path = "payload"
		}
		return Issue{
			Path:    path,
			Kind:    KindInvalidType,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return Issue{Path: "payload", Kind: KindInvalidType, Message: "payload does not match the content schema: " + err.Error()}
}

// textField checks a required free-text field: present, not blank, within
// length bounds, and clean of flagged terms.
func (e *Engine) textField(rep *report, path, value string, maxLen int) {
	if value == "" {
		rep.failf(KindMissing, path, "required text is missing", "provide a non-empty value")
		return
	}
	if strings.TrimSpace(value) == "" {
		rep.quality(KindInvalidValue, path, "text is blank", "provide non-whitespace text")
		return
	}
	if maxLen > 0 && len(value) > maxLen {
		rep.fail(KindInvalidValue, path, fmt.Sprintf("text exceeds %d characters", maxLen))
		return
	}
	rep.scanText(path, value)
}

// optionalText checks a free-text field that may be absent.
func (e *Engine) optionalText(rep *report, path, value string, maxLen int) {
	if value == "" {
		return
	}
	if strings.TrimSpace(value) == "" {
		rep.quality(KindInvalidValue, path, "text is blank", "remove the field or provide text")
		return
	}
	if maxLen > 0 && len(value) > maxLen {
		rep.fail(KindInvalidValue, path, fmt.Sprintf("text exceeds %d characters", maxLen))
		return
	}
	rep.scanText(path, value)
}

// titleField checks a content title. Titles are a quality concern, so an
// empty title follows the severity policy instead of hard-failing.
func (e *Engine) titleField(rep *report, path, value string) {
	if strings.TrimSpace(value) == "" {
		rep.quality(KindMissing, path, "title is empty", "give the content a short descriptive title")
		return
	}
	if len(value) > e.budgets.MaxTitleLen {
		rep.fail(KindInvalidValue, path, fmt.Sprintf("title exceeds %d characters", e.budgets.MaxTitleLen))
		return
	}
	rep.scanText(path, value)
}

// idField checks a required identifier.
func (e *Engine) idField(rep *report, path, value string) {
	if value == "" {
		rep.fail(KindMissing, path, "identifier is required")
		return
	}
	if len(value) > e.budgets.MaxIDLen {
		rep.fail(KindInvalidValue, path, fmt.Sprintf("identifier exceeds %d characters", e.budgets.MaxIDLen))
	}
}

// enumField checks an optional enumerated string field.
func enumField(rep *report, path, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	rep.failf(KindInvalidValue, path,
		fmt.Sprintf("%q is not an accepted value", value),
		"use one of: "+strings.Join(allowed, ", "))
}

func clean(s string) string { return strings.TrimSpace(s) }

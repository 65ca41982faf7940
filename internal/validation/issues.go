package validation

import (
	"encoding/json"

	"github.com/lumilearn/content-pipeline/internal/optimize"
)

// IssueKind classifies a validation finding so callers can react
// programmatically instead of parsing messages.
type IssueKind string

const (
	KindMissing      IssueKind = "missing"
	KindInvalidType  IssueKind = "invalid_type"
	KindInvalidValue IssueKind = "invalid_value"
	KindReference    IssueKind = "reference_error"
	KindSizeExceeded IssueKind = "size_exceeded"
)

// Issue locates a single defect in the submitted content. Path is a dot-path
// into the payload (e.g. "questions[2].options").
type Issue struct {
	Path       string    `json:"path"`
	Kind       IssueKind `json:"kind"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Timings records per-stage durations for a processed submission.
type Timings struct {
	QueueMs    int64 `json:"queue_ms"`
	ValidateMs int64 `json:"validate_ms"`
	OptimizeMs int64 `json:"optimize_ms"`
	TotalMs    int64 `json:"total_ms"`
}

// Result is the terminal outcome of validating (and, when valid, packaging) a
// submission. Immutable once produced; the same value may later be served
// from the result cache with FromCache set on the served copy.
type Result struct {
	Valid     bool             `json:"valid"`
	Errors    []Issue          `json:"errors,omitempty"`
	Warnings  []Issue          `json:"warnings,omitempty"`
	Sanitized json.RawMessage  `json:"sanitized_content,omitempty"`
	Assets    *optimize.Assets `json:"optimized_assets,omitempty"`
	Timings   Timings          `json:"metrics"`
	FromCache bool             `json:"from_cache,omitempty"`
}

// report accumulates findings during a validation pass.
type report struct {
	errors   []Issue
	warnings []Issue
	policy   Policy
}

func (r *report) fail(kind IssueKind, path, msg string) {
	r.errors = append(r.errors, Issue{Path: path, Kind: kind, Message: msg})
}

func (r *report) failf(kind IssueKind, path, msg, suggestion string) {
	r.errors = append(r.errors, Issue{Path: path, Kind: kind, Message: msg, Suggestion: suggestion})
}

func (r *report) warn(kind IssueKind, path, msg string) {
	r.warnings = append(r.warnings, Issue{Path: path, Kind: kind, Message: msg})
}

// quality records a content-quality finding. Strict policy promotes it to a
// hard error; lenient policy keeps it as a warning.
func (r *report) quality(kind IssueKind, path, msg, suggestion string) {
	issue := Issue{Path: path, Kind: kind, Message: msg, Suggestion: suggestion}
	if r.policy.Lenient() {
		r.warnings = append(r.warnings, issue)
		return
	}
	r.errors = append(r.errors, issue)
}

// scanText runs the moderation term scan over a text field. Findings are
// advisory and stay warnings under every policy mode.
func (r *report) scanText(path, text string) {
	if term, found := r.policy.BannedTerm(text); found {
		r.warn(KindInvalidValue, path, "contains flagged term: "+term)
	}
}

// Package cache implements the result cache: fingerprint-addressed validation
// outcomes with a TTL, shielding the pipeline from re-validating content it
// has already seen.
package cache

import (
	"context"
	"time"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// Cache maps (fingerprint, contentType) to the last terminal validation
// result. Implementations must be safe for concurrent use, must never serve
// an entry past its TTL, and must never block a Put on a full cache.
type Cache interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type) (*validation.Result, bool, error)
	Put(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type, result *validation.Result, ttl time.Duration) error
	Delete(ctx context.Context, fp fingerprint.Fingerprint, ct content.Type) error
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Key builds the canonical cache key for a fingerprint/content-type pair.
// The content type is part of the key: the same payload submitted as a quiz
// and as a dialogue is two different logical jobs.
func Key(fp fingerprint.Fingerprint, ct content.Type) string {
	return "result:" + string(ct) + ":" + string(fp)
}

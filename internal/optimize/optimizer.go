// Package optimize turns sanitized content into deployable packaged assets.
package optimize

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"
)

// Assets describes the packaged form of a validated submission, handed to the
// downstream rendering/deployment stage.
type Assets struct {
	Encoding        string  `json:"encoding"`
	OriginalBytes   int     `json:"original_bytes"`
	CompressedBytes int     `json:"compressed_bytes"`
	Ratio           float64 `json:"compression_ratio"`
	Digest          string  `json:"digest"`
	Blob            []byte  `json:"blob"`
}

// Packager compresses sanitized content for deployment.
type Packager struct {
	level int
}

// NewPackager creates a Packager with the given gzip level. Levels outside
// the valid range fall back to the default level.
func NewPackager(level int) *Packager {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Packager{level: level}
}

// Package gzips the sanitized content and records size accounting. The
// context is honored between steps so an expired job deadline stops the stage
// instead of producing a result nobody will store.
func (p *Packager) Package(ctx context.Context, sanitized []byte) (*Assets, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sanitized) == 0 {
		return nil, fmt.Errorf("nothing to package: empty sanitized content")
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, p.level)
	if err != nil {
		return nil, fmt.Errorf("init gzip writer: %w", err)
	}
	if _, err := zw.Write(sanitized); err != nil {
		return nil, fmt.Errorf("compress content: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish compression: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob := buf.Bytes()
	sum := blake2b.Sum256(blob)

	return &Assets{
		Encoding:        "gzip",
		OriginalBytes:   len(sanitized),
		CompressedBytes: len(blob),
		Ratio:           float64(len(blob)) / float64(len(sanitized)),
		Digest:          hex.EncodeToString(sum[:]),
		Blob:            blob,
	}, nil
}

package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/lumilearn/content-pipeline/internal/store"
)

// DecodeJobCursor parses the opaque listing cursor: base64 of
// "<enqueued_at unix nanos>|<job_id>".
func DecodeJobCursor(cursorStr string) (*store.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var enqueuedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &enqueuedAt); err != nil {
		return nil, fmt.Errorf("invalid enqueued_at in cursor: %w", err)
	}

	return &store.Cursor{
		EnqueuedAt: time.Unix(0, enqueuedAt),
		JobID:      parts[1],
	}, nil
}

// EncodeJobCursor produces the opaque cursor for the next page.
func EncodeJobCursor(cursor *store.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.EnqueuedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}

// Package syncutil collects small sync helpers: opaque pull cursors and
// millisecond-timestamp formatting, adapted from the teacher's syncx
// package. No other package in this module imports it.
package syncutil

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PullCursor is the opaque pagination token returned to a pull caller so
// it can resume a changes feed without re-scanning already-seen rows.
// It pairs a millisecond timestamp with a tie-breaking UID, mirroring
// the teacher's cursor.go.
type PullCursor struct {
	Ms  int64
	UID uuid.UUID
}

// Encode renders c as an opaque base64 token of "<ms>|<uuid>".
func (c PullCursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.Ms, c.UID.String())
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by PullCursor.Encode.
func DecodeCursor(token string) (PullCursor, error) {
	if token == "" {
		return PullCursor{}, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return PullCursor{}, fmt.Errorf("syncutil: decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return PullCursor{}, fmt.Errorf("syncutil: malformed cursor %q", token)
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return PullCursor{}, fmt.Errorf("syncutil: malformed cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return PullCursor{}, fmt.Errorf("syncutil: malformed cursor uid: %w", err)
	}
	return PullCursor{Ms: ms, UID: id}, nil
}

// NowMs returns the current time as Unix milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// MsToTime converts a Unix-millisecond timestamp to a time.Time in UTC.
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// RFC3339FromMs formats a millisecond timestamp as RFC3339, used in
// diagnostic payloads and logs.
func RFC3339FromMs(ms int64) string {
	return MsToTime(ms).Format(time.RFC3339Nano)
}

package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/padraicbc/tracker/models"
)

// timestampLayouts are tried in order. Zone-less values are read as UTC,
// which is what reader devices emitting naive ISO-8601 send.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseTimestamp parses an ISO-8601 instant with optional fractional seconds.
// The result is UTC, truncated to the microsecond precision the store keeps.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not an ISO-8601 instant", ErrInvalidRequest, s)
}

// ParseRequest decodes a capture write payload. Every field is required.
func ParseRequest(raw []byte) (*models.Capture, error) {
	var req models.CaptureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %s", ErrInvalidRequest, err.Error())
	}
	switch {
	case req.AthleteID == nil:
		return nil, fmt.Errorf("%w: athlete_id is required", ErrInvalidRequest)
	case req.ReaderID == nil:
		return nil, fmt.Errorf("%w: reader_id is required", ErrInvalidRequest)
	case req.Timestamp == nil:
		return nil, fmt.Errorf("%w: timestamp is required", ErrInvalidRequest)
	}

	ts, err := ParseTimestamp(*req.Timestamp)
	if err != nil {
		return nil, err
	}
	return &models.Capture{
		AthleteID: *req.AthleteID,
		ReaderID:  *req.ReaderID,
		Timestamp: ts,
	}, nil
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Capture records one athlete passing one reader. At most one capture exists
// per (athlete_id, reader_id).
type Capture struct {
	bun.BaseModel `bun:"table:captures,alias:c"`

	ID        int64 `bun:"id,pk,autoincrement"`
	AthleteID int64 `bun:"athlete_id,notnull,unique:captures_athlete_reader"`
	ReaderID  int64 `bun:"reader_id,notnull,unique:captures_athlete_reader"`
	// Timestamp is supplied by the reader device.
	Timestamp time.Time `bun:"timestamp,notnull"`
	// Captured is assigned by the server at commit and only used for catch-up filtering.
	Captured time.Time `bun:"captured,notnull"`

	Athlete *Athlete `bun:"rel:belongs-to,join:athlete_id=id"`
	Reader  *Reader  `bun:"rel:belongs-to,join:reader_id=id"`
}

// CaptureRequest is the write shape accepted by POST /captures. Pointer
// fields distinguish missing values from zero values.
type CaptureRequest struct {
	AthleteID *int64  `json:"athlete_id"`
	ReaderID  *int64  `json:"reader_id"`
	Timestamp *string `json:"timestamp"`
}

// CaptureView is the read shape of a capture. It embeds the athlete for
// display and references the reader by id only.
type CaptureView struct {
	ID        int64       `json:"id"`
	Athlete   AthleteView `json:"athlete"`
	ReaderID  int64       `json:"reader_id"`
	Timestamp time.Time   `json:"timestamp"`
	Captured  time.Time   `json:"captured"`
}

// View converts c to its read shape. c.Athlete must be loaded.
func (c *Capture) View() CaptureView {
	v := CaptureView{
		ID:        c.ID,
		ReaderID:  c.ReaderID,
		Timestamp: c.Timestamp.UTC(),
		Captured:  c.Captured.UTC(),
	}
	if c.Athlete != nil {
		v.Athlete = c.Athlete.View()
	}
	return v
}

// CaptureViews converts a slice of captures, never returning nil.
func CaptureViews(captures []Capture) []CaptureView {
	out := make([]CaptureView, len(captures))
	for i := range captures {
		out[i] = captures[i].View()
	}
	return out
}

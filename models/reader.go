package models

import "github.com/uptrace/bun"

// Reader is a fixed checkpoint device. Position orders readers along the
// course; it is a rank, not necessarily a distance.
type Reader struct {
	bun.BaseModel `bun:"table:readers,alias:r"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Position int    `bun:"position,notnull,unique"`
	Name     string `bun:"name,notnull"`
	EventID  int64  `bun:"event_id,notnull"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id"`
}

// ReaderView is the read shape of a reader.
type ReaderView struct {
	ID       int64  `json:"id"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	EventID  int64  `json:"event_id"`
}

// View converts r to its read shape.
func (r *Reader) View() ReaderView {
	return ReaderView{ID: r.ID, Position: r.Position, Name: r.Name, EventID: r.EventID}
}

// ReaderViews converts a slice of readers, never returning nil.
func ReaderViews(readers []Reader) []ReaderView {
	out := make([]ReaderView, len(readers))
	for i := range readers {
		out[i] = readers[i].View()
	}
	return out
}

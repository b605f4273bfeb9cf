package models

import "github.com/uptrace/bun"

// Athlete is an event participant identified by bib number.
type Athlete struct {
	bun.BaseModel `bun:"table:athletes,alias:a"`

	ID     int64  `bun:"id,pk,autoincrement"`
	Number int    `bun:"number,notnull,unique"`
	Name   string `bun:"name,notnull"`
}

// AthleteView is the read shape of an athlete.
type AthleteView struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Name   string `json:"name"`
}

// View converts a to its read shape.
func (a *Athlete) View() AthleteView {
	return AthleteView{ID: a.ID, Number: a.Number, Name: a.Name}
}

// AthleteViews converts a slice of athletes, never returning nil.
func AthleteViews(athletes []Athlete) []AthleteView {
	out := make([]AthleteView, len(athletes))
	for i := range athletes {
		out[i] = athletes[i].View()
	}
	return out
}

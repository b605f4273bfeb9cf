// Package seed resets the store to a demo event: one event, a two-reader
// finish corridor and a field of athletes with sporty bib numbers.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

// Bib numbers are drawn from [MinBib, MaxBib).
const (
	MinBib          = 1000
	MaxBib          = 9999
	DefaultAthletes = 100
)

// RosterQuery selects athletes from an external roster database.
const RosterQuery = "SELECT number, name FROM athletes ORDER BY number"

// Result is what Run created.
type Result struct {
	Event    models.Event
	Readers  []models.Reader
	Athletes int
}

// Generate returns n athletes with random full names and distinct bibs.
func Generate(faker *gofakeit.Faker, n int) ([]models.Athlete, error) {
	if n < 0 || n > MaxBib-MinBib {
		return nil, fmt.Errorf("seed: cannot draw %d distinct bibs from [%d, %d)", n, MinBib, MaxBib)
	}

	used := make(map[int]struct{}, n)
	athletes := make([]models.Athlete, 0, n)
	for len(athletes) < n {
		number := faker.IntRange(MinBib, MaxBib-1)
		if _, ok := used[number]; ok {
			continue
		}
		used[number] = struct{}{}
		athletes = append(athletes, models.Athlete{Number: number, Name: faker.Name()})
	}
	return athletes, nil
}

// LoadRoster reads athletes from db using RosterQuery.
func LoadRoster(ctx context.Context, db *sql.DB) ([]models.Athlete, error) {
	rows, err := db.QueryContext(ctx, RosterQuery)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var athletes []models.Athlete
	for rows.Next() {
		var a models.Athlete
		if err := rows.Scan(&a.Number, &a.Name); err != nil {
			return nil, fmt.Errorf("scan roster: %w", err)
		}
		a.Name = strings.TrimSpace(a.Name)
		athletes = append(athletes, a)
	}
	return athletes, rows.Err()
}

// Run empties the store and writes the demo event with athletes in one
// transaction, so a failure leaves the previous data untouched.
func Run(ctx context.Context, st *store.Store, athletes []models.Athlete) (Result, error) {
	var res Result
	err := st.RunInTx(ctx, func(ctx context.Context, tx *store.Store) error {
		res = Result{}
		if err := tx.Reset(ctx); err != nil {
			return err
		}
		if err := tx.CreateEvent(ctx, &res.Event); err != nil {
			return err
		}

		res.Readers = []models.Reader{
			{Position: 0, Name: "Finish corridor start", EventID: res.Event.ID},
			{Position: 1000, Name: "Finish corridor end", EventID: res.Event.ID},
		}
		for i := range res.Readers {
			if err := tx.CreateReader(ctx, &res.Readers[i]); err != nil {
				return err
			}
		}

		if err := tx.CreateAthletes(ctx, athletes); err != nil {
			return err
		}
		res.Athletes = len(athletes)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

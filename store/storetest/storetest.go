// Package storetest opens throwaway SQLite stores seeded with the
// two-reader, two-athlete fixture used across package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/padraicbc/tracker/db"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

// Fixture holds the seeded records.
type Fixture struct {
	Event  models.Event
	Start  models.Reader
	Finish models.Reader
	John   models.Athlete
	Jane   models.Athlete
}

// Open returns an empty store backed by a file in t.TempDir. The database is
// closed when the test ends.
func Open(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()
	bdb := db.OpenSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	t.Cleanup(func() { _ = bdb.Close() })
	if err := db.CreateTables(ctx, bdb); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return store.New(bdb)
}

// Seed inserts one event, readers Start (position 0) and Finish (position 1)
// and athletes John Doe (#1234) and Jane Doe (#4321).
func Seed(t testing.TB, s *store.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	var f Fixture
	if err := s.CreateEvent(ctx, &f.Event); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	f.Start = models.Reader{Position: 0, Name: "Start", EventID: f.Event.ID}
	f.Finish = models.Reader{Position: 1, Name: "Finish", EventID: f.Event.ID}
	for _, r := range []*models.Reader{&f.Start, &f.Finish} {
		if err := s.CreateReader(ctx, r); err != nil {
			t.Fatalf("seed reader: %v", err)
		}
	}
	f.John = models.Athlete{Number: 1234, Name: "John Doe"}
	f.Jane = models.Athlete{Number: 4321, Name: "Jane Doe"}
	for _, a := range []*models.Athlete{&f.John, &f.Jane} {
		if err := s.CreateAthlete(ctx, a); err != nil {
			t.Fatalf("seed athlete: %v", err)
		}
	}
	return f
}

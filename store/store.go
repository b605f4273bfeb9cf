// Package store is the entity store for events, readers, athletes, captures
// and users. Writes run in transactions; constraint failures surface as
// ErrConstraint and lookup misses as ErrNotFound.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/padraicbc/tracker/db"
	"github.com/padraicbc/tracker/models"
)

// Store wraps a bun database handle. Inside RunInTx db is the transaction.
type Store struct {
	root *bun.DB
	db   bun.IDB
}

// New creates a Store over db.
func New(db *bun.DB) *Store {
	return &Store{root: db, db: db}
}

// DB exposes the underlying handle for setup code.
func (s *Store) DB() *bun.DB { return s.root }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.root.PingContext(ctx)
}

// RunInTx runs fn with a Store bound to one transaction. Nothing fn wrote is
// kept unless it returns nil. Transactions opened by Store methods inside fn
// become savepoints.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{root: s.root, db: tx})
	})
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case db.IsConstraintViolation(err):
		return fmt.Errorf("%s: %w: %s", op, ErrConstraint, err.Error())
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// CreateEvent inserts e and sets its id.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.db.NewInsert().Model(e).Exec(ctx)
	return wrap("create event", err)
}

// CreateReader inserts r and sets its id.
func (s *Store) CreateReader(ctx context.Context, r *models.Reader) error {
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return wrap("create reader", err)
}

// CreateAthletes inserts all athletes in one transaction.
func (s *Store) CreateAthletes(ctx context.Context, athletes []models.Athlete) error {
	if len(athletes) == 0 {
		return nil
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&athletes).Exec(ctx)
		return err
	})
	return wrap("create athletes", err)
}

// CreateAthlete inserts a and sets its id.
func (s *Store) CreateAthlete(ctx context.Context, a *models.Athlete) error {
	_, err := s.db.NewInsert().Model(a).Exec(ctx)
	return wrap("create athlete", err)
}

// InsertCapture inserts c and loads its athlete in the same transaction.
// Missing athletes or readers and duplicate (athlete, reader) pairs fail
// with ErrConstraint and leave no row behind.
func (s *Store) InsertCapture(ctx context.Context, c *models.Capture) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
			return err
		}
		athlete := new(models.Athlete)
		if err := tx.NewSelect().Model(athlete).Where("a.id = ?", c.AthleteID).Scan(ctx); err != nil {
			return err
		}
		c.Athlete = athlete
		return nil
	})
	return wrap("insert capture", err)
}

// Athlete returns the athlete with the given id.
func (s *Store) Athlete(ctx context.Context, id int64) (*models.Athlete, error) {
	a := new(models.Athlete)
	err := s.db.NewSelect().Model(a).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrap("get athlete", err)
	}
	return a, nil
}

// Athletes returns all athletes ordered by id.
func (s *Store) Athletes(ctx context.Context) ([]models.Athlete, error) {
	var athletes []models.Athlete
	err := s.db.NewSelect().Model(&athletes).OrderExpr("a.id ASC").Scan(ctx)
	return athletes, wrap("list athletes", err)
}

// Reader returns the reader with the given id.
func (s *Store) Reader(ctx context.Context, id int64) (*models.Reader, error) {
	r := new(models.Reader)
	err := s.db.NewSelect().Model(r).Where("r.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrap("get reader", err)
	}
	return r, nil
}

// Readers returns all readers ordered by position.
func (s *Store) Readers(ctx context.Context) ([]models.Reader, error) {
	var readers []models.Reader
	err := s.db.NewSelect().Model(&readers).OrderExpr("r.position ASC").Scan(ctx)
	return readers, wrap("list readers", err)
}

// Capture returns the capture with the given id and its athlete.
func (s *Store) Capture(ctx context.Context, id int64) (*models.Capture, error) {
	c := new(models.Capture)
	err := s.db.NewSelect().Model(c).Relation("Athlete").Where("c.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, wrap("get capture", err)
	}
	return c, nil
}

// Captures returns every capture with its athlete in commit order.
func (s *Store) Captures(ctx context.Context) ([]models.Capture, error) {
	return s.captures(ctx, nil)
}

// CapturesSince returns captures committed strictly after since, in commit order.
func (s *Store) CapturesSince(ctx context.Context, since time.Time) ([]models.Capture, error) {
	since = since.UTC()
	return s.captures(ctx, &since)
}

func (s *Store) captures(ctx context.Context, since *time.Time) ([]models.Capture, error) {
	var captures []models.Capture
	q := s.db.NewSelect().
		Model(&captures).
		Relation("Athlete").
		OrderExpr("c.captured ASC, c.id ASC")
	if since != nil {
		q = q.Where("c.captured > ?", *since)
	}
	err := q.Scan(ctx)
	return captures, wrap("list captures", err)
}

// CountCaptures returns the number of stored captures.
func (s *Store) CountCaptures(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*models.Capture)(nil)).Count(ctx)
	return n, wrap("count captures", err)
}

// UserByName returns the user with the given username.
func (s *Store) UserByName(ctx context.Context, username string) (*models.User, error) {
	u := new(models.User)
	err := s.db.NewSelect().Model(u).Where("u.username = ?", username).Scan(ctx)
	if err != nil {
		return nil, wrap("get user", err)
	}
	return u, nil
}

// UpsertUser inserts u or replaces the password of an existing user with the same name.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.NewInsert().Model(u).
		On("CONFLICT (username) DO UPDATE").
		Set("password = EXCLUDED.password").
		Exec(ctx)
	return wrap("upsert user", err)
}

// Reset empties captures, readers, events and athletes. Users are kept.
func (s *Store) Reset(ctx context.Context) error {
	tables := []any{
		(*models.Capture)(nil),
		(*models.Reader)(nil),
		(*models.Event)(nil),
		(*models.Athlete)(nil),
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, m := range tables {
			if _, err := tx.NewDelete().Model(m).Where("1 = 1").Exec(ctx); err != nil {
				return fmt.Errorf("clearing %T: %w", m, err)
			}
		}
		return nil
	})
	return wrap("reset", err)
}

// LastCaptured returns the newest captured instant, or the zero time when no
// captures exist.
func (s *Store) LastCaptured(ctx context.Context) (time.Time, error) {
	c := new(models.Capture)
	err := s.db.NewSelect().Model(c).
		Column("c.captured").
		OrderExpr("c.captured DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, wrap("last captured", err)
	}
	return c.Captured.UTC(), nil
}

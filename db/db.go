package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/padraicbc/tracker/config"
	"github.com/padraicbc/tracker/models"
)

// sqlitePragmas run on every new SQLite connection before it is handed to the pool.
// SQLite keeps foreign key enforcement off unless each connection turns it on.
var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
}

// Setup opens the configured database and exits the process on failure.
func Setup(cfg *config.Config) *bun.DB {
	db, err := Open(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	return db
}

// Open connects to PostgreSQL or SQLite depending on cfg.DBDriver and verifies the connection.
func Open(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.DBDriver {
	case config.DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
		db = bun.NewDB(sqldb, pgdialect.New())
	case config.DriverSQLite:
		db = OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite returns a bun DB over an SQLite file whose connections all run sqlitePragmas.
func OpenSQLite(path string) *bun.DB {
	sqldb := sql.OpenDB(&sqliteConnector{
		dsn:     path,
		driver:  &sqlite.Driver{},
		pragmas: sqlitePragmas,
	})
	return bun.NewDB(sqldb, sqlitedialect.New())
}

type sqliteConnector struct {
	dsn     string
	driver  driver.Driver
	pragmas []string
}

func (c *sqliteConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		_ = conn.Close()
		return nil, errors.New("sqlite connection does not support exec")
	}
	for _, p := range c.pragmas {
		if _, err := execer.ExecContext(ctx, p, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return conn, nil
}

func (c *sqliteConnector) Driver() driver.Driver { return c.driver }

type table struct {
	model       any
	foreignKeys []string
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []table{
		{model: (*models.User)(nil)},
		{model: (*models.Event)(nil)},
		{model: (*models.Athlete)(nil)},
		{
			model:       (*models.Reader)(nil),
			foreignKeys: []string{`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`},
		},
		{
			model: (*models.Capture)(nil),
			foreignKeys: []string{
				`("athlete_id") REFERENCES "athletes" ("id") ON DELETE CASCADE`,
				`("reader_id") REFERENCES "readers" ("id") ON DELETE CASCADE`,
			},
		},
	}

	for _, t := range tables {
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", t.model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Capture)(nil)).
		Index("captures_captured_idx").
		Column("captured").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("creating captures_captured_idx: %w", err)
	}

	return nil
}

// IsConstraintViolation reports whether err is a foreign key, unique or
// not-null violation raised by either supported driver.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}

	return false
}

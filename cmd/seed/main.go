// cmd/seed/main.go
// Replaces all event data with a demo event: one event, a finish corridor of
// two readers and a field of athletes. Users are kept.
//
// Usage:
//
//	go run ./cmd/seed -n 100
//	ROSTER_DSN="user:pass@tcp(host:3306)/club" go run ./cmd/seed
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"github.com/brianvoe/gofakeit/v7"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/padraicbc/tracker/config"
	bundb "github.com/padraicbc/tracker/db"
	applog "github.com/padraicbc/tracker/logger"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/seed"
	"github.com/padraicbc/tracker/store"
)

func main() {
	n := flag.Int("n", seed.DefaultAthletes, "number of generated athletes")
	rng := flag.Uint64("seed", 0, "random seed for generated athletes (0 picks one)")
	flag.Parse()

	ctx := context.Background()
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	bdb := bundb.Setup(cfg)
	defer bdb.Close()
	if err := bundb.CreateTables(ctx, bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	var athletes []models.Athlete
	if cfg.RosterDSN != "" {
		athletes, err = roster(ctx, cfg.RosterDSN)
		if err != nil {
			logger.Fatal("load roster failed", zap.Error(err))
		}
		logger.Info("roster loaded", zap.Int("athletes", len(athletes)))
	} else {
		athletes, err = seed.Generate(gofakeit.New(*rng), *n)
		if err != nil {
			logger.Fatal("generate athletes failed", zap.Error(err))
		}
	}

	res, err := seed.Run(ctx, store.New(bdb), athletes)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	logger.Info("seed complete",
		zap.Int64("event_id", res.Event.ID),
		zap.Int("readers", len(res.Readers)),
		zap.Int("athletes", res.Athletes),
	)
}

func roster(ctx context.Context, dsn string) ([]models.Athlete, error) {
	myDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	defer myDB.Close()
	myDB.SetMaxOpenConns(2)
	if err := myDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return seed.LoadRoster(ctx, myDB)
}

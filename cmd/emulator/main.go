// cmd/emulator/main.go
// Simulates reader devices: every athlete passes every reader in position
// order and each pass is posted to /captures after a normally distributed
// split time.
//
// Usage:
//
//	go run ./cmd/emulator -url http://127.0.0.1:5000 -mu 40s -sigma 20s
package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/tracker/emulator"
	applog "github.com/padraicbc/tracker/logger"
)

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:5000", "tracker base url")
	username := flag.String("username", "username", "writer username")
	password := flag.String("password", "password", "writer password")
	mu := flag.Duration("mu", emulator.DefaultMu, "mean split time between readers")
	sigma := flag.Duration("sigma", emulator.DefaultSigma, "split time standard deviation")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	logger, err := applog.New(*debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := emulator.NewClient(*baseURL, *username, *password, 30*time.Second)
	if err != nil {
		logger.Fatal("client", zap.Error(err))
	}
	athletes, err := c.Athletes(ctx)
	if err != nil {
		logger.Fatal("fetch athletes failed", zap.Error(err))
	}
	readers, err := c.Readers(ctx)
	if err != nil {
		logger.Fatal("fetch readers failed", zap.Error(err))
	}

	shots := emulator.Plan(athletes, readers, *mu, *sigma, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	logger.Info("race started", zap.Int("athletes", len(athletes)), zap.Int("readers", len(readers)), zap.Int("shots", len(shots)))

	stats := emulator.Run(ctx, c, shots, logger)
	logger.Info("race finished",
		zap.Int64("accepted", stats.Accepted),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("failed", stats.Failed),
	)
}

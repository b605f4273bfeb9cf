// Package emulator simulates a field of athletes running past the readers
// and firing a capture at each one, to load the tracker the way real reader
// devices do.
package emulator

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/tracker/models"
)

// Defaults for split times between consecutive readers.
const (
	DefaultMu    = 40 * time.Second
	DefaultSigma = 20 * time.Second
)

// maxResample bounds redraws of a non-positive split before falling back to
// the smallest positive delay.
const maxResample = 100

// Shot is one scheduled capture.
type Shot struct {
	Athlete models.AthleteView
	Reader  models.ReaderView
	Delay   time.Duration
}

// Stats counts what Run sent.
type Stats struct {
	Accepted int64
	Rejected int64
	Failed   int64
}

// Plan schedules one shot per athlete per reader. Readers are visited in
// ascending position and each split is drawn from N(mu, sigma), so every
// athlete's shots are strictly increasing in delay.
func Plan(athletes []models.AthleteView, readers []models.ReaderView, mu, sigma time.Duration, rng *rand.Rand) []Shot {
	ordered := append([]models.ReaderView(nil), readers...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	shots := make([]Shot, 0, len(athletes)*len(ordered))
	for _, a := range athletes {
		var at time.Duration
		for _, r := range ordered {
			at += split(mu, sigma, rng)
			shots = append(shots, Shot{Athlete: a, Reader: r, Delay: at})
		}
	}
	return shots
}

func split(mu, sigma time.Duration, rng *rand.Rand) time.Duration {
	for range maxResample {
		d := time.Duration(rng.NormFloat64()*float64(sigma) + float64(mu))
		if d > 0 {
			return d
		}
	}
	return 1
}

// Run fires every shot from its own goroutine after its delay and waits for
// all of them. Failed posts are counted, never retried.
func Run(ctx context.Context, c *Client, shots []Shot, log *zap.Logger) Stats {
	var (
		wg    sync.WaitGroup
		stats Stats
	)
	for _, s := range shots {
		wg.Add(1)
		go func(s Shot) {
			defer wg.Done()

			t := time.NewTimer(s.Delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			now := time.Now()
			status, err := c.Submit(ctx, s.Athlete.ID, s.Reader.ID, now)
			fields := []zap.Field{
				zap.String("reader", s.Reader.Name),
				zap.Time("timestamp", now.UTC()),
				zap.String("athlete", s.Athlete.Name),
			}
			switch {
			case err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				log.Warn("capture failed", append(fields, zap.Error(err))...)
			case status == http.StatusAccepted:
				atomic.AddInt64(&stats.Accepted, 1)
				log.Info("capture sent", fields...)
			default:
				atomic.AddInt64(&stats.Rejected, 1)
				log.Warn("capture rejected", append(fields, zap.Int("status", status))...)
			}
		}(s)
	}
	wg.Wait()
	return stats
}

// Package ingest accepts capture reports from reader devices, commits them
// to the store and hands committed captures to the live broadcast hub.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/metrics"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

// Authenticator verifies submitter credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds auth.Credentials) (string, error)
}

// CaptureStore persists captures atomically with their constraint checks.
type CaptureStore interface {
	InsertCapture(ctx context.Context, c *models.Capture) error
}

// Publisher accepts committed captures for fan-out. It must not block and
// reports false when the capture could not be queued.
type Publisher interface {
	Publish(v models.CaptureView) bool
}

// Service is the capture ingestion service. Submissions run concurrently;
// only the commit section is serialized so that captured instants increase
// strictly in commit order and captures are published in that order.
type Service struct {
	auth  Authenticator
	store CaptureStore
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLastCaptured seeds the commit clock with the newest stored captured
// instant so a restarted process never assigns an earlier one.
func WithLastCaptured(t time.Time) Option {
	return func(s *Service) { s.last = t.UTC() }
}

// NewService creates a Service.
func NewService(a Authenticator, st CaptureStore, pub Publisher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		auth:  a,
		store: st,
		pub:   pub,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit authenticates, validates and commits one capture report and
// returns its read view. Broadcast is best effort and never fails a
// committed submission.
func (s *Service) Submit(ctx context.Context, raw []byte, creds auth.Credentials) (models.CaptureView, error) {
	const op = "submit capture"

	user, err := s.auth.Authenticate(ctx, creds)
	if errors.Is(err, ErrUnauthorized) {
		metrics.RecordCaptureRejected("unauthorized")
		return models.CaptureView{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if err != nil {
		metrics.RecordCaptureRejected("internal")
		return models.CaptureView{}, fmt.Errorf("%s: %w", op, err)
	}

	capture, err := ParseRequest(raw)
	if err != nil {
		metrics.RecordCaptureRejected("invalid_request")
		return models.CaptureView{}, fmt.Errorf("%s: %w", op, err)
	}

	view, err := s.commit(ctx, capture)
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			metrics.RecordCaptureRejected("unprocessable_entity")
			s.log.Info("capture rejected",
				zap.String("user", user),
				zap.Int64("athlete_id", capture.AthleteID),
				zap.Int64("reader_id", capture.ReaderID),
				zap.Error(err),
			)
			return models.CaptureView{}, fmt.Errorf("%s: %w: %s", op, ErrUnprocessable, err.Error())
		}
		metrics.RecordCaptureRejected("internal")
		return models.CaptureView{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordCaptureAccepted()
	s.log.Debug("capture accepted",
		zap.String("user", user),
		zap.Int64("id", view.ID),
		zap.Int64("athlete_id", view.Athlete.ID),
		zap.Int64("reader_id", view.ReaderID),
	)
	return view, nil
}

func (s *Service) commit(ctx context.Context, c *models.Capture) (models.CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Captured = s.nextCaptured()
	if err := s.store.InsertCapture(ctx, c); err != nil {
		return models.CaptureView{}, err
	}
	s.last = c.Captured

	view := c.View()
	s.publish(view)
	return view, nil
}

// nextCaptured returns the current instant, bumped past the previous commit
// when the clock has not advanced.
func (s *Service) nextCaptured() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	return t
}

func (s *Service) publish(v models.CaptureView) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("broadcast panicked", zap.Int64("capture_id", v.ID), zap.Any("panic", r))
		}
	}()
	if !s.pub.Publish(v) {
		metrics.RecordBroadcastDropped("queue_full")
		s.log.Warn("broadcast not queued", zap.Int64("capture_id", v.ID))
	}
}

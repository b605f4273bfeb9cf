package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/ingest"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store/storetest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	views  []models.CaptureView
	refuse bool
}

func (p *recordingPublisher) Publish(v models.CaptureView) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refuse {
		return false
	}
	p.views = append(p.views, v)
	return true
}

func (p *recordingPublisher) published() []models.CaptureView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.CaptureView(nil), p.views...)
}

var writer = auth.Credentials{Username: "username", Password: "password"}

func body(athleteID, readerID int64, ts string) []byte {
	return []byte(fmt.Sprintf(`{"athlete_id": %d, "reader_id": %d, "timestamp": %q}`, athleteID, readerID, ts))
}

func TestSubmit(t *testing.T) {
	Convey("Given an ingestion service over a seeded store", t, func() {
		ctx := context.Background()
		s := storetest.Open(t)
		f := storetest.Seed(t, s)
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		So(s.UpsertUser(ctx, &models.User{Username: "username", Password: string(hash)}), ShouldBeNil)

		pub := &recordingPublisher{}
		svc := ingest.NewService(auth.NewAuthenticator(s, []byte("key")), s, pub, zaptest.NewLogger(t))

		Convey("A valid submission commits, embeds the athlete and is published once", func() {
			view, err := svc.Submit(ctx, body(f.John.ID, f.Start.ID, "2024-05-01T10:00:00.123456Z"), writer)
			So(err, ShouldBeNil)
			So(view.ID, ShouldBeGreaterThan, 0)
			So(view.Athlete, ShouldResemble, f.John.View())
			So(view.ReaderID, ShouldEqual, f.Start.ID)
			So(view.Timestamp.Format(time.RFC3339Nano), ShouldEqual, "2024-05-01T10:00:00.123456Z")
			So(view.Captured.IsZero(), ShouldBeFalse)
			So(pub.published(), ShouldResemble, []models.CaptureView{view})

			stored, err := s.Capture(ctx, view.ID)
			So(err, ShouldBeNil)
			So(stored.View(), ShouldResemble, view)
		})

		Convey("Bad credentials are rejected before touching storage", func() {
			for _, creds := range []auth.Credentials{{}, {Username: "username", Password: "wrong"}, {Token: "bogus"}} {
				_, err := svc.Submit(ctx, body(f.John.ID, f.Start.ID, "2024-05-01T10:00:00Z"), creds)
				So(errors.Is(err, ingest.ErrUnauthorized), ShouldBeTrue)
			}
			n, err := s.CountCaptures(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			So(pub.published(), ShouldBeEmpty)
		})

		Convey("Malformed payloads are invalid requests", func() {
			payloads := []string{
				``,
				`not json`,
				`[]`,
				`{"reader_id": 1, "timestamp": "2024-05-01T10:00:00Z"}`,
				`{"athlete_id": 1, "timestamp": "2024-05-01T10:00:00Z"}`,
				`{"athlete_id": 1, "reader_id": 1}`,
				`{"athlete_id": "1", "reader_id": 1, "timestamp": "2024-05-01T10:00:00Z"}`,
				`{"athlete_id": 1, "reader_id": 1, "timestamp": "yesterday"}`,
			}
			for _, p := range payloads {
				_, err := svc.Submit(ctx, []byte(p), writer)
				So(errors.Is(err, ingest.ErrInvalidRequest), ShouldBeTrue)
			}
			n, err := s.CountCaptures(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("Dangling references are unprocessable", func() {
			_, err := svc.Submit(ctx, body(999, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
			So(errors.Is(err, ingest.ErrUnprocessable), ShouldBeTrue)
			_, err = svc.Submit(ctx, body(f.John.ID, 999, "2024-05-01T10:00:00Z"), writer)
			So(errors.Is(err, ingest.ErrUnprocessable), ShouldBeTrue)
			So(pub.published(), ShouldBeEmpty)
		})

		Convey("A duplicate pair is unprocessable", func() {
			_, err := svc.Submit(ctx, body(f.Jane.ID, f.Finish.ID, "2024-05-01T10:00:00Z"), writer)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, body(f.Jane.ID, f.Finish.ID, "2024-05-01T10:00:01Z"), writer)
			So(errors.Is(err, ingest.ErrUnprocessable), ShouldBeTrue)
			So(len(pub.published()), ShouldEqual, 1)
		})

		Convey("A refused broadcast does not fail the committed write", func() {
			pub.refuse = true
			view, err := svc.Submit(ctx, body(f.Jane.ID, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
			So(err, ShouldBeNil)
			_, err = s.Capture(ctx, view.ID)
			So(err, ShouldBeNil)
		})

		Convey("A storage outage during authentication is an internal error", func() {
			So(s.DB().Close(), ShouldBeNil)
			_, err := svc.Submit(ctx, body(f.John.ID, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ingest.ErrUnauthorized), ShouldBeFalse)
			So(errors.Is(err, ingest.ErrInvalidRequest), ShouldBeFalse)
			So(errors.Is(err, ingest.ErrUnprocessable), ShouldBeFalse)
			So(pub.published(), ShouldBeEmpty)
		})

		Convey("A bearer token is accepted", func() {
			token, err := auth.NewAuthenticator(s, []byte("key")).IssueToken("username")
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, body(f.John.ID, f.Finish.ID, "2024-05-01T10:00:00Z"), auth.Credentials{Token: token})
			So(err, ShouldBeNil)
		})

		Convey("Concurrent distinct pairs all commit and publish in commit order", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 4)
			for _, a := range []int64{f.John.ID, f.Jane.ID} {
				for _, r := range []int64{f.Start.ID, f.Finish.ID} {
					wg.Add(1)
					go func(a, r int64) {
						defer wg.Done()
						_, err := svc.Submit(ctx, body(a, r, "2024-05-01T10:00:00Z"), writer)
						errs <- err
					}(a, r)
				}
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				So(err, ShouldBeNil)
			}

			published := pub.published()
			So(len(published), ShouldEqual, 4)
			for i := 1; i < len(published); i++ {
				So(published[i].Captured.After(published[i-1].Captured), ShouldBeTrue)
			}

			stored, err := s.Captures(ctx)
			So(err, ShouldBeNil)
			So(models.CaptureViews(stored), ShouldResemble, published)
		})

		Convey("Concurrent duplicates commit exactly once", func() {
			const attempts = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			accepted, rejected := 0, 0
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Submit(ctx, body(f.John.ID, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						accepted++
					case errors.Is(err, ingest.ErrUnprocessable):
						rejected++
					}
				}()
			}
			wg.Wait()
			So(accepted, ShouldEqual, 1)
			So(rejected, ShouldEqual, attempts-1)

			n, err := s.CountCaptures(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}

func TestCommitClock(t *testing.T) {
	Convey("Given a clock that does not advance", t, func() {
		ctx := context.Background()
		s := storetest.Open(t)
		f := storetest.Seed(t, s)
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		So(s.UpsertUser(ctx, &models.User{Username: "username", Password: string(hash)}), ShouldBeNil)

		frozen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		pub := &recordingPublisher{}
		svc := ingest.NewService(auth.NewAuthenticator(s, []byte("key")), s, pub, zaptest.NewLogger(t),
			ingest.WithClock(func() time.Time { return frozen }),
			ingest.WithLastCaptured(frozen.Add(time.Second)),
		)

		Convey("Captured instants still increase strictly past the seeded last commit", func() {
			a, err := svc.Submit(ctx, body(f.John.ID, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
			So(err, ShouldBeNil)
			b, err := svc.Submit(ctx, body(f.Jane.ID, f.Start.ID, "2024-05-01T10:00:00Z"), writer)
			So(err, ShouldBeNil)

			So(a.Captured.Equal(frozen.Add(time.Second+time.Microsecond)), ShouldBeTrue)
			So(b.Captured.Equal(frozen.Add(time.Second+2*time.Microsecond)), ShouldBeTrue)

			since, err := s.CapturesSince(ctx, a.Captured)
			So(err, ShouldBeNil)
			So(len(since), ShouldEqual, 1)
			So(since[0].ID, ShouldEqual, b.ID)
		})
	})
}

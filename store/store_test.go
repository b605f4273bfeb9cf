package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
	"github.com/padraicbc/tracker/store/storetest"
)

func TestStore(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		s := storetest.Open(t)
		f := storetest.Seed(t, s)
		base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		Convey("Events get an id and a creation time", func() {
			So(f.Event.ID, ShouldBeGreaterThan, 0)
			e := models.Event{}
			So(s.CreateEvent(ctx, &e), ShouldBeNil)
			So(e.ID, ShouldBeGreaterThan, f.Event.ID)
			So(e.CreatedAt.IsZero(), ShouldBeFalse)
		})

		Convey("RunInTx keeps nothing when fn fails", func() {
			boom := errors.New("boom")
			err := s.RunInTx(ctx, func(ctx context.Context, tx *store.Store) error {
				if err := tx.Reset(ctx); err != nil {
					return err
				}
				if err := tx.CreateAthlete(ctx, &models.Athlete{Number: 5555, Name: "Temp"}); err != nil {
					return err
				}
				return boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)

			athletes, err := s.Athletes(ctx)
			So(err, ShouldBeNil)
			So(models.AthleteViews(athletes), ShouldResemble, []models.AthleteView{f.John.View(), f.Jane.View()})
			readers, err := s.Readers(ctx)
			So(err, ShouldBeNil)
			So(len(readers), ShouldEqual, 2)
		})

		Convey("RunInTx commits when fn succeeds", func() {
			err := s.RunInTx(ctx, func(ctx context.Context, tx *store.Store) error {
				return tx.CreateAthletes(ctx, []models.Athlete{{Number: 5555, Name: "Kept"}})
			})
			So(err, ShouldBeNil)
			athletes, err := s.Athletes(ctx)
			So(err, ShouldBeNil)
			So(len(athletes), ShouldEqual, 3)
		})

		Convey("Readers are listed by position", func() {
			readers, err := s.Readers(ctx)
			So(err, ShouldBeNil)
			So(len(readers), ShouldEqual, 2)
			So(readers[0].Name, ShouldEqual, "Start")
			So(readers[1].Name, ShouldEqual, "Finish")
			So(readers[0].EventID, ShouldEqual, f.Event.ID)
		})

		Convey("Athletes are listed and fetched by id", func() {
			athletes, err := s.Athletes(ctx)
			So(err, ShouldBeNil)
			So(models.AthleteViews(athletes), ShouldResemble, []models.AthleteView{f.John.View(), f.Jane.View()})

			a, err := s.Athlete(ctx, f.Jane.ID)
			So(err, ShouldBeNil)
			So(a.Number, ShouldEqual, 4321)
		})

		Convey("Missing ids are ErrNotFound", func() {
			_, err := s.Athlete(ctx, 999)
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			_, err = s.Reader(ctx, 999)
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			_, err = s.Capture(ctx, 999)
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			_, err = s.UserByName(ctx, "nobody")
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
		})

		Convey("InsertCapture loads the athlete and keeps fractional seconds", func() {
			ts := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)
			c := &models.Capture{AthleteID: f.John.ID, ReaderID: f.Start.ID, Timestamp: ts, Captured: base}
			So(s.InsertCapture(ctx, c), ShouldBeNil)
			So(c.ID, ShouldBeGreaterThan, 0)
			So(c.Athlete, ShouldNotBeNil)
			So(c.Athlete.Name, ShouldEqual, "John Doe")

			got, err := s.Capture(ctx, c.ID)
			So(err, ShouldBeNil)
			So(got.Timestamp.Equal(ts), ShouldBeTrue)
			So(got.View().Timestamp.Format(time.RFC3339Nano), ShouldEqual, "2024-05-01T10:00:00.123456Z")
			So(got.Athlete.View(), ShouldResemble, f.John.View())

			Convey("A second capture for the same pair is a constraint violation", func() {
				dup := &models.Capture{AthleteID: f.John.ID, ReaderID: f.Start.ID, Timestamp: ts, Captured: base.Add(time.Second)}
				err := s.InsertCapture(ctx, dup)
				So(errors.Is(err, store.ErrConstraint), ShouldBeTrue)

				n, err := s.CountCaptures(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("Dangling references are constraint violations and leave no row", func() {
			err := s.InsertCapture(ctx, &models.Capture{AthleteID: 999, ReaderID: f.Start.ID, Timestamp: base, Captured: base})
			So(errors.Is(err, store.ErrConstraint), ShouldBeTrue)
			err = s.InsertCapture(ctx, &models.Capture{AthleteID: f.John.ID, ReaderID: 999, Timestamp: base, Captured: base})
			So(errors.Is(err, store.ErrConstraint), ShouldBeTrue)

			n, err := s.CountCaptures(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("CapturesSince filters strictly after the instant in commit order", func() {
			pairs := []struct{ athlete, reader int64 }{
				{f.John.ID, f.Start.ID},
				{f.Jane.ID, f.Start.ID},
				{f.John.ID, f.Finish.ID},
			}
			for i, p := range pairs {
				c := &models.Capture{
					AthleteID: p.athlete,
					ReaderID:  p.reader,
					Timestamp: base,
					Captured:  base.Add(time.Duration(i+1) * 1500 * time.Millisecond),
				}
				So(s.InsertCapture(ctx, c), ShouldBeNil)
			}

			all, err := s.Captures(ctx)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 3)
			So(all[0].Captured.Before(all[1].Captured), ShouldBeTrue)
			So(all[1].Captured.Before(all[2].Captured), ShouldBeTrue)

			before, err := s.CapturesSince(ctx, base)
			So(err, ShouldBeNil)
			So(len(before), ShouldEqual, 3)

			mid, err := s.CapturesSince(ctx, base.Add(1500*time.Millisecond))
			So(err, ShouldBeNil)
			So(len(mid), ShouldEqual, 2)
			So(mid[0].Athlete.Name, ShouldEqual, "Jane Doe")

			after, err := s.CapturesSince(ctx, base.Add(time.Hour))
			So(err, ShouldBeNil)
			So(after, ShouldBeEmpty)
		})

		Convey("LastCaptured tracks the newest commit", func() {
			last, err := s.LastCaptured(ctx)
			So(err, ShouldBeNil)
			So(last.IsZero(), ShouldBeTrue)

			So(s.InsertCapture(ctx, &models.Capture{AthleteID: f.John.ID, ReaderID: f.Start.ID, Timestamp: base, Captured: base}), ShouldBeNil)
			So(s.InsertCapture(ctx, &models.Capture{AthleteID: f.Jane.ID, ReaderID: f.Start.ID, Timestamp: base, Captured: base.Add(time.Minute)}), ShouldBeNil)
			last, err = s.LastCaptured(ctx)
			So(err, ShouldBeNil)
			So(last.Equal(base.Add(time.Minute)), ShouldBeTrue)
		})

		Convey("UpsertUser replaces the password of an existing user", func() {
			So(s.UpsertUser(ctx, &models.User{Username: "reader1", Password: "hash-a"}), ShouldBeNil)
			So(s.UpsertUser(ctx, &models.User{Username: "reader1", Password: "hash-b"}), ShouldBeNil)
			u, err := s.UserByName(ctx, "reader1")
			So(err, ShouldBeNil)
			So(u.Password, ShouldEqual, "hash-b")
		})

		Convey("Reset clears everything but users", func() {
			So(s.UpsertUser(ctx, &models.User{Username: "reader1", Password: "hash"}), ShouldBeNil)
			So(s.InsertCapture(ctx, &models.Capture{AthleteID: f.John.ID, ReaderID: f.Start.ID, Timestamp: base, Captured: base}), ShouldBeNil)
			So(s.Reset(ctx), ShouldBeNil)

			athletes, err := s.Athletes(ctx)
			So(err, ShouldBeNil)
			So(athletes, ShouldBeEmpty)
			readers, err := s.Readers(ctx)
			So(err, ShouldBeNil)
			So(readers, ShouldBeEmpty)
			_, err = s.UserByName(ctx, "reader1")
			So(err, ShouldBeNil)
		})
	})
}

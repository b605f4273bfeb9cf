package models

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestViews(t *testing.T) {
	Convey("Given a capture with its athlete loaded", t, func() {
		ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.FixedZone("EEST", 3*60*60))
		c := Capture{
			ID:        7,
			AthleteID: 2,
			ReaderID:  1,
			Timestamp: ts,
			Captured:  ts.Add(time.Second),
			Athlete:   &Athlete{ID: 2, Number: 4321, Name: "Jane Doe"},
		}

		Convey("The view nests the athlete and hides athlete_id", func() {
			raw, err := json.Marshal(c.View())
			So(err, ShouldBeNil)
			So(string(raw), ShouldEqual,
				`{"id":7,"athlete":{"id":2,"number":4321,"name":"Jane Doe"},"reader_id":1,`+
					`"timestamp":"2024-05-01T09:00:00.123456Z","captured":"2024-05-01T09:00:01.123456Z"}`)
		})

		Convey("Slice conversions never return nil", func() {
			So(CaptureViews(nil), ShouldNotBeNil)
			So(AthleteViews(nil), ShouldNotBeNil)
			So(ReaderViews(nil), ShouldNotBeNil)
			So(CaptureViews([]Capture{c}), ShouldResemble, []CaptureView{c.View()})
		})
	})

	Convey("Given a reader", t, func() {
		r := Reader{ID: 3, Position: 1000, Name: "Finish", EventID: 1}
		raw, err := json.Marshal(r.View())
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, `{"id":3,"position":1000,"name":"Finish","event_id":1}`)
	})
}

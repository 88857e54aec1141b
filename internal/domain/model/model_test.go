package model_test

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/okian/picklist/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func validRequest() model.Request {
	return model.Request{
		Roster: []model.Team{
			{TeamNumber: 254, Nickname: "Cheesy Poofs", Stats: map[string]float64{"auto": 30}},
			{TeamNumber: 1678, Nickname: "Citrus Circuits", Stats: map[string]float64{"auto": 28}},
			{TeamNumber: 971, Nickname: "Spartan Robotics", Stats: map[string]float64{"auto": 20}},
		},
		YourTeamNumber: 971,
		PickPosition:   model.PickFirst,
		Priorities: []model.Priority{
			{MetricID: "auto", Weight: 2},
			{MetricID: "endgame", Weight: 1, Reason: "climb matters"},
		},
		ExcludeTeams: []int{971},
		UseBatching:  true,
		BatchSize:    20,
	}
}

func TestRequestValidate(t *testing.T) {
	Convey("Given a request", t, func() {
		req := validRequest()

		Convey("When it is well formed", func() {
			Convey("Then it validates", func() {
				So(req.Validate(), ShouldBeNil)
			})
		})

		cases := []struct {
			name   string
			mutate func(r *model.Request)
		}{
			{"empty roster", func(r *model.Request) { r.Roster = nil }},
			{"empty priorities", func(r *model.Request) { r.Priorities = nil }},
			{"zero batch size", func(r *model.Request) { r.BatchSize = 0 }},
			{"negative reference count", func(r *model.Request) { r.ReferenceCount = -1 }},
			{"unknown pick position", func(r *model.Request) { r.PickPosition = "fourth" }},
			{"unknown strategy", func(r *model.Request) { r.ReferenceStrategy = "random" }},
			{"negative weight", func(r *model.Request) { r.Priorities[0].Weight = -1 }},
			{"NaN weight", func(r *model.Request) { r.Priorities[0].Weight = math.NaN() }},
			{"empty metric", func(r *model.Request) { r.Priorities[0].MetricID = " " }},
			{"duplicate metric", func(r *model.Request) { r.Priorities[1].MetricID = "auto" }},
			{"duplicate team", func(r *model.Request) { r.Roster[2].TeamNumber = 254 }},
		}
		for _, tc := range cases {
			tc := tc
			Convey(fmt.Sprintf("When it has %s", tc.name), func() {
				tc.mutate(&req)
				err := req.Validate()

				Convey("Then it is rejected as a validation error", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				})
			})
		}

		Convey("When optional fields are empty", func() {
			req.PickPosition = ""
			req.ReferenceStrategy = ""
			So(req.Validate(), ShouldBeNil)
			req.Normalize()

			Convey("Then defaults are filled", func() {
				So(req.PickPosition, ShouldEqual, model.PickFirst)
				So(req.ReferenceStrategy, ShouldEqual, model.StrategyTopMiddleBottom)
			})
		})
	})
}

func TestRequestEligibility(t *testing.T) {
	Convey("Given a request with an excluded team", t, func() {
		req := validRequest()

		Convey("When listing eligible teams", func() {
			eligible := req.Eligible()

			Convey("Then the excluded team is dropped and order kept", func() {
				So(len(eligible), ShouldEqual, 2)
				So(eligible[0].TeamNumber, ShouldEqual, 254)
				So(eligible[1].TeamNumber, ShouldEqual, 1678)
			})
		})

		Convey("When the eligible roster fits in one batch", func() {
			Convey("Then it is not batched", func() {
				So(req.Batched(), ShouldBeFalse)
				req.BatchSize = 1
				So(req.Batched(), ShouldBeTrue)
				req.UseBatching = false
				So(req.Batched(), ShouldBeFalse)
			})
		})
	})
}

func TestRequestFingerprint(t *testing.T) {
	Convey("Given two equivalent requests", t, func() {
		a := validRequest()
		b := validRequest()
		b.Priorities = []model.Priority{a.Priorities[1], a.Priorities[0]}
		b.ExcludeTeams = []int{971, 971}
		b.BatchSize = 5

		Convey("When fingerprinting", func() {
			fa, fb := a.Fingerprint(), b.Fingerprint()

			Convey("Then priority order, duplicate exclusions and batch size do not matter", func() {
				So(fa, ShouldEqual, fb)
				So(len(fa), ShouldEqual, 64)
			})
		})

		Convey("When a keyed field changes", func() {
			base := a.Fingerprint()
			c := validRequest()
			c.PickPosition = model.PickSecond
			d := validRequest()
			d.Priorities[0].Weight = 3
			e := validRequest()
			e.Roster = e.Roster[:2]
			f := validRequest()
			f.YourTeamNumber = 254

			Convey("Then the fingerprint changes", func() {
				So(c.Fingerprint(), ShouldNotEqual, base)
				So(d.Fingerprint(), ShouldNotEqual, base)
				So(e.Fingerprint(), ShouldNotEqual, base)
				So(f.Fingerprint(), ShouldNotEqual, base)
			})
		})

		Convey("When the pick position is left empty", func() {
			c := validRequest()
			c.PickPosition = ""

			Convey("Then it matches the explicit default", func() {
				So(c.Fingerprint(), ShouldEqual, a.Fingerprint())
			})
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given model errors", t, func() {
		Convey("When wrapping a validation failure", func() {
			err := model.WithFingerprint(model.NewError("generate", model.ErrValidation, "bad"), "0123456789abcdef0123")

			Convey("Then kind and fingerprint are recoverable", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(model.KindOf(err), ShouldEqual, model.ErrValidation)
				So(model.FingerprintOf(err), ShouldEqual, "0123456789abcdef0123")
				So(err.Error(), ShouldContainSubstring, "0123456789ab…")
			})
		})

		Convey("When wrapping a plain error", func() {
			cause := errors.New("boom")
			err := model.WithFingerprint(cause, "fp")

			Convey("Then it is reported as internal and keeps the cause", func() {
				So(model.IsUnknown(model.KindOf(err)), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(model.FingerprintOf(err), ShouldEqual, "fp")
			})
		})

		Convey("When mapping kinds to API codes", func() {
			err := model.WrapError("batch", model.ErrTransport, errors.New("timeout"))

			Convey("Then codes round-trip", func() {
				So(model.CodeOf(err), ShouldEqual, model.CodeTransport)
				So(model.KindOfCode(model.CodeTransport), ShouldEqual, model.ErrTransport)
				So(model.CodeOf(errors.New("boom")), ShouldEqual, model.CodeInternal)
				So(model.IsUnknown(model.KindOfCode("nope")), ShouldBeTrue)
			})
		})

		Convey("When the error is nil", func() {
			So(model.WithFingerprint(nil, "fp"), ShouldBeNil)
		})

		Convey("When a transport error is wrapped twice", func() {
			inner := model.WrapError("batch", model.ErrTransport, errors.New("timeout"))
			err := fmt.Errorf("job: %w", inner)

			Convey("Then the kind survives", func() {
				So(model.KindOf(err), ShouldEqual, model.ErrTransport)
				So(strings.HasPrefix(inner.Error(), "batch: ranking model transport failed"), ShouldBeTrue)
			})
		})
	})
}

func TestCacheEntry(t *testing.T) {
	Convey("Given a processing entry", t, func() {
		now := time.Now()
		entry := model.CacheEntry{
			Status:      model.StatusProcessing,
			Progress:    model.Progress{Current: 1, Total: 4},
			Result:      []model.ScoredTeam{{TeamNumber: 1, IsFallback: true}, {TeamNumber: 2}},
			Calibration: &model.Calibration{References: []int{1}, BaselineScores: map[int]float64{1: 90}},
			UpdatedAt:   now.Add(-time.Minute),
		}

		Convey("Then progress and stall are derived", func() {
			So(entry.Progress.Percentage(), ShouldEqual, 25)
			So(model.Progress{}.Percentage(), ShouldEqual, 0)
			So(entry.IsStalled(now, 30*time.Second), ShouldBeTrue)
			So(entry.IsStalled(now, 2*time.Minute), ShouldBeFalse)
			So(entry.IsStalled(now, 0), ShouldBeFalse)
			So(entry.FallbackCount(), ShouldEqual, 1)
		})

		Convey("When cloning", func() {
			cp := entry.Clone()
			cp.Result[0].Score = 50
			cp.Calibration.BaselineScores[1] = 10

			Convey("Then the original is untouched", func() {
				So(entry.Result[0].Score, ShouldEqual, 0)
				So(entry.Calibration.BaselineScores[1], ShouldEqual, 90)
			})
		})

		Convey("Then terminal statuses are recognised", func() {
			So(model.StatusSuccess.Terminal(), ShouldBeTrue)
			So(model.StatusError.Terminal(), ShouldBeTrue)
			So(model.StatusProcessing.Terminal(), ShouldBeFalse)
		})
	})
}

func TestScoreHelpers(t *testing.T) {
	Convey("Given score helpers", t, func() {
		So(model.ClampScore(-3), ShouldEqual, 0)
		So(model.ClampScore(130), ShouldEqual, 100)
		So(model.ClampScore(42.5), ShouldEqual, 42.5)

		b := model.Batch{
			Members:    []model.Team{{TeamNumber: 3}},
			References: []model.Team{{TeamNumber: 1}, {TeamNumber: 2}},
		}
		So(b.Size(), ShouldEqual, 3)
		So(b.Teams()[0].TeamNumber, ShouldEqual, 1)
		So(b.Teams()[2].TeamNumber, ShouldEqual, 3)
		So(model.IndexByNumber(b.Teams())[3], ShouldEqual, 2)
	})
}

package scoring_test

import (
	"testing"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func roster() []model.Team {
	return []model.Team{
		{TeamNumber: 1, Nickname: "Low", Stats: map[string]float64{"auto": 10, "teleop": 40, "flat": 5}},
		{TeamNumber: 2, Nickname: "Mid", Stats: map[string]float64{"auto": 20, "teleop": 20, "flat": 5}},
		{TeamNumber: 3, Nickname: "High", Stats: map[string]float64{"auto": 30, "teleop": 60, "flat": 5}},
		{TeamNumber: 4, Nickname: "Sparse", Stats: map[string]float64{"flat": 5}},
	}
}

func TestHeuristicScore(t *testing.T) {
	Convey("Given a heuristic built from a roster", t, func() {
		teams := roster()
		h := scoring.NewHeuristic(teams)

		Convey("When scoring with a single priority", func() {
			prios := []model.Priority{{MetricID: "auto", Weight: 1}}

			Convey("Then scores are min-max normalized", func() {
				So(h.Score(teams[0], prios), ShouldAlmostEqual, 1.0/3.0, 1e-9)
				So(h.Score(teams[2], prios), ShouldEqual, 1)
				So(h.Score(teams[3], prios), ShouldEqual, 0)
			})
		})

		Convey("When scoring with weighted priorities", func() {
			prios := []model.Priority{{MetricID: "auto", Weight: 3}, {MetricID: "teleop", Weight: 1}}

			Convey("Then the weighted mean is returned", func() {
				// auto 20 -> 2/3, teleop 20 -> 1/3
				So(h.Score(teams[1], prios), ShouldAlmostEqual, (3*(2.0/3.0)+1*(1.0/3.0))/4, 1e-9)
			})
		})

		Convey("When a metric has no spread or is unknown", func() {
			Convey("Then it contributes zero", func() {
				So(h.Score(teams[2], []model.Priority{{MetricID: "flat", Weight: 1}}), ShouldEqual, 0)
				So(h.Score(teams[2], []model.Priority{{MetricID: "nope", Weight: 1}}), ShouldEqual, 0)
			})
		})

		Convey("When all weights are zero or the list is empty", func() {
			Convey("Then the score is zero", func() {
				So(h.Score(teams[2], []model.Priority{{MetricID: "auto", Weight: 0}}), ShouldEqual, 0)
				So(h.Score(teams[2], nil), ShouldEqual, 0)
			})
		})

		Convey("When scoring twice", func() {
			prios := []model.Priority{{MetricID: "auto", Weight: 1}, {MetricID: "teleop", Weight: 2}}

			Convey("Then the result is deterministic", func() {
				So(h.Score(teams[1], prios), ShouldEqual, h.Score(teams[1], prios))
			})
		})
	})
}

func TestHeuristicFallback(t *testing.T) {
	Convey("Given a team the model skipped", t, func() {
		teams := roster()
		h := scoring.NewHeuristic(teams)
		prios := []model.Priority{{MetricID: "auto", Weight: 1}}

		Convey("When building the fallback row", func() {
			st := h.Fallback(teams[2], prios, scoring.ReasonOmitted)

			Convey("Then it carries the scaled heuristic and the fallback flag", func() {
				So(st.TeamNumber, ShouldEqual, 3)
				So(st.Nickname, ShouldEqual, "High")
				So(st.Score, ShouldEqual, 100)
				So(st.IsFallback, ShouldBeTrue)
				So(st.Reasoning, ShouldContainSubstring, "omitted")
			})
		})
	})
}

func TestHeuristicRank(t *testing.T) {
	Convey("Given an unordered roster", t, func() {
		teams := roster()
		h := scoring.NewHeuristic(teams)

		Convey("When ranking by auto", func() {
			ranked := h.Rank(teams, []model.Priority{{MetricID: "auto", Weight: 1}})

			Convey("Then teams are ordered highest first", func() {
				So(ranked[0].TeamNumber, ShouldEqual, 3)
				So(ranked[1].TeamNumber, ShouldEqual, 2)
				So(ranked[2].TeamNumber, ShouldEqual, 1)
				So(ranked[3].TeamNumber, ShouldEqual, 4)
				So(teams[0].TeamNumber, ShouldEqual, 1)
			})
		})

		Convey("When every score ties", func() {
			ranked := h.Rank(teams, []model.Priority{{MetricID: "flat", Weight: 1}})

			Convey("Then input order is kept", func() {
				for i := range teams {
					So(ranked[i].TeamNumber, ShouldEqual, teams[i].TeamNumber)
				}
			})
		})
	})
}

package combine_test

import (
	"testing"

	"github.com/okian/picklist/internal/domain/combine"
	"github.com/okian/picklist/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func st(team int, score float64) model.ScoredTeam {
	return model.ScoredTeam{TeamNumber: team, Score: score}
}

func fb(team int, score float64) model.ScoredTeam {
	return model.ScoredTeam{TeamNumber: team, Score: score, IsFallback: true}
}

func teams(rows []model.ScoredTeam) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.TeamNumber
	}
	return out
}

func TestMerge(t *testing.T) {
	Convey("Given two batches sharing references 1 and 2", t, func() {
		order := map[int]int{1: 0, 2: 1, 10: 2, 11: 3, 20: 4, 21: 5}
		b0 := model.BatchResult{Index: 0, References: []int{1, 2}, Scored: []model.ScoredTeam{
			st(1, 90), st(2, 50), st(10, 80), st(11, 60),
		}}
		// The model drifted +10 in batch 1.
		b1 := model.BatchResult{Index: 1, References: []int{1, 2}, Scored: []model.ScoredTeam{
			st(1, 100), st(2, 60), st(20, 85), fb(21, 30),
		}}

		Convey("When merging", func() {
			out := combine.Merge([]model.BatchResult{b1, b0}, order)

			Convey("Then the drift offset is the mean reference difference", func() {
				So(out.Offsets[0], ShouldEqual, 0)
				So(out.Offsets[1], ShouldEqual, 10)
				So(out.Baseline, ShouldResemble, map[int]float64{1: 90, 2: 50})
			})

			Convey("Then members are adjusted and fallbacks left alone", func() {
				byTeam := map[int]float64{}
				for _, r := range out.Ranked {
					byTeam[r.TeamNumber] = r.Score
				}
				So(byTeam[20], ShouldEqual, 75)
				So(byTeam[21], ShouldEqual, 30)
			})

			Convey("Then each team appears once with references at their batch-0 score", func() {
				So(teams(out.Ranked), ShouldResemble, []int{1, 10, 20, 11, 2, 21})
				So(out.Ranked[0].Score, ShouldEqual, 90)
			})
		})
	})

	Convey("Given a batch whose references all fell back", t, func() {
		b0 := model.BatchResult{Index: 0, References: []int{1}, Scored: []model.ScoredTeam{st(1, 90), st(10, 50)}}
		b1 := model.BatchResult{Index: 1, References: []int{1}, Scored: []model.ScoredTeam{fb(1, 40), st(20, 70)}}

		Convey("When merging", func() {
			out := combine.Merge([]model.BatchResult{b0, b1}, nil)

			Convey("Then no offset is applied", func() {
				So(out.Offsets[1], ShouldEqual, 0)
				So(teams(out.Ranked), ShouldResemble, []int{1, 20, 10})
			})
		})
	})

	Convey("Given adjustments that leave the score range", t, func() {
		b0 := model.BatchResult{Index: 0, References: []int{1}, Scored: []model.ScoredTeam{st(1, 10), st(10, 50)}}
		b1 := model.BatchResult{Index: 1, References: []int{1}, Scored: []model.ScoredTeam{st(1, 30), st(20, 5)}}

		Convey("Then adjusted scores are clamped", func() {
			out := combine.Merge([]model.BatchResult{b0, b1}, nil)
			last := out.Ranked[len(out.Ranked)-1]
			So(last.TeamNumber, ShouldEqual, 20)
			So(last.Score, ShouldEqual, 0)
		})
	})

	Convey("Given no results", t, func() {
		out := combine.Merge(nil, nil)
		So(out.Ranked, ShouldBeEmpty)
	})

	Convey("Given duplicate members across batches", t, func() {
		b0 := model.BatchResult{Index: 0, Scored: []model.ScoredTeam{st(10, 40)}}
		b1 := model.BatchResult{Index: 1, Scored: []model.ScoredTeam{st(10, 70)}}

		Convey("Then the highest adjusted score is kept", func() {
			out := combine.Merge([]model.BatchResult{b0, b1}, nil)
			So(len(out.Ranked), ShouldEqual, 1)
			So(out.Ranked[0].Score, ShouldEqual, 70)
		})
	})
}

func TestSort(t *testing.T) {
	Convey("Given tied scores", t, func() {
		rows := []model.ScoredTeam{st(3, 50), st(1, 50), st(9, 50), st(2, 80)}
		combine.Sort(rows, map[int]int{1: 0, 3: 1})

		Convey("Then roster order breaks ties and unknown teams go last", func() {
			So(teams(rows), ShouldResemble, []int{2, 1, 3, 9})
		})
	})
}

func TestMergeUserRanking(t *testing.T) {
	Convey("Given an existing ranking and a user ranking", t, func() {
		existing := []model.ScoredTeam{st(1, 90), st(2, 70), st(3, 50)}
		user := []model.ScoredTeam{st(4, 70), st(2, 95), st(3, 40)}

		Convey("When merging", func() {
			out := combine.MergeUserRanking(existing, user)

			Convey("Then higher scores win and the list is sorted", func() {
				So(teams(out), ShouldResemble, []int{2, 1, 4, 3})
				So(out[0].Score, ShouldEqual, 95)
				So(out[3].Score, ShouldEqual, 50)
			})
		})

		Convey("When a user row ties an existing row", func() {
			out := combine.MergeUserRanking([]model.ScoredTeam{st(5, 60)}, []model.ScoredTeam{st(6, 60)})

			Convey("Then the user row comes first", func() {
				So(teams(out), ShouldResemble, []int{6, 5})
			})
		})
	})
}

func TestApplySlice(t *testing.T) {
	Convey("Given a ranked result and a rerank of its top three", t, func() {
		result := []model.ScoredTeam{st(1, 90), st(2, 80), st(3, 70), st(4, 60)}
		reranked := []model.ScoredTeam{st(1, 50), st(2, 70), st(3, 60)}

		Convey("When applying the slice", func() {
			out := combine.ApplySlice(result, reranked)

			Convey("Then the slice keeps its mean and takes the new order", func() {
				// old mean 80, new mean 60, shift +20
				So(teams(out), ShouldResemble, []int{2, 3, 1, 4})
				So(out[0].Score, ShouldEqual, 90)
				So(out[1].Score, ShouldEqual, 80)
				So(out[2].Score, ShouldEqual, 70)
				So(result[0].Score, ShouldEqual, 90)
			})
		})

		Convey("When the rerank only produced fallbacks", func() {
			out := combine.ApplySlice(result, []model.ScoredTeam{fb(1, 10)})

			Convey("Then the result is unchanged", func() {
				So(out, ShouldResemble, result)
			})
		})
	})
}

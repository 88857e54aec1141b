package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/scoring"
	"github.com/okian/picklist/internal/resilience"
	"github.com/okian/picklist/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Complete(ctx context.Context, p Prompt) (Completion, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Completion), args.Error(1)
}

func fixture() Input {
	refs := []model.Team{
		{TeamNumber: 254, Nickname: "Cheesy Poofs", Stats: map[string]float64{"auto": 30, "defense": 1}},
	}
	members := []model.Team{
		{TeamNumber: 1678, Nickname: "Citrus Circuits", Stats: map[string]float64{"auto": 25}},
		{TeamNumber: 118, Nickname: "Robonauts", Stats: map[string]float64{"auto": 10}},
	}
	roster := append(append([]model.Team{}, refs...), members...)
	return Input{
		Batch:          model.Batch{Index: 1, References: refs, Members: members},
		Priorities:     []model.Priority{{MetricID: "auto", Weight: 1, Reason: "early points"}},
		PickPosition:   model.PickSecond,
		YourTeamNumber: 971,
		GameContext:    "Reefscape 2025",
		Heuristic:      scoring.NewHeuristic(roster),
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestBuildPrompt(t *testing.T) {
	Convey("Given a batch with a reference team", t, func() {
		in := fixture()

		Convey("When rendering the prompt", func() {
			p := BuildPrompt(in)

			Convey("Then it lists every team with references first", func() {
				So(p.Teams, ShouldResemble, []int{254, 1678, 118})
				So(p.User, ShouldContainSubstring, `{"team":254,"nickname":"Cheesy Poofs","ref":true,"stats":{"auto":30}}`)
				So(p.User, ShouldContainSubstring, `{"team":118,"nickname":"Robonauts","stats":{"auto":10}}`)
			})

			Convey("Then it carries the request context", func() {
				So(p.User, ShouldContainSubstring, "Reefscape 2025")
				So(p.User, ShouldContainSubstring, "Our team: 971")
				So(p.User, ShouldContainSubstring, "Second pick")
				So(p.User, ShouldContainSubstring, "- auto, 1.00, early points")
				So(p.User, ShouldContainSubstring, "Return exactly 3 entries.")
				So(p.System, ShouldContainSubstring, `"picklist"`)
			})

			Convey("Then stats outside the priorities are left out", func() {
				So(p.User, ShouldNotContainSubstring, "defense")
			})
		})
	})
}

func TestParseReply(t *testing.T) {
	Convey("Given model replies", t, func() {
		Convey("When the reply is fenced and wrapped in prose", func() {
			text := "Here you go:\n```json\n{\"picklist\":[{\"team\":254,\"score\":91.5,\"reasoning\":\"elite\"}]}\n```\nDone."
			rows, err := parseReply(text)

			Convey("Then the object is still read", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].team, ShouldEqual, 254)
				So(rows[0].score, ShouldEqual, 91.5)
				So(rows[0].valid, ShouldBeTrue)
				So(rows[0].reasoning, ShouldEqual, "elite")
			})
		})

		Convey("When the reply uses the compact tuple form", func() {
			rows, err := parseReply(`{"p":[[254,90,"a"],["1678","80"],[118,"high"],[0,5],[9]]}`)

			Convey("Then tuples are decoded and bad rows handled", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[1].team, ShouldEqual, 1678)
				So(rows[1].score, ShouldEqual, 80)
				So(rows[1].valid, ShouldBeTrue)
				So(rows[2].valid, ShouldBeFalse)
			})
		})

		Convey("When scores are strings or NaN", func() {
			rows, err := parseReply(`{"picklist":[{"team_number":1,"score":"77.5","reason":"r"},{"team":2,"score":"NaN"},{"team":3}]}`)

			Convey("Then only finite numbers are valid", func() {
				So(err, ShouldBeNil)
				So(rows[0].score, ShouldEqual, 77.5)
				So(rows[0].reasoning, ShouldEqual, "r")
				So(rows[1].valid, ShouldBeFalse)
				So(rows[2].valid, ShouldBeFalse)
			})
		})

		Convey("When the reply is not JSON at all", func() {
			_, err1 := parseReply("I cannot rank these teams.")
			_, err2 := parseReply(`{"teams":[]}`)
			_, err3 := parseReply(`{"picklist": "nope"}`)

			Convey("Then a parse error is returned", func() {
				So(errors.Is(err1, model.ErrParse), ShouldBeTrue)
				So(errors.Is(err2, model.ErrParse), ShouldBeTrue)
				So(errors.Is(err3, model.ErrParse), ShouldBeTrue)
			})
		})
	})
}

func TestRankBatch(t *testing.T) {
	Convey("Given a ranking client with a mocked model", t, func() {
		ctx := context.Background()
		in := fixture()
		m := new(MockModel)
		client := NewClient(m, WithRetry(fastRetry()), WithRateLimit(1000, 10))

		Convey("When the model scores every team", func() {
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{
				Text: `{"picklist":[{"team":254,"score":95,"reasoning":"ref"},{"team":1678,"score":120,"reasoning":"great"},{"team":118,"score":40,"reasoning":"ok"}]}`,
			}, nil).Once()
			res, err := client.RankBatch(ctx, in)

			Convey("Then one row per team is returned, clamped, with no fallbacks", func() {
				So(err, ShouldBeNil)
				So(res.Index, ShouldEqual, 1)
				So(res.References, ShouldResemble, []int{254})
				So(len(res.Scored), ShouldEqual, 3)
				So(res.Scored[1].Score, ShouldEqual, 100)
				So(res.Scored[1].Nickname, ShouldEqual, "Citrus Circuits")
				for _, st := range res.Scored {
					So(st.IsFallback, ShouldBeFalse)
				}
				m.AssertExpectations(t)
			})
		})

		Convey("When the model omits a team, repeats one and adds a stranger", func() {
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{
				Text: `{"picklist":[{"team":254,"score":95},{"team":254,"score":10},{"team":9999,"score":50},{"team":1678,"score":"n/a"}]}`,
			}, nil).Once()
			res, err := client.RankBatch(ctx, in)

			Convey("Then the first row wins and gaps become fallbacks", func() {
				So(err, ShouldBeNil)
				So(len(res.Scored), ShouldEqual, 3)
				So(res.Scored[0].Score, ShouldEqual, 95)
				So(res.Scored[0].IsFallback, ShouldBeFalse)
				So(res.Scored[1].IsFallback, ShouldBeTrue)
				So(res.Scored[1].Reasoning, ShouldContainSubstring, scoring.ReasonInvalid)
				So(res.Scored[2].IsFallback, ShouldBeTrue)
				So(res.Scored[2].Reasoning, ShouldContainSubstring, scoring.ReasonOmitted)
			})
		})

		Convey("When the first reply is garbage and the second is good", func() {
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{Text: "sorry"}, nil).Once()
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{
				Text: `{"p":[[254,90,"a"],[1678,80,"b"],[118,70,"c"]]}`,
			}, nil).Once()
			res, err := client.RankBatch(ctx, in)

			Convey("Then the retry result is used", func() {
				So(err, ShouldBeNil)
				So(res.Scored[2].Score, ShouldEqual, 70)
				m.AssertNumberOfCalls(t, "Complete", 2)
			})
		})

		Convey("When every reply is garbage", func() {
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{Text: "no"}, nil)
			res, err := client.RankBatch(ctx, in)

			Convey("Then the whole batch falls back without an error", func() {
				So(err, ShouldBeNil)
				So(len(res.Scored), ShouldEqual, 3)
				for _, st := range res.Scored {
					So(st.IsFallback, ShouldBeTrue)
				}
				m.AssertNumberOfCalls(t, "Complete", 3)
			})
		})

		Convey("When the transport keeps failing", func() {
			m.On("Complete", mock.Anything, mock.Anything).
				Return(Completion{}, resilience.NewTransientError(errors.New("503"), 503))
			_, err := client.RankBatch(ctx, in)

			Convey("Then a transport error is returned after the retry budget", func() {
				So(errors.Is(err, model.ErrTransport), ShouldBeTrue)
				m.AssertNumberOfCalls(t, "Complete", 3)
			})
		})

		Convey("When the transport fails permanently", func() {
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, errors.New("401 unauthorized"))
			_, err := client.RankBatch(ctx, in)

			Convey("Then it is not retried", func() {
				So(errors.Is(err, model.ErrTransport), ShouldBeTrue)
				m.AssertNumberOfCalls(t, "Complete", 1)
			})
		})

		Convey("When the context is canceled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			m.On("Complete", mock.Anything, mock.Anything).Return(Completion{}, cctx.Err()).Maybe()
			_, err := client.RankBatch(cctx, in)

			Convey("Then a cancellation error is returned", func() {
				So(errors.Is(err, model.ErrCanceled), ShouldBeTrue)
			})
		})
	})
}

func TestRankBatchSharedLimiter(t *testing.T) {
	Convey("Given a model function counting calls", t, func() {
		calls := 0
		fn := ModelFunc(func(_ context.Context, p Prompt) (Completion, error) {
			calls++
			rows := make([]string, 0, len(p.Teams))
			for i, n := range p.Teams {
				rows = append(rows, fmt.Sprintf(`[%d,%d,"r"]`, n, 90-i))
			}
			return Completion{Text: `{"p":[` + strings.Join(rows, ",") + `]}`}, nil
		})
		client := NewClient(fn, WithRateLimit(0, 0))

		Convey("When ranking a batch", func() {
			res, err := client.RankBatch(context.Background(), fixture())

			Convey("Then an unlimited limiter lets the call through", func() {
				So(err, ShouldBeNil)
				So(calls, ShouldEqual, 1)
				So(res.Scored[0].Score, ShouldEqual, 90)
			})
		})
	})
}

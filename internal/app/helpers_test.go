package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/picklist/internal/app"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/internal/resilience"
	"github.com/okian/picklist/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// base is the score the scripted model gives team n before drift.
func base(n int) float64 { return 30 + float64(n) }

// scripted answers with base(n) plus drift times the call index. Calls block
// on release when it is set.
type scripted struct {
	drift   float64
	started chan struct{}
	release chan struct{}

	calls atomic.Int64

	mu   sync.Mutex
	omit map[int]bool
	fail error
	flat float64
}

func newScripted() *scripted {
	return &scripted{started: make(chan struct{}, 1), omit: map[int]bool{}}
}

func (m *scripted) setOmit(teams ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omit = map[int]bool{}
	for _, n := range teams {
		m.omit[n] = true
	}
}

// setFlat makes every team score v.
func (m *scripted) setFlat(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flat = v
}

func (m *scripted) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *scripted) Complete(ctx context.Context, p ranking.Prompt) (ranking.Completion, error) {
	k := m.calls.Add(1) - 1
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ranking.Completion{}, ctx.Err()
		}
	}

	m.mu.Lock()
	fail := m.fail
	flat := m.flat
	omit := make(map[int]bool, len(m.omit))
	for n, v := range m.omit {
		omit[n] = v
	}
	m.mu.Unlock()
	if fail != nil {
		return ranking.Completion{}, fail
	}

	rows := make([]string, 0, len(p.Teams))
	for _, n := range p.Teams {
		if omit[n] {
			continue
		}
		score := base(n) + float64(k)*m.drift
		if flat != 0 {
			score = flat
		}
		rows = append(rows, fmt.Sprintf(`{"team":%d,"score":%g,"reasoning":"scripted"}`, n, score))
	}
	return ranking.Completion{Text: `{"picklist":[` + strings.Join(rows, ",") + `]}`, Model: "scripted"}, nil
}

func rosterOf(n int) []model.Team {
	teams := make([]model.Team, n)
	for i := range teams {
		num := i + 1
		teams[i] = model.Team{
			TeamNumber: num,
			Nickname:   fmt.Sprintf("Team %d", num),
			Stats:      map[string]float64{"auto": float64(num), "teleop": float64(num % 7)},
		}
	}
	return teams
}

func batchedRequest(n int) model.Request {
	return model.Request{
		Roster:         rosterOf(n),
		YourTeamNumber: 9999,
		PickPosition:   model.PickFirst,
		Priorities:     []model.Priority{{MetricID: "auto", Weight: 2}, {MetricID: "teleop", Weight: 1}},
		UseBatching:    true,
		BatchSize:      20,
		ReferenceCount: 3,
	}
}

func newService(t *testing.T, m ranking.Model, opts ...service.Option) *service.Service {
	t.Helper()
	all := append([]service.Option{
		service.WithModel(m),
		service.WithWorkerCount(2),
		service.WithQueueSize(16),
		service.WithWaitInterval(10 * time.Millisecond),
		service.WithRankingOptions(ranking.WithRetry(resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		})),
	}, opts...)
	svc := service.New(all...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc
}

func waitStarted(t *testing.T, m *scripted) {
	t.Helper()
	select {
	case <-m.started:
	case <-time.After(5 * time.Second):
		t.Fatal("model was never called")
	}
}

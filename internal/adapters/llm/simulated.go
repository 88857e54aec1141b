package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/picklist/internal/domain/ranking"
)

// Simulated model defaults.
const (
	defaultSimMinLatency = 80 * time.Millisecond
	defaultSimMaxLatency = 150 * time.Millisecond
	defaultSimSeed       = 42
)

// Simulated is a deterministic stand-in for a real model. It scores each
// team as the priority-weighted mean of its raw stats, shifts every score of
// a call by a random drift, and waits a random latency first.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration
	drift      float64
	omitRate   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// SimOption configures the simulated model.
type SimOption func(*Simulated)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *Simulated) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithDrift sets the maximum absolute per-call score shift.
func WithDrift(d float64) SimOption {
	return func(s *Simulated) {
		if d >= 0 {
			s.drift = d
		}
	}
}

// WithOmitRate makes the model skip that fraction of teams.
func WithOmitRate(r float64) SimOption {
	return func(s *Simulated) {
		if r >= 0 && r <= 1 {
			s.omitRate = r
		}
	}
}

// WithSeed fixes the random source.
func WithSeed(seed int64) SimOption {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic simulation
	}
}

// NewSimulated creates a simulated model.
func NewSimulated(opts ...SimOption) *Simulated {
	s := &Simulated{
		minLatency: defaultSimMinLatency,
		maxLatency: defaultSimMaxLatency,
		rng:        rand.New(rand.NewSource(defaultSimSeed)), //nolint:gosec // deterministic simulation
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type simTeam struct {
	Team  int                `json:"team"`
	Stats map[string]float64 `json:"stats"`
}

// Complete implements ranking.Model.
func (s *Simulated) Complete(ctx context.Context, p ranking.Prompt) (ranking.Completion, error) {
	s.mu.Lock()
	latency := s.minLatency
	if s.maxLatency > s.minLatency {
		latency += time.Duration(s.rng.Int63n(int64(s.maxLatency - s.minLatency)))
	}
	shift := (s.rng.Float64()*2 - 1) * s.drift
	omit := make([]bool, len(p.Teams))
	for i := range omit {
		omit[i] = s.rng.Float64() < s.omitRate
	}
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ranking.Completion{}, fmt.Errorf("simulated model: %w", ctx.Err())
		case <-timer.C:
		}
	}

	weights, teams := readPrompt(p.User)
	rows := make([]string, 0, len(teams))
	for i, t := range teams {
		if i < len(omit) && omit[i] {
			continue
		}
		score := math.Max(0, math.Min(100, weightedMean(t.Stats, weights)+shift))
		rows = append(rows, fmt.Sprintf(`[%d,%.2f,"simulated"]`, t.Team, score))
	}

	text := `{"p":[` + strings.Join(rows, ",") + `]}`
	return ranking.Completion{
		Text:         text,
		Model:        "simulated",
		InputTokens:  int64(len(p.System)+len(p.User)) / 4,
		OutputTokens: int64(len(text)) / 4,
	}, nil
}

// readPrompt pulls priority weights and team rows out of a rendered prompt.
func readPrompt(user string) (map[string]float64, []simTeam) {
	weights := map[string]float64{}
	var teams []simTeam

	inPriorities := false
	sc := bufio.NewScanner(strings.NewReader(user))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Priorities"):
			inPriorities = true
		case line == "":
			inPriorities = false
		case strings.HasPrefix(line, `{"team":`):
			var t simTeam
			if json.Unmarshal([]byte(line), &t) == nil {
				teams = append(teams, t)
			}
		case inPriorities && strings.HasPrefix(line, "- "):
			parts := strings.SplitN(strings.TrimPrefix(line, "- "), ",", 3)
			if len(parts) < 2 {
				continue
			}
			if w, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
				weights[strings.TrimSpace(parts[0])] = w
			}
		}
	}
	return weights, teams
}

func weightedMean(stats, weights map[string]float64) float64 {
	var sum, total float64
	for metric, w := range weights {
		if w <= 0 {
			continue
		}
		sum += stats[metric] * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

package pollrun

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/pkg/logger"
)

// ErrRunFailed is returned when the service finishes the run with an error.
var ErrRunFailed = errors.New("picklist run failed")

// Run executes the complete poll run against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		Teams:     cfg.NumTeams,
		StartTime: time.Now(),
	}
	log := logger.Get().With(logger.String("runID", stats.RunID))
	client := newHTTPClient(cfg.BaseURL, stats.RunID, cfg.Timeout)

	log.Info(ctx, "starting picklist poll run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("teams", cfg.NumTeams),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Int("concurrent", cfg.Concurrent))

	// Step 1: Check service health
	if _, err := client.get(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Post identical generate calls; they must share one fingerprint
	req := buildRequest(cfg, stats.RunID)
	first, err := submit(ctx, client, req, cfg.Concurrent)
	if err != nil {
		return stats, fmt.Errorf("generate failed: %w", err)
	}
	stats.Fingerprint = first.Fingerprint
	stats.Batches = first.BatchProcessing.TotalBatches
	stats.Coalesced = true

	// Step 3: Poll until the run is terminal
	final, polls, err := poll(ctx, client, cfg, first)
	stats.Polls = polls
	if err != nil {
		return stats, err
	}
	if final.Status != "success" {
		return stats, fmt.Errorf("%w: %s: %s", ErrRunFailed, final.ErrorCode, final.Error)
	}

	// Step 4: Verify the picklist
	if err := verifyPicklist(req, final.Picklist); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	stats.Fallbacks = len(final.MissingTeams)

	// Step 5: Recover fallback rows
	if len(final.MissingTeams) > 0 {
		recovered, err := rankMissing(ctx, client, final)
		if err != nil {
			return stats, fmt.Errorf("rank missing failed: %w", err)
		}
		stats.Recovered = stats.Fallbacks - len(recovered.MissingTeams)
		final = recovered
	}

	// Step 6: Merge a manual override on top
	if err := checkMerge(ctx, client, final.Picklist); err != nil {
		return stats, fmt.Errorf("merge failed: %w", err)
	}

	// Step 7: Service stats
	if _, err := client.get(ctx, "/stats", &stats.ServiceStats); err != nil {
		log.Warn(ctx, "failed to read service stats", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// submit posts n copies of req concurrently. Only the first carries
// force_refresh so the copies join its run.
func submit(ctx context.Context, client *HTTPClient, req generateBody, n int) (Picklist, error) {
	var first Picklist
	if _, err := client.post(ctx, "/picklist/generate", req, &first); err != nil {
		return first, err
	}

	if n <= 1 {
		return first, nil
	}
	req.ForceRefresh = false
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i < n; i++ {
		g.Go(func() error {
			var resp Picklist
			if _, err := client.post(gctx, "/picklist/generate", req, &resp); err != nil {
				return err
			}
			if resp.Fingerprint != first.Fingerprint {
				return fmt.Errorf("duplicate request got fingerprint %s, want %s", resp.Fingerprint, first.Fingerprint)
			}
			return nil
		})
	}
	return first, g.Wait()
}

// poll asks for status every cfg.PollInterval until the run is terminal.
func poll(ctx context.Context, client *HTTPClient, cfg *Config, current Picklist) (Picklist, int, error) {
	log := logger.Get()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	for !current.BatchProcessing.ProcessingComplete {
		select {
		case <-ctx.Done():
			return current, polls, ctx.Err()
		case <-ticker.C:
		}

		var next Picklist
		code, err := client.post(ctx, "/picklist/status", map[string]string{"fingerprint": current.Fingerprint}, &next)
		polls++
		if err != nil {
			return current, polls, fmt.Errorf("status poll failed: %w", err)
		}
		if code != http.StatusOK {
			return current, polls, fmt.Errorf("status poll answered %d", code)
		}
		current = next

		if cfg.Verbose || current.BatchProcessing.Stalled {
			log.Info(ctx, "run progress",
				logger.Int("current", current.BatchProcessing.CurrentBatch),
				logger.Int("total", current.BatchProcessing.TotalBatches),
				logger.Float64("percent", current.BatchProcessing.ProgressPercentage),
				logger.Bool("stalled", current.BatchProcessing.Stalled))
		}
	}
	return current, polls, nil
}

func rankMissing(ctx context.Context, client *HTTPClient, current Picklist) (Picklist, error) {
	body := map[string]any{
		"fingerprint":          current.Fingerprint,
		"missing_team_numbers": current.MissingTeams,
	}
	var out Picklist
	_, err := client.post(ctx, "/picklist/rank_missing", body, &out)
	return out, err
}

// checkMerge promotes the last team to the top and checks it stays there.
func checkMerge(ctx context.Context, client *HTTPClient, picklist []model.ScoredTeam) error {
	if len(picklist) == 0 {
		return nil
	}
	last := picklist[len(picklist)-1]
	last.Score = model.MaxScore
	last.Reasoning = "manual override"

	var out struct {
		Picklist []model.ScoredTeam `json:"picklist"`
	}
	body := map[string]any{"existing_result": picklist, "user_rankings": []model.ScoredTeam{last}}
	if _, err := client.post(ctx, "/picklist/merge", body, &out); err != nil {
		return err
	}
	if len(out.Picklist) != len(picklist) {
		return fmt.Errorf("merged list has %d teams, want %d", len(out.Picklist), len(picklist))
	}
	if out.Picklist[0].TeamNumber != last.TeamNumber {
		return fmt.Errorf("override team %d is not first", last.TeamNumber)
	}
	return nil
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.String("fingerprint", stats.Fingerprint),
		logger.Int("teams", stats.Teams),
		logger.Int("batches", stats.Batches),
		logger.Int("polls", stats.Polls),
		logger.Int("fallbacks", stats.Fallbacks),
		logger.Int("recovered", stats.Recovered),
		logger.Bool("coalesced", stats.Coalesced),
		logger.String("duration", stats.Duration.String()),
		logger.Any("service", stats.ServiceStats))
}

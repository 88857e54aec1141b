package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/picklist/internal/pollrun"
	"github.com/okian/picklist/pkg/logger"
)

// Default configuration constants.
const (
	defaultTeams       = 60
	defaultBatchSize   = 20
	defaultReferences  = 3
	defaultConcurrent  = 4
	defaultPoll        = 5 * time.Second
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		teams      = flag.Int("teams", defaultTeams, "Synthetic roster size")
		batchSize  = flag.Int("batch", defaultBatchSize, "Teams per batch, references included")
		refs       = flag.Int("refs", defaultReferences, "Reference teams per batch")
		concurrent = flag.Int("concurrent", defaultConcurrent, "Identical generate calls posted at once")
		pollEvery  = flag.Duration("poll", defaultPoll, "Delay between status polls")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed       = flag.Int64("seed", 1, "Roster generator seed")
		logFormat  = flag.String("log-format", "text", "text or json")
		verbose    = flag.Bool("verbose", false, "Log every poll")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		pollrun.ShowHelp()
		return
	}

	if err := logger.InitWith(os.Stdout, *logFormat); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &pollrun.Config{
		BaseURL:      *baseURL,
		NumTeams:     *teams,
		BatchSize:    *batchSize,
		References:   *refs,
		Concurrent:   *concurrent,
		PollInterval: *pollEvery,
		Timeout:      *timeout,
		Seed:         *seed,
		Verbose:      *verbose,
	}

	if _, err := pollrun.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "poll run failed", logger.Error(err))
		os.Exit(1)
	}
}

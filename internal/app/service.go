// Package service ranks picklists: it accepts requests, runs one job per
// fingerprint on a worker pool and serves snapshots of the results.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/picklist/internal/adapters/llm"
	"github.com/okian/picklist/internal/adapters/mq/queue"
	"github.com/okian/picklist/internal/adapters/mq/worker"
	"github.com/okian/picklist/internal/adapters/repository"
	"github.com/okian/picklist/internal/adapters/roster"
	"github.com/okian/picklist/internal/domain/batching"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/pkg/logger"
	"github.com/okian/picklist/pkg/metrics"
)

const (
	defaultQueueSize       = 1024
	defaultParallelism     = 4
	defaultRerankThreshold = 10
	defaultWaitInterval    = 250 * time.Millisecond
	stopTimeout            = 30 * time.Second
)

// ErrNotStarted is returned by calls made before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Service implements the picklist API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	model   ranking.Model
	ranker  *ranking.Client
	rosters roster.Provider
	queue   *queue.InMemoryQueue
	pool    *worker.Pool

	// Configuration
	workerCount     int
	queueSize       int
	parallelism     int
	rerankThreshold int
	defaults        model.Request
	gameContext     string
	waitInterval    time.Duration
	rankingOpts     []ranking.Option

	// State
	started bool
	base    context.Context
	cancel  context.CancelFunc

	jobsMu sync.Mutex
	jobs   map[string]*jobHandle

	flight  singleflight.Group
	patchMu [patchStripes]sync.Mutex

	logger logger.Logger
}

// New constructs a Service. Components left unset are created on Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       defaultQueueSize,
		parallelism:     defaultParallelism,
		rerankThreshold: defaultRerankThreshold,
		waitInterval:    defaultWaitInterval,
		defaults: model.Request{
			PickPosition:      model.PickFirst,
			UseBatching:       true,
			BatchSize:         batching.DefaultBatchSize,
			ReferenceCount:    batching.DefaultReferenceCount,
			ReferenceStrategy: model.StrategyTopMiddleBottom,
		},
		jobs: make(map[string]*jobHandle),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start creates missing components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting picklist service...")

	// Jobs outlive the request that started them.
	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.store == nil {
		s.store = repository.NewMemoryStore(s.base)
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.model == nil {
		s.model = llm.NewSimulated()
		s.logger.Info(ctx, "using simulated ranking model")
	}
	if s.rosters == nil {
		s.rosters = roster.Static{}
	}
	s.ranker = ranking.NewClient(s.model, s.rankingOpts...)

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.RunnerFunc(s.run))
	s.pool.Start(s.base)

	s.started = true
	s.logger.Info(ctx, "picklist service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("batchParallelism", s.parallelism),
	)

	return nil
}

// Stop drains the queue, cancels running jobs that outlast the drain and
// closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping picklist service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "picklist service stopped")
}

// DefaultRequest returns a request carrying the configured defaults.
func (s *Service) DefaultRequest() model.Request {
	return s.defaults
}

// Status returns the current snapshot of fp.
func (s *Service) Status(ctx context.Context, fp string) (model.CacheEntry, error) {
	if !s.isStarted() {
		return model.CacheEntry{}, ErrNotStarted
	}
	e, err := s.store.Get(ctx, fp)
	if err != nil {
		return model.CacheEntry{}, model.WithFingerprint(err, fp)
	}
	return e, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"batchParallelism": s.parallelism,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["entries"] = s.store.Len(ctx)
		stats["runningJobs"] = s.running()

		if counts, err := s.store.Counts(ctx); err == nil {
			byStatus := make(map[string]int, len(counts))
			for st, n := range counts {
				byStatus[string(st)] = n
			}
			stats["entriesByStatus"] = byStatus
		} else {
			s.logger.Warn(ctx, "counting entries", logger.Error(err))
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateQueueCapacity(s.queue.Cap())
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

package service

import (
	"time"

	"github.com/okian/picklist/internal/adapters/repository"
	"github.com/okian/picklist/internal/adapters/roster"
	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/internal/domain/ranking"
	"github.com/okian/picklist/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of concurrent jobs.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithBatchParallelism bounds in-flight batches per job after the first.
func WithBatchParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithRerankThreshold sets the minimum result size for the final rerank.
func WithRerankThreshold(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.rerankThreshold = n
		}
	}
}

// WithRequestDefaults sets the values DefaultRequest fills in.
func WithRequestDefaults(batchSize, referenceCount int, strategy model.ReferenceStrategy) Option {
	return func(s *Service) {
		if batchSize > 0 {
			s.defaults.BatchSize = batchSize
		}
		if referenceCount >= 0 {
			s.defaults.ReferenceCount = referenceCount
		}
		if strategy != "" {
			s.defaults.ReferenceStrategy = strategy
		}
	}
}

// WithGameContext sets the game description used when a request has none.
func WithGameContext(text string) Option {
	return func(s *Service) {
		s.gameContext = text
	}
}

// WithStore sets the cache store. The service closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithModel sets the ranking model.
func WithModel(m ranking.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.model = m
		}
	}
}

// WithRankingOptions configures the ranking client built on Start.
func WithRankingOptions(opts ...ranking.Option) Option {
	return func(s *Service) {
		s.rankingOpts = append(s.rankingOpts, opts...)
	}
}

// WithRosters sets the provider resolving roster_ref.
func WithRosters(p roster.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.rosters = p
		}
	}
}

// WithWaitInterval sets how often Wait polls the store.
func WithWaitInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.waitInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

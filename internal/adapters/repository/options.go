package repository

import "time"

// Defaults shared by both store implementations.
const (
	DefaultStallTimeout    = 10 * time.Minute
	DefaultEntryTTL        = time.Hour
	DefaultJanitorInterval = time.Minute
	defaultShardCount      = 16
	defaultKeyPrefix       = "picklist:entry:"
)

type settings struct {
	shards          int
	stallTimeout    time.Duration
	entryTTL        time.Duration
	janitorInterval time.Duration
	keyPrefix       string
	now             func() time.Time
}

func defaultSettings() settings {
	return settings{
		shards:          defaultShardCount,
		stallTimeout:    DefaultStallTimeout,
		entryTTL:        DefaultEntryTTL,
		janitorInterval: DefaultJanitorInterval,
		keyPrefix:       defaultKeyPrefix,
		now:             time.Now,
	}
}

// Option configures a store.
type Option func(*settings)

// WithShardCount sets the number of lock shards of the memory store.
func WithShardCount(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shards = n
		}
	}
}

// WithStallTimeout sets how long a processing entry may go without progress
// before reads flag it as stalled. Zero disables the flag.
func WithStallTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.stallTimeout = d
		}
	}
}

// WithEntryTTL sets how long terminal entries are kept after their last update.
func WithEntryTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.entryTTL = d
		}
	}
}

// WithJanitorInterval sets how often expired entries are swept and the cache
// gauges refreshed.
func WithJanitorInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.janitorInterval = d
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(p string) Option {
	return func(s *settings) {
		if p != "" {
			s.keyPrefix = p
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

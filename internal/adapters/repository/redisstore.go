package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/pkg/metrics"
)

const maxTxRetries = 8

// RedisStore is a Store shared by every replica pointing at the same Redis.
// Entries are JSON documents that expire entryTTL after their last write.
type RedisStore struct {
	cfg settings
	rdb *goredis.Client

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRedisClient dials addr and checks it with PING.
func NewRedisClient(ctx context.Context, addr string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisStore wraps rdb. It takes ownership of the client and closes it
// on Close.
func NewRedisStore(ctx context.Context, rdb *goredis.Client, opts ...Option) *RedisStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &RedisStore{cfg: cfg, rdb: rdb, stopChan: make(chan struct{})}
	s.startGaugeUpdater(ctx)
	return s
}

func (s *RedisStore) key(fp string) string { return s.cfg.keyPrefix + fp }

func (s *RedisStore) decode(raw []byte) (model.CacheEntry, error) {
	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.CacheEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	e.Stalled = e.IsStalled(s.cfg.now(), s.cfg.stallTimeout)
	return e, nil
}

// GetOrCreate implements Store. SETNX makes exactly one caller across all
// replicas the creator.
func (s *RedisStore) GetOrCreate(ctx context.Context, fp string, total int, req *model.Request) (model.CacheEntry, bool, error) {
	e := newEntry(fp, total, req, s.cfg.now)
	raw, err := json.Marshal(e)
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("encode entry: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(fp), raw, s.cfg.entryTTL).Result()
	if err != nil {
		metrics.RecordCacheError("get_or_create")
		return model.CacheEntry{}, false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return e, true, nil
	}
	existing, err := s.Get(ctx, fp)
	return existing, false, err
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, fp string) (model.CacheEntry, error) {
	raw, err := s.rdb.Get(ctx, s.key(fp)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.CacheEntry{}, notFound(fp)
	}
	if err != nil {
		metrics.RecordCacheError("get")
		return model.CacheEntry{}, fmt.Errorf("redis get: %w", err)
	}
	return s.decode(raw)
}

// apply runs fn inside an optimistic WATCH/MULTI transaction.
func (s *RedisStore) apply(ctx context.Context, fp string, fn mutation) error {
	key := s.key(fp)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return notFound(fp)
		}
		if err != nil {
			return err
		}
		var e model.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		if err := fn(&e); err != nil {
			return err
		}
		e.UpdatedAt = s.cfg.now()
		next, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.cfg.entryTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, ErrInvalidTransition) {
			metrics.RecordCacheError("update")
		}
		return err
	}
	metrics.RecordCacheError("update")
	return fmt.Errorf("redis update %s: too much contention", fp)
}

// MarkProcessing implements Store.
func (s *RedisStore) MarkProcessing(ctx context.Context, fp string) error {
	return s.apply(ctx, fp, markProcessing)
}

// UpdateProgress implements Store.
func (s *RedisStore) UpdateProgress(ctx context.Context, fp string, current, total int) error {
	return s.apply(ctx, fp, updateProgress(current, total))
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, fp string, result []model.ScoredTeam, cal *model.Calibration) error {
	return s.apply(ctx, fp, complete(result, cal))
}

// Fail implements Store.
func (s *RedisStore) Fail(ctx context.Context, fp string, cause error) error {
	return s.apply(ctx, fp, fail(cause))
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, fp string) error {
	if err := s.rdb.Del(ctx, s.key(fp)).Err(); err != nil {
		metrics.RecordCacheError("delete")
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteIfUnchanged implements Store. The key is watched so a write landing
// between the check and DEL aborts the delete.
func (s *RedisStore) DeleteIfUnchanged(ctx context.Context, fp string, updatedAt time.Time) (bool, error) {
	key := s.key(fp)
	deleted := false
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var e model.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		if !unchanged(&e, updatedAt) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		// Written after it was read.
		return false, nil
	}
	if err != nil {
		metrics.RecordCacheError("delete")
		return false, fmt.Errorf("redis conditional del: %w", err)
	}
	return deleted, nil
}

// Counts implements Store by scanning every entry.
func (s *RedisStore) Counts(ctx context.Context) (map[model.Status]int, error) {
	counts, _, err := s.scan(ctx)
	return counts, err
}

func (s *RedisStore) scan(ctx context.Context) (map[model.Status]int, int, error) {
	out := make(map[model.Status]int, 4)
	stalled := 0
	now := s.cfg.now()
	iter := s.rdb.Scan(ctx, 0, s.cfg.keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// Expired between SCAN and GET.
			continue
		}
		var e model.CacheEntry
		if json.Unmarshal(raw, &e) != nil {
			continue
		}
		out[e.Status]++
		if e.IsStalled(now, s.cfg.stallTimeout) {
			stalled++
		}
	}
	if err := iter.Err(); err != nil {
		metrics.RecordCacheError("scan")
		return nil, 0, fmt.Errorf("redis scan: %w", err)
	}
	return out, stalled, nil
}

// Len implements Store.
func (s *RedisStore) Len(ctx context.Context) int {
	n := 0
	iter := s.rdb.Scan(ctx, 0, s.cfg.keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close stops the gauge updater and closes the client.
func (s *RedisStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.rdb.Close()
}

// startGaugeUpdater refreshes the cache gauges. Expiry itself is left to
// Redis key TTLs.
func (s *RedisStore) startGaugeUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if counts, stalled, err := s.scan(ctx); err == nil {
					publishCounts(counts, stalled)
				}
			}
		}
	}()
}

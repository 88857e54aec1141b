package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/picklist/internal/domain/model"
	"github.com/okian/picklist/pkg/metrics"
)

// slot holds one entry. Writers serialize on mu and publish a fresh
// snapshot; readers only load the pointer and never block a writer.
type slot struct {
	mu   sync.Mutex
	snap atomic.Pointer[model.CacheEntry]
}

type shard struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	cfg    settings
	shards []*shard

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a memory store and starts its janitor. The janitor
// stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &MemoryStore{
		cfg:      cfg,
		shards:   make([]*shard, cfg.shards),
		stopChan: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{slots: make(map[string]*slot)}
	}
	s.startJanitor(ctx)
	return s
}

func (s *MemoryStore) shardFor(fp string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) lookup(fp string) (*slot, bool) {
	sh := s.shardFor(fp)
	sh.mu.RLock()
	sl, ok := sh.slots[fp]
	sh.mu.RUnlock()
	return sl, ok
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, fp string, total int, req *model.Request) (model.CacheEntry, bool, error) {
	if sl, ok := s.lookup(fp); ok {
		return s.read(sl), false, nil
	}

	sh := s.shardFor(fp)
	sh.mu.Lock()
	if sl, ok := sh.slots[fp]; ok {
		sh.mu.Unlock()
		return s.read(sl), false, nil
	}
	e := newEntry(fp, total, req, s.cfg.now)
	sl := &slot{}
	sl.snap.Store(&e)
	sh.slots[fp] = sl
	sh.mu.Unlock()

	return e.Clone(), true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, fp string) (model.CacheEntry, error) {
	sl, ok := s.lookup(fp)
	if !ok {
		return model.CacheEntry{}, notFound(fp)
	}
	return s.read(sl), nil
}

func (s *MemoryStore) read(sl *slot) model.CacheEntry {
	e := sl.snap.Load().Clone()
	e.Stalled = e.IsStalled(s.cfg.now(), s.cfg.stallTimeout)
	return e
}

func (s *MemoryStore) apply(fp string, fn mutation) error {
	sl, ok := s.lookup(fp)
	if !ok {
		return notFound(fp)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	next := sl.snap.Load().Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = s.cfg.now()
	sl.snap.Store(&next)
	return nil
}

// MarkProcessing implements Store.
func (s *MemoryStore) MarkProcessing(ctx context.Context, fp string) error {
	return s.apply(fp, markProcessing)
}

// UpdateProgress implements Store.
func (s *MemoryStore) UpdateProgress(ctx context.Context, fp string, current, total int) error {
	return s.apply(fp, updateProgress(current, total))
}

// Complete implements Store.
func (s *MemoryStore) Complete(ctx context.Context, fp string, result []model.ScoredTeam, cal *model.Calibration) error {
	return s.apply(fp, complete(result, cal))
}

// Fail implements Store.
func (s *MemoryStore) Fail(ctx context.Context, fp string, cause error) error {
	return s.apply(fp, fail(cause))
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, fp string) error {
	sh := s.shardFor(fp)
	sh.mu.Lock()
	delete(sh.slots, fp)
	sh.mu.Unlock()
	return nil
}

// DeleteIfUnchanged implements Store.
func (s *MemoryStore) DeleteIfUnchanged(ctx context.Context, fp string, updatedAt time.Time) (bool, error) {
	sh := s.shardFor(fp)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sl, ok := sh.slots[fp]
	if !ok {
		return false, nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !unchanged(sl.snap.Load(), updatedAt) {
		return false, nil
	}
	delete(sh.slots, fp)
	return true, nil
}

// Counts implements Store.
func (s *MemoryStore) Counts(ctx context.Context) (map[model.Status]int, error) {
	out := make(map[model.Status]int, 4)
	s.each(func(_ string, e *model.CacheEntry) {
		out[e.Status]++
	})
	return out, nil
}

// Len implements Store.
func (s *MemoryStore) Len(ctx context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.slots)
		sh.mu.RUnlock()
	}
	return n
}

func (s *MemoryStore) each(fn func(fp string, e *model.CacheEntry)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for fp, sl := range sh.slots {
			fn(fp, sl.snap.Load())
		}
		sh.mu.RUnlock()
	}
}

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startJanitor(ctx context.Context) {
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
				s.sweep()
			}
		}
	}()
}

// sweep evicts expired terminal entries and refreshes the cache gauges.
func (s *MemoryStore) sweep() int {
	now := s.cfg.now()
	evicted := 0
	counts := map[model.Status]int{}
	stalled := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for fp, sl := range sh.slots {
			e := sl.snap.Load()
			if e.Status.Terminal() && now.Sub(e.UpdatedAt) > s.cfg.entryTTL {
				delete(sh.slots, fp)
				evicted++
				continue
			}
			counts[e.Status]++
			if e.IsStalled(now, s.cfg.stallTimeout) {
				stalled++
			}
		}
		sh.mu.Unlock()
	}

	publishCounts(counts, stalled)
	if evicted > 0 {
		metrics.RecordCacheEvicted(evicted)
	}
	return evicted
}

func publishCounts(counts map[model.Status]int, stalled int) {
	for _, st := range []model.Status{model.StatusPending, model.StatusProcessing, model.StatusSuccess, model.StatusError} {
		metrics.UpdateCacheEntries(string(st), counts[st])
	}
	metrics.UpdateStalledEntries(stalled)
}

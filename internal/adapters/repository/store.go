// Package repository keeps one cache entry per request fingerprint and the
// progress of the job computing it.
package repository

import (
	"context"
	"time"

	"github.com/okian/picklist/internal/domain/model"
)

// Store holds cache entries. Implementations are safe for concurrent use and
// hand out snapshots that callers may keep.
type Store interface {
	// GetOrCreate returns the entry for fp, creating a pending one with the
	// given batch total when none exists. created is true for exactly one
	// caller per fingerprint.
	GetOrCreate(ctx context.Context, fp string, total int, req *model.Request) (entry model.CacheEntry, created bool, err error)

	// Get returns a snapshot of the entry, with Stalled computed.
	// Returns model.ErrNotFound for unknown fingerprints.
	Get(ctx context.Context, fp string) (model.CacheEntry, error)

	// MarkProcessing moves a pending entry to processing.
	MarkProcessing(ctx context.Context, fp string) error

	// UpdateProgress records completed batches. Lower values than the
	// stored ones are ignored.
	UpdateProgress(ctx context.Context, fp string, current, total int) error

	// Complete stores a successful result. It may be called again on a
	// successful entry to replace its result.
	Complete(ctx context.Context, fp string, result []model.ScoredTeam, cal *model.Calibration) error

	// Fail marks a non-terminal entry as failed with cause.
	Fail(ctx context.Context, fp string, cause error) error

	// Delete drops the entry.
	Delete(ctx context.Context, fp string) error

	// DeleteIfUnchanged drops the entry only while it is terminal and was
	// last written at updatedAt. deleted is false when the entry is gone or
	// another writer changed it first.
	DeleteIfUnchanged(ctx context.Context, fp string, updatedAt time.Time) (deleted bool, err error)

	// Counts returns the number of entries per status.
	Counts(ctx context.Context) (map[model.Status]int, error)

	// Len returns the number of entries.
	Len(ctx context.Context) int

	// Close stops background work and releases resources.
	Close() error
}

func newEntry(fp string, total int, req *model.Request, now func() time.Time) model.CacheEntry {
	ts := now()
	e := model.CacheEntry{
		Fingerprint: fp,
		Status:      model.StatusPending,
		Progress:    model.Progress{Total: total},
		Request:     req,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if req != nil {
		e.Batched = req.Batched()
	}
	return e
}

// mutation changes one entry, enforcing the status lifecycle.
type mutation func(e *model.CacheEntry) error

func markProcessing(e *model.CacheEntry) error {
	switch e.Status {
	case model.StatusPending:
		e.Status = model.StatusProcessing
		return nil
	case model.StatusProcessing:
		return nil
	default:
		return invalidTransition(e.Status, model.StatusProcessing)
	}
}

func updateProgress(current, total int) mutation {
	return func(e *model.CacheEntry) error {
		if e.Status.Terminal() {
			return invalidTransition(e.Status, e.Status)
		}
		if total > e.Progress.Total {
			e.Progress.Total = total
		}
		if current > e.Progress.Current {
			e.Progress.Current = current
		}
		if e.Progress.Current > e.Progress.Total {
			e.Progress.Current = e.Progress.Total
		}
		return nil
	}
}

func complete(result []model.ScoredTeam, cal *model.Calibration) mutation {
	return func(e *model.CacheEntry) error {
		if e.Status == model.StatusError {
			return invalidTransition(e.Status, model.StatusSuccess)
		}
		e.Status = model.StatusSuccess
		e.Progress.Current = e.Progress.Total
		e.Result = append([]model.ScoredTeam(nil), result...)
		e.ErrorCode = ""
		e.ErrorDetail = ""
		if cal != nil {
			e.Calibration = cal
		}
		return nil
	}
}

// unchanged reports whether e is the terminal entry last written at updatedAt.
func unchanged(e *model.CacheEntry, updatedAt time.Time) bool {
	return e.Status.Terminal() && e.UpdatedAt.Equal(updatedAt)
}

func fail(cause error) mutation {
	return func(e *model.CacheEntry) error {
		if e.Status.Terminal() {
			return invalidTransition(e.Status, model.StatusError)
		}
		e.Status = model.StatusError
		e.ErrorCode = model.CodeOf(cause)
		e.ErrorDetail = cause.Error()
		e.Result = nil
		return nil
	}
}

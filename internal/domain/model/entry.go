package model

import "time"

// Status is the lifecycle state of a cache entry.
type Status string

// Entry statuses. Transitions: pending -> processing -> success|error.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Progress counts completed batches.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percentage returns Current/Total*100, or 0 when Total is 0.
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Current) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Calibration is what a follow-up pass needs to score teams on the same
// scale as the original run.
type Calibration struct {
	References     []int           `json:"references"`
	BaselineScores map[int]float64 `json:"baseline_scores"`
}

// CacheEntry is the state of one fingerprint. Entries handed out by a store
// are snapshots and must not be modified.
type CacheEntry struct {
	Fingerprint string       `json:"fingerprint"`
	Status      Status       `json:"status"`
	Progress    Progress     `json:"batch_progress"`
	Result      []ScoredTeam `json:"result,omitempty"`
	ErrorCode   string       `json:"error_code,omitempty"`
	ErrorDetail string       `json:"error_detail,omitempty"`
	Batched     bool         `json:"batched"`
	Calibration *Calibration `json:"calibration,omitempty"`
	Request     *Request     `json:"request,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// Stalled is computed on read and never stored.
	Stalled bool `json:"-"`
}

// Clone returns a deep copy of the mutable parts of e.
func (e CacheEntry) Clone() CacheEntry {
	cp := e
	if e.Result != nil {
		cp.Result = append([]ScoredTeam(nil), e.Result...)
	}
	if e.Calibration != nil {
		cal := &Calibration{
			References:     append([]int(nil), e.Calibration.References...),
			BaselineScores: make(map[int]float64, len(e.Calibration.BaselineScores)),
		}
		for k, v := range e.Calibration.BaselineScores {
			cal.BaselineScores[k] = v
		}
		cp.Calibration = cal
	}
	return cp
}

// IsStalled reports whether a processing entry has not moved for longer than timeout.
func (e CacheEntry) IsStalled(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || e.Status != StatusProcessing {
		return false
	}
	return now.Sub(e.UpdatedAt) > timeout
}

// FallbackCount returns the number of fallback rows in the result.
func (e CacheEntry) FallbackCount() int {
	n := 0
	for _, st := range e.Result {
		if st.IsFallback {
			n++
		}
	}
	return n
}

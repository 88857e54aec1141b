package model

import "time"

// Job asks a worker to compute the ranking for one fingerprint.
type Job struct {
	Fingerprint string
	Request     *Request
	Plan        *JobPlan
	EnqueuedAt  time.Time
}

// JobPlan is the batch layout computed when the job was accepted.
type JobPlan struct {
	Ranked     []Team
	References []Team
	Batches    []Batch
}

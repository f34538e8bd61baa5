package model

import "time"

// JobSummary captures metrics from a single scheduled job iteration.
type JobSummary struct {
	Job      string
	Leader   bool
	Batches  int
	Payments int
	Skipped  int
	Duration time.Duration
}

package model

import "time"

// BroadcastReport aggregates the outcome of one broadcast run. Sent+Failed
// always equals the number of targeted users.
type BroadcastReport struct {
	JobID    string
	Sent     int
	Failed   int
	Duration time.Duration
}

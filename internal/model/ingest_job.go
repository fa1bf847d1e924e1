package model

import "time"

// IngestJob asks a worker to reconcile the corpus with the index.
type IngestJob struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

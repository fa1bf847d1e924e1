package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chai-assistant/internal/ingest"
	"chai-assistant/internal/model"
)

var ErrIngestEnqueue = errors.New("ingest job enqueue failed")

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type Reconciler interface {
	Reconcile(ctx context.Context) (*ingest.Report, error)
}

type IngestOutcome struct {
	Queued bool           `json:"queued"`
	JobID  string         `json:"job_id"`
	Report *ingest.Report `json:"report,omitempty"`
}

// IngestService runs corpus reconciliation on demand. With a publisher the
// work is queued for a worker, otherwise it runs in the caller.
type IngestService struct {
	reconciler Reconciler
	publisher  JobPublisher
	logger     *slog.Logger

	mu sync.Mutex
}

func NewIngestService(reconciler Reconciler, publisher JobPublisher, logger *slog.Logger) *IngestService {
	return &IngestService{
		reconciler: reconciler,
		publisher:  publisher,
		logger:     logger,
	}
}

// Reconcile runs one reconciliation; concurrent callers are serialised.
func (s *IngestService) Reconcile(ctx context.Context) (*ingest.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Reconcile(ctx)
}

func (s *IngestService) Trigger(ctx context.Context, reason string) (*IngestOutcome, error) {
	job := model.IngestJob{
		ID:          uuid.NewString(),
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
	logger := s.logger.With("job_id", job.ID, "reason", reason)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, job); err != nil {
			logger.Error("publish ingest job failed", "error", err)
			return nil, ErrIngestEnqueue
		}
		logger.Info("ingest job queued")
		return &IngestOutcome{Queued: true, JobID: job.ID}, nil
	}

	report, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("ingest finished", "inserted", len(report.Inserted), "skipped", report.Skipped)
	return &IngestOutcome{JobID: job.ID, Report: report}, nil
}

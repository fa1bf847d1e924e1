package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"chai-assistant/internal/ingest"
	"chai-assistant/internal/model"
	"chai-assistant/internal/platform/rabbitmq"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (*ingest.Report, error)
}

// ReconcileWorker consumes ingest jobs and reconciles the corpus for each.
type ReconcileWorker struct {
	conn       *amqp.Connection
	reconciler Reconciler
	queueName  string
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReconcileWorker(conn *amqp.Connection, reconciler Reconciler, queueName string, logger *slog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		conn:       conn,
		reconciler: reconciler,
		queueName:  queueName,
		logger:     logger.With("queue", queueName),
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	// One job at a time; reconciliation is not worth running in parallel.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("ingest job failed", "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("reconcile worker started")
	return nil
}

func (w *ReconcileWorker) handle(ctx context.Context, body []byte) error {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode ingest job failed: %w", err)
	}

	report, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile for job %s failed: %w", job.ID, err)
	}
	w.logger.Info("ingest job done",
		"job_id", job.ID,
		"reason", job.Reason,
		"candidates", report.Candidates,
		"inserted", len(report.Inserted),
	)
	return nil
}

func (w *ReconcileWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	// TypeBulkJob is the task type for bulk job execution
	TypeBulkJob = "bulk:job"
	// QueueName is the asynq queue bulk jobs are enqueued to
	QueueName = "bulk"
)

// jobPayload is the asynq task payload triggering job execution.
type jobPayload struct {
	JobID string `json:"job_id"`
}

// queueDispatcher enqueues jobs as asynq tasks. Job state stays in the
// engine's in-memory maps; the queue only sequences execution, so queue
// dispatch is a single-process deployment mode that bounds job concurrency
// and survives submit bursts.
type queueDispatcher struct {
	client *asynq.Client
}

func newQueueDispatcher(cfg *QueueConfig) *queueDispatcher {
	return &queueDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Address, DB: cfg.DB}),
	}
}

func (d *queueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	data, err := json.Marshal(jobPayload{JobID: jobID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeBulkJob, data)

	// The engine handles per-item retries itself; a failed task must not
	// be re-run by the queue.
	opts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.Timeout(2 * time.Hour),
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue job task: %w", err)
	}

	return nil
}

func (d *queueDispatcher) Close() error {
	return d.client.Close()
}

// queueWorker runs the asynq server that executes queued jobs.
type queueWorker struct {
	log    logrus.FieldLogger
	server *asynq.Server
	engine *engine
}

func newQueueWorker(log logrus.FieldLogger, cfg *QueueConfig, e *engine) *queueWorker {
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Address, DB: cfg.DB}, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueName: 10},
	})

	return &queueWorker{
		log:    log.WithField("component", "bulk.worker"),
		server: server,
		engine: e,
	}
}

func (w *queueWorker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBulkJob, w.handleJobTask)

	go func() {
		if err := w.server.Run(mux); err != nil {
			w.log.WithError(err).Error("Queue worker stopped with error")
		}
	}()

	w.log.Info("Queue worker started")

	return nil
}

func (w *queueWorker) Stop() {
	w.server.Shutdown()
}

func (w *queueWorker) handleJobTask(ctx context.Context, task *asynq.Task) error {
	var payload jobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}

	w.engine.runJob(ctx, payload.JobID)

	return nil
}

// Verify interface compliance at compile time
var _ dispatcher = (*queueDispatcher)(nil)

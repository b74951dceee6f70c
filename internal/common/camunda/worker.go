package camunda

import (
	"context"
	"time"

	"partner-workspace/internal/common/config"
	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler processes one job. It settles the job itself (complete, fail or
// throw) and returns the error it settled with, if any.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type Worker struct {
	worker   worker.JobWorker
	taskType string
	log      logger.Logger
}

// StartWorker opens a job worker for taskType. It returns nil when the worker
// is disabled.
func StartWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler JobHandler,
	obs *observability.Observability,
	log logger.Logger,
) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(instrument(taskType, handler, obs, log)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return &Worker{worker: jobWorker, taskType: taskType, log: log}
}

// instrument adapts a JobHandler to the Zeebe handler signature and records
// job metrics around it.
func instrument(taskType string, handler JobHandler, obs *observability.Observability, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		err := handler.Handle(client, job)
		elapsed := time.Since(start)

		status := "completed"
		if err != nil {
			status = "failed"
			log.Error("Handler returned error", map[string]interface{}{
				"jobKey": job.Key,
				"error":  err.Error(),
			})
		}
		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		if obs != nil {
			obs.RecordJobProcessed(context.Background(), taskType, status)
			obs.RecordJobDuration(context.Background(), taskType, elapsed, status)
		}
	}
}

// Stop closes the job worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.log.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// Reporter settles jobs for one task type.
type Reporter struct {
	taskType string
	errors   *errors.ErrorHandler
	log      logger.Logger
}

func NewReporter(taskType string, log logger.Logger) *Reporter {
	return &Reporter{
		taskType: taskType,
		errors:   errors.NewErrorHandler(log),
		log:      log,
	}
}

// Complete completes the job with output as its variables.
func (r *Reporter) Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		r.log.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		r.log.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	r.log.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
	return nil
}

// Fail reports err to the engine: remote errors are retried, the rest are
// thrown as BPMN errors. It returns err.
func (r *Reporter) Fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	code := errors.Normalize(err).Code
	metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(code)).Inc()
	r.errors.HandleJobError(ctx, client, job, err)
	return err
}

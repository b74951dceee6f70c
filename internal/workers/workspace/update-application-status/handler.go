package updateapplicationstatus

import (
	"context"
	"encoding/json"
	"fmt"

	"partner-workspace/internal/common/camunda"
	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/models"
	"partner-workspace/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-application-status"
)

type Workflow interface {
	UpdateApplicationStatus(ctx context.Context, applicationID string, status models.ApplicationStatus) (workflow.Transition, error)
}

type Handler struct {
	config   *Config
	workflow Workflow
	reporter *camunda.Reporter
	logger   logger.Logger
}

func NewHandler(config *Config, wf Workflow, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		workflow: wf,
		reporter: camunda.NewReporter(TaskType, log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return h.reporter.Fail(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		return h.reporter.Fail(ctx, client, job, err)
	}
	return h.reporter.Complete(ctx, client, job, output)
}

// execute applies the transition. Repeating an applied transition completes
// with Changed=false rather than failing, so engine retries are safe.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	t, err := h.workflow.UpdateApplicationStatus(ctx, input.ApplicationID, models.ApplicationStatus(input.Status))
	if err != nil {
		return nil, err
	}

	out := &Output{
		ApplicationID:     t.Application.ID,
		ApplicationStatus: string(t.Application.Status),
		Changed:           !t.NoOp,
	}
	if t.Collaboration != nil {
		out.CollaborationID = t.Collaboration.ID
		out.FrameworkID = t.Collaboration.Framework.ID
	}
	if t.Notification != nil {
		out.NotificationID = t.Notification.ID
	}

	if t.NoOp && string(t.Application.Status) != input.Status {
		h.logger.Warn("application already settled", map[string]interface{}{
			"applicationId": out.ApplicationID,
			"requested":     input.Status,
			"status":        out.ApplicationStatus,
		})
	}
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

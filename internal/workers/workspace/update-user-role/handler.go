package updateuserrole

import (
	"context"
	"encoding/json"
	"fmt"

	"partner-workspace/internal/common/camunda"
	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-user-role"
)

type RoleUpdater interface {
	UpdateUserRole(ctx context.Context, userID string, role models.Role) error
}

type Handler struct {
	config   *Config
	roles    RoleUpdater
	reporter *camunda.Reporter
	logger   logger.Logger
}

func NewHandler(config *Config, roles RoleUpdater, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		roles:    roles,
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

// execute returns an error only for remote failures. Refusals such as the
// admin limit complete the job with Success=false.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	err := h.roles.UpdateUserRole(ctx, input.UserID, models.Role(input.Role))
	if errors.IsRemote(err) {
		return nil, err
	}

	res := errors.AsResult(err)
	out := &Output{
		UserID:  input.UserID,
		Role:    input.Role,
		Success: res.Success,
		Message: res.Message,
		Code:    string(res.Code),
	}
	if !res.Success {
		h.logger.Warn("role change refused", map[string]interface{}{
			"userId":  input.UserID,
			"role":    input.Role,
			"code":    out.Code,
			"message": out.Message,
		})
	}
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

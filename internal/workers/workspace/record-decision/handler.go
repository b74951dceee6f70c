package recorddecision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"partner-workspace/internal/common/camunda"
	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "record-decision"
)

type Recorder interface {
	RecordDecision(ctx context.Context, collaborationID string, d models.Decision) (models.Collaboration, error)
}

type Handler struct {
	config   *Config
	recorder Recorder
	reporter *camunda.Reporter
	logger   logger.Logger
}

func NewHandler(config *Config, recorder Recorder, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		recorder: recorder,
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.Decision = strings.TrimSpace(input.Decision)
	if err := input.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	c, err := h.recorder.RecordDecision(ctx, input.CollaborationID, models.Decision{
		Decision: input.Decision,
		Notes:    input.Notes,
		Phase:    input.Phase,
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		CollaborationID: c.ID,
		DecisionCount:   len(c.Decisions),
		Phase:           input.Phase,
	}
	if n := len(c.Decisions); n > 0 {
		out.RecordedAt = c.Decisions[n-1].Timestamp.UTC().Format(time.RFC3339)
	}

	h.logger.Info("decision recorded", map[string]interface{}{
		"collaborationId": c.ID,
		"decisionCount":   out.DecisionCount,
	})
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

package updateapplicationstatus

import (
	"context"
	"testing"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/models"
	"partner-workspace/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type MockWorkflow struct {
	UpdateFunc func(ctx context.Context, applicationID string, status models.ApplicationStatus) (workflow.Transition, error)
	calls      int
}

func (m *MockWorkflow) UpdateApplicationStatus(ctx context.Context, applicationID string, status models.ApplicationStatus) (workflow.Transition, error) {
	m.calls++
	return m.UpdateFunc(ctx, applicationID, status)
}

func application(status models.ApplicationStatus) models.Application {
	return models.Application{
		Meta:      models.Meta{ID: "app-001"},
		CompanyID: "company-001",
		PartnerID: "partner-001",
		Status:    status,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Accepted(t *testing.T) {
	wf := &MockWorkflow{UpdateFunc: func(_ context.Context, id string, status models.ApplicationStatus) (workflow.Transition, error) {
		assert.Equal(t, "app-001", id)
		assert.Equal(t, models.StatusAccepted, status)
		return workflow.Transition{
			Application: application(models.StatusAccepted),
			Collaboration: &models.Collaboration{
				Meta:      models.Meta{ID: "collab-001"},
				Framework: models.Framework{ID: "lean-canvas"},
			},
			Notification: &models.Notification{Meta: models.Meta{ID: "n-1"}},
		}, nil
	}}

	handler := NewHandler(LoadConfig(), wf, logger.NewTestLogger(t))
	out, err := handler.Execute(context.Background(), &Input{ApplicationID: "app-001", Status: "accepted"})

	require.NoError(t, err)
	assert.Equal(t, "accepted", out.ApplicationStatus)
	assert.Equal(t, "collab-001", out.CollaborationID)
	assert.Equal(t, "lean-canvas", out.FrameworkID)
	assert.Equal(t, "n-1", out.NotificationID)
	assert.True(t, out.Changed)
}

func TestHandler_Execute_AlreadySettled(t *testing.T) {
	wf := &MockWorkflow{UpdateFunc: func(context.Context, string, models.ApplicationStatus) (workflow.Transition, error) {
		return workflow.Transition{Application: application(models.StatusRejected), NoOp: true}, nil
	}}

	handler := NewHandler(LoadConfig(), wf, logger.NewTestLogger(t))
	out, err := handler.Execute(context.Background(), &Input{ApplicationID: "app-001", Status: "accepted"})

	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, "rejected", out.ApplicationStatus)
	assert.Empty(t, out.CollaborationID)
}

// ==========================
// Validation and Error Tests
// ==========================

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		field string
	}{
		{"missing id", Input{Status: "accepted"}, "applicationId"},
		{"unknown status", Input{ApplicationID: "app-001", Status: "archived"}, "status"},
		{"missing status", Input{ApplicationID: "app-001"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &MockWorkflow{}
			handler := NewHandler(LoadConfig(), wf, logger.NewTestLogger(t))

			_, err := handler.Execute(context.Background(), &tt.input)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.field)
			assert.Equal(t, 0, wf.calls)
		})
	}
}

func TestHandler_Execute_RemoteFailure(t *testing.T) {
	wf := &MockWorkflow{UpdateFunc: func(context.Context, string, models.ApplicationStatus) (workflow.Transition, error) {
		return workflow.Transition{}, errors.NewRemoteWriteError("set_application_status", assert.AnError)
	}}
	handler := NewHandler(LoadConfig(), wf, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{ApplicationID: "app-001", Status: "rejected"})
	require.Error(t, err)
	assert.True(t, errors.IsRemote(err))
	assert.Equal(t, 3, errors.GetRetryCount(errors.ErrCodeRemoteWriteFailed))
}

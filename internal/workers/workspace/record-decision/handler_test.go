package recorddecision

import (
	"context"
	"testing"
	"time"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type MockRecorder struct {
	RecordDecisionFunc func(ctx context.Context, collaborationID string, d models.Decision) (models.Collaboration, error)
	calls              int
}

func (m *MockRecorder) RecordDecision(ctx context.Context, collaborationID string, d models.Decision) (models.Collaboration, error) {
	m.calls++
	return m.RecordDecisionFunc(ctx, collaborationID, d)
}

var recordedAt = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

func appendingRecorder(existing ...models.Decision) *MockRecorder {
	return &MockRecorder{RecordDecisionFunc: func(_ context.Context, id string, d models.Decision) (models.Collaboration, error) {
		d.Timestamp = recordedAt
		return models.Collaboration{
			Meta:      models.Meta{ID: id},
			Decisions: append(append([]models.Decision(nil), existing...), d),
		}, nil
	}}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	rec := appendingRecorder(models.Decision{Decision: "Go with B2B"})
	handler := NewHandler(LoadConfig(), rec, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{
		CollaborationID: "collab-001",
		Decision:        "  Pilot in Berlin  ",
		Phase:           "Solution",
	})

	require.NoError(t, err)
	assert.Equal(t, "collab-001", out.CollaborationID)
	assert.Equal(t, 2, out.DecisionCount)
	assert.Equal(t, "Solution", out.Phase)
	assert.Equal(t, "2024-06-03T14:30:00Z", out.RecordedAt)
}

func TestHandler_Execute_TrimsDecisionText(t *testing.T) {
	var got models.Decision
	rec := &MockRecorder{RecordDecisionFunc: func(_ context.Context, id string, d models.Decision) (models.Collaboration, error) {
		got = d
		return models.Collaboration{Meta: models.Meta{ID: id}, Decisions: []models.Decision{d}}, nil
	}}
	handler := NewHandler(LoadConfig(), rec, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{CollaborationID: "collab-001", Decision: " Ship it "})
	require.NoError(t, err)
	assert.Equal(t, "Ship it", got.Decision)
}

// ==========================
// Validation and Error Tests
// ==========================

func TestHandler_Execute_BlankDecision(t *testing.T) {
	rec := appendingRecorder()
	handler := NewHandler(LoadConfig(), rec, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{CollaborationID: "collab-001", Decision: "   "})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, rec.calls)
}

func TestHandler_Execute_UnknownCollaboration(t *testing.T) {
	rec := &MockRecorder{RecordDecisionFunc: func(_ context.Context, id string, _ models.Decision) (models.Collaboration, error) {
		return models.Collaboration{}, errors.NewEntityNotFoundError("collaboration", id)
	}}
	handler := NewHandler(LoadConfig(), rec, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{CollaborationID: "missing", Decision: "x"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeEntityNotFound))
}

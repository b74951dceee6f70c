package updateuserrole

import (
	"context"
	"testing"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/facade"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type MockRoleUpdater struct {
	UpdateUserRoleFunc func(ctx context.Context, userID string, role models.Role) error
}

func (m *MockRoleUpdater) UpdateUserRole(ctx context.Context, userID string, role models.Role) error {
	return m.UpdateUserRoleFunc(ctx, userID, role)
}

// newFacade seeds admins admin users plus one partner user "target".
func newFacade(t *testing.T, admins int) (*facade.Facade, string) {
	t.Helper()
	ctx := context.Background()
	mem := persistence.NewMemory()
	for i := 0; i < admins; i++ {
		_, err := mem.Create(ctx, persistence.Users, models.User{Name: "Admin", Email: "a@example.com", Role: models.RoleAdmin})
		require.NoError(t, err)
	}
	rec, err := mem.Create(ctx, persistence.Users, models.User{Name: "Target", Email: "t@example.com", Role: models.RolePartner})
	require.NoError(t, err)

	store := domain.New(mem, domain.WithLogger(logger.NewTestLogger(t)))
	require.True(t, store.RefreshAll(ctx).OK())
	f := facade.New(mem, store, facade.Config{}, facade.WithLogger(logger.NewTestLogger(t)))
	t.Cleanup(f.Close)
	return f, rec.ID
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_PromotesBelowLimit(t *testing.T) {
	f, userID := newFacade(t, 4)
	handler := NewHandler(LoadConfig(), f, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{UserID: userID, Role: "admin"})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Empty(t, out.Code)
	u, ok := f.Store().Snapshot().User(userID)
	require.True(t, ok)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

func TestHandler_Execute_AdminLimitReached(t *testing.T) {
	f, userID := newFacade(t, 5)
	handler := NewHandler(LoadConfig(), f, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{UserID: userID, Role: "admin"})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, string(errors.ErrCodeRoleLimitExceeded), out.Code)
	assert.Contains(t, out.Message, "5")
	u, _ := f.Store().Snapshot().User(userID)
	assert.Equal(t, models.RolePartner, u.Role)
}

// ==========================
// Validation and Error Tests
// ==========================

func TestHandler_Execute_InvalidRole(t *testing.T) {
	roles := &MockRoleUpdater{UpdateUserRoleFunc: func(context.Context, string, models.Role) error {
		t.Fatal("must not be called")
		return nil
	}}
	handler := NewHandler(LoadConfig(), roles, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{UserID: "u1", Role: "owner"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestHandler_Execute_RemoteFailureFailsJob(t *testing.T) {
	roles := &MockRoleUpdater{UpdateUserRoleFunc: func(context.Context, string, models.Role) error {
		return errors.NewRemoteWriteError("update_user_role", assert.AnError)
	}}
	handler := NewHandler(LoadConfig(), roles, logger.NewTestLogger(t))

	out, err := handler.Execute(context.Background(), &Input{UserID: "u1", Role: "sponsor"})
	assert.Nil(t, out)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRemoteWriteFailed))
}

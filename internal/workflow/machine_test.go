package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	commonerrors "partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/facade"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"
	"partner-workspace/internal/persistence/persistencetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

type staticCatalog []models.Framework

func (c staticCatalog) Frameworks() []models.Framework { return c }

var leanCanvas = models.Framework{
	ID:      "lean",
	Name:    "Lean Canvas",
	Phases:  []string{"discover", "validate", "scale"},
	Metrics: []string{"activation"},
}

type fixture struct {
	flaky   *persistencetest.Flaky
	store   *domain.Store
	f       *facade.Facade
	m       *Machine
	company models.CompanyProfile
	partner models.PartnerProfile
	sponsor models.User
	member  models.User
}

func insert[T any, P models.MetaSetter[T]](t *testing.T, c persistence.Client, coll persistence.Collection, v T) T {
	t.Helper()
	rec, err := c.Create(context.Background(), coll, v)
	require.NoError(t, err)
	out, err := persistence.Decode[T, P](rec)
	require.NoError(t, err)
	return out
}

func newFixture(t *testing.T, catalog Catalog) *fixture {
	t.Helper()
	mem := persistence.NewMemory()
	fx := &fixture{flaky: persistencetest.NewFlaky(mem)}

	fx.company = insert(t, mem, persistence.Companies, models.CompanyProfile{Name: "Acme"})
	fx.partner = insert(t, mem, persistence.Partners, models.PartnerProfile{Name: "Pat"})
	fx.sponsor = insert(t, mem, persistence.Users, models.User{
		Name: "Sam", Role: models.RoleSponsor, ProfileID: fx.company.ID, ProfileKind: models.ProfileCompany,
	})
	fx.member = insert(t, mem, persistence.Users, models.User{
		Name: "Pia", Role: models.RolePartner, ProfileID: fx.partner.ID, ProfileKind: models.ProfilePartner,
	})

	log := logger.NewTestLogger(t)
	fx.store = domain.New(fx.flaky, domain.WithLogger(log))
	fx.store.RefreshAll(context.Background())
	fx.f = facade.New(fx.flaky, fx.store, facade.Config{}, facade.WithLogger(log))
	t.Cleanup(fx.f.Close)
	fx.m = New(fx.f, FirstInCatalog{Catalog: catalog}, WithLogger(log))
	return fx
}

func (fx *fixture) snap() *domain.Snapshot { return fx.store.Snapshot() }

func (fx *fixture) pending(t *testing.T) models.Application {
	t.Helper()
	tr, err := fx.m.CreateApplication(context.Background(), fx.company.ID, fx.partner.ID)
	require.NoError(t, err)
	return tr.Application
}

// ==========================
// CreateApplication
// ==========================

func TestCreateApplication_TwiceYieldsOne(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()

	first, err := fx.m.CreateApplication(ctx, fx.company.ID, fx.partner.ID)
	require.NoError(t, err)
	assert.False(t, first.NoOp)
	assert.Equal(t, models.StatusPending, first.Application.Status)

	second, err := fx.m.CreateApplication(ctx, fx.company.ID, fx.partner.ID)
	require.NoError(t, err)
	assert.True(t, second.NoOp)
	assert.Equal(t, first.Application.ID, second.Application.ID)

	fx.store.RefreshAll(ctx)
	assert.Len(t, fx.snap().ApplicationsForCompany(fx.company.ID), 1)

	notes := fx.snap().NotificationsFor(fx.sponsor.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, "Pat has applied to Acme", notes[0].Message)
	assert.Equal(t, "/company/"+fx.company.ID, notes[0].Link)
}

func TestCreateApplication_StaleSnapshotConflict(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()

	// another process files the application behind our cache
	_, err := fx.flaky.Create(ctx, persistence.Applications, models.Application{
		CompanyID: fx.company.ID, PartnerID: fx.partner.ID, Status: models.StatusPending,
	})
	require.NoError(t, err)

	tr, err := fx.m.CreateApplication(ctx, fx.company.ID, fx.partner.ID)
	require.NoError(t, err)
	assert.True(t, tr.NoOp)
	assert.Len(t, fx.snap().ApplicationsForCompany(fx.company.ID), 1)
	assert.Empty(t, fx.snap().NotificationsFor(fx.sponsor.ID))
}

func TestCreateApplication_UnknownProfiles(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})

	_, err := fx.m.CreateApplication(context.Background(), "nope", fx.partner.ID)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeEntityNotFound))
	_, err = fx.m.CreateApplication(context.Background(), fx.company.ID, "nope")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeEntityNotFound))
}

// ==========================
// Accept / Reject
// ==========================

func TestAccept_CreatesCollaborationFromFrameworkCopy(t *testing.T) {
	catalog := staticCatalog{leanCanvas.Copy()}
	fx := newFixture(t, catalog)
	app := fx.pending(t)

	tr, err := fx.m.UpdateApplicationStatus(context.Background(), app.ID, models.StatusAccepted)
	require.NoError(t, err)
	require.NotNil(t, tr.Collaboration)
	assert.Equal(t, models.StatusAccepted, tr.Application.Status)

	catalog[0].Phases[0] = "mutated"

	collab, ok := fx.snap().CollaborationForApplication(app.ID)
	require.True(t, ok)
	assert.Equal(t, leanCanvas.Phases, collab.Framework.Phases)
	assert.Equal(t, fx.company.ID, collab.CompanyID)
	assert.Equal(t, fx.partner.ID, collab.PartnerID)

	notes := fx.snap().NotificationsFor(fx.member.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, "Your application to Acme was accepted!", notes[0].Message)
	assert.Equal(t, "/workspace/"+fx.company.ID, notes[0].Link)
}

func TestAccept_TerminalIsAbsorbing(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	_, err := fx.m.Accept(ctx, app.ID)
	require.NoError(t, err)

	again, err := fx.m.Accept(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.NotNil(t, again.Collaboration)

	rejected, err := fx.m.Reject(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, rejected.NoOp)

	fx.store.RefreshAll(ctx)
	assert.Len(t, fx.snap().CollaborationsForProfile(fx.company.ID), 1)
	assert.Len(t, fx.snap().NotificationsFor(fx.member.ID), 1)
	got, _ := fx.snap().Application(app.ID)
	assert.Equal(t, models.StatusAccepted, got.Status)
}

func TestReject(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	tr, err := fx.m.Reject(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, tr.Application.Status)
	assert.Nil(t, tr.Collaboration)

	notes := fx.snap().NotificationsFor(fx.member.ID)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "was not successful")
	assert.Equal(t, "/dashboard", notes[0].Link)

	acc, err := fx.m.Accept(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, acc.NoOp)
	_, ok := fx.snap().CollaborationForApplication(app.ID)
	assert.False(t, ok)
}

func TestAccept_EmptyCatalogLeavesPending(t *testing.T) {
	fx := newFixture(t, staticCatalog{})
	app := fx.pending(t)

	_, err := fx.m.Accept(context.Background(), app.ID)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeFrameworkNotFound))

	got, _ := fx.snap().Application(app.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Zero(t, fx.flaky.Calls(persistencetest.OpCreate, persistence.Collaborations))
}

func TestAccept_RetryAfterStatusWriteFailureReusesCollaboration(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	fx.flaky.FailOn(persistencetest.OpUpdate, persistence.Applications, errors.New("write timeout"))
	_, err := fx.m.Accept(ctx, app.ID)
	require.Error(t, err)
	assert.True(t, commonerrors.IsRemote(err))

	fx.flaky.Clear(persistencetest.OpUpdate, persistence.Applications)
	tr, err := fx.m.Accept(ctx, app.ID)
	require.NoError(t, err)
	assert.False(t, tr.NoOp)

	fx.store.RefreshAll(ctx)
	assert.Len(t, fx.snap().CollaborationsForProfile(fx.partner.ID), 1)
	assert.Equal(t, 1, fx.flaky.Calls(persistencetest.OpCreate, persistence.Collaborations))
}

func TestAccept_ConcurrentCallsCreateOneCollaboration(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	app := fx.pending(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.m.Accept(context.Background(), app.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fx.store.RefreshAll(context.Background())
	assert.Len(t, fx.snap().CollaborationsForProfile(fx.company.ID), 1)
	assert.Len(t, fx.snap().NotificationsFor(fx.member.ID), 1)
}

func TestReject_AfterOverlappingRefreshIsAbsorbed(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	// a refresh that read the applications before the accept lands after it
	stale, err := fx.flaky.GetAll(ctx, persistence.Applications)
	require.NoError(t, err)
	fx.flaky.OverrideGetAll(persistence.Applications, stale)
	release := fx.flaky.Gate(persistencetest.OpGetAll, persistence.Collaborations)
	before := fx.flaky.Calls(persistencetest.OpGetAll, persistence.Collaborations)

	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		fx.store.RefreshAll(ctx)
	}()
	require.Eventually(t, func() bool {
		return fx.flaky.Calls(persistencetest.OpGetAll, persistence.Collaborations) > before
	}, time.Second, time.Millisecond)

	accepted, err := fx.m.Accept(ctx, app.ID)
	require.NoError(t, err)
	require.False(t, accepted.NoOp)

	release()
	<-refreshed
	fx.flaky.ClearOverride(persistence.Applications)
	cached, _ := fx.snap().Application(app.ID)
	require.Equal(t, models.StatusPending, cached.Status)

	tr, err := fx.m.Reject(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, tr.NoOp)
	assert.Equal(t, models.StatusAccepted, tr.Application.Status)

	rec, err := fx.flaky.Get(ctx, persistence.Applications, app.ID)
	require.NoError(t, err)
	stored, err := persistence.Decode[models.Application](rec)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)

	cached, _ = fx.snap().Application(app.ID)
	assert.Equal(t, models.StatusAccepted, cached.Status)

	fx.store.RefreshAll(ctx)
	assert.Len(t, fx.snap().NotificationsFor(fx.member.ID), 1)
	assert.Len(t, fx.snap().CollaborationsForProfile(fx.partner.ID), 1)
}

func TestTransitions_SharedLeaseAcrossProcesses(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	_, rdb := setupRedis(t)
	lease := NewRedisLocker(rdb, "workspace", time.Second)
	log := logger.NewTestLogger(t)

	// a second process with its own cache over the same store
	otherStore := domain.New(fx.flaky, domain.WithLogger(log))
	otherStore.RefreshAll(ctx)
	other := facade.New(fx.flaky, otherStore, facade.Config{}, facade.WithLogger(log))
	t.Cleanup(other.Close)
	first := New(fx.f, FirstInCatalog{Catalog: staticCatalog{leanCanvas}}, WithLocker(lease), WithLogger(log))
	second := New(other, FirstInCatalog{Catalog: staticCatalog{leanCanvas}}, WithLocker(lease), WithLogger(log))

	_, err := first.Accept(ctx, app.ID)
	require.NoError(t, err)

	cached, _ := otherStore.Snapshot().Application(app.ID)
	require.Equal(t, models.StatusPending, cached.Status)

	rejected, err := second.Reject(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, rejected.NoOp)
	again, err := second.Accept(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, again.NoOp)
	assert.Nil(t, again.Notification)

	cached, _ = otherStore.Snapshot().Application(app.ID)
	assert.Equal(t, models.StatusAccepted, cached.Status)

	fx.store.RefreshAll(ctx)
	got, _ := fx.snap().Application(app.ID)
	assert.Equal(t, models.StatusAccepted, got.Status)
	assert.Len(t, fx.snap().NotificationsFor(fx.member.ID), 1)
	assert.Len(t, fx.snap().CollaborationsForProfile(fx.company.ID), 1)
	assert.Equal(t, 1, fx.flaky.Calls(persistencetest.OpCreate, persistence.Collaborations))
}

func TestAccept_OwnerlessPartnerStillTransitions(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	orphan := insert(t, fx.flaky, persistence.Partners, models.PartnerProfile{Name: "Orphan"})
	fx.store.RefreshAll(ctx)

	created, err := fx.m.CreateApplication(ctx, fx.company.ID, orphan.ID)
	require.NoError(t, err)
	tr, err := fx.m.Accept(ctx, created.Application.ID)
	require.NoError(t, err)
	assert.Nil(t, tr.Notification)
	assert.NotNil(t, tr.Collaboration)
}

func TestUpdateApplicationStatus_Pending(t *testing.T) {
	fx := newFixture(t, staticCatalog{leanCanvas})
	ctx := context.Background()
	app := fx.pending(t)

	tr, err := fx.m.UpdateApplicationStatus(ctx, app.ID, models.StatusPending)
	require.NoError(t, err)
	assert.True(t, tr.NoOp)

	_, err = fx.m.Reject(ctx, app.ID)
	require.NoError(t, err)
	_, err = fx.m.UpdateApplicationStatus(ctx, app.ID, models.StatusPending)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeInvalidTransition))

	_, err = fx.m.UpdateApplicationStatus(ctx, app.ID, "archived")
	assert.True(t, commonerrors.IsValidation(err))
	_, err = fx.m.UpdateApplicationStatus(ctx, "missing", models.StatusAccepted)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeEntityNotFound))
}

// ==========================
// Policies
// ==========================

func TestFrameworkPolicies(t *testing.T) {
	other := models.Framework{ID: "okr", Name: "OKR", Phases: []string{"plan", "review"}}
	catalog := staticCatalog{leanCanvas, other}

	fw, err := FirstInCatalog{Catalog: catalog}.Select(models.Application{})
	require.NoError(t, err)
	assert.Equal(t, "lean", fw.ID)

	fw, err = FixedFramework{Catalog: catalog, ID: "okr"}.Select(models.Application{})
	require.NoError(t, err)
	assert.Equal(t, "okr", fw.ID)

	_, err = FixedFramework{Catalog: catalog, ID: "nope"}.Select(models.Application{})
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeFrameworkNotFound))
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		id      string
		wantErr bool
	}{
		{"default", "", "", false},
		{"first", "first", "", false},
		{"fixed", "fixed", "okr", false},
		{"fixed without id", "fixed", "", true},
		{"unknown", "random", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.policy, tt.id, staticCatalog{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

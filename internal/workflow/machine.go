// Package workflow drives the application lifecycle: Pending to Accepted or
// Rejected, the collaboration an acceptance creates and the notifications each
// step emits. Terminal states absorb further transitions.
package workflow

import (
	"context"
	stderrors "errors"
	"fmt"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/facade"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"
)

const (
	resultApplied = "applied"
	resultNoop    = "noop"
	resultFailed  = "failed"
)

// Transition describes what one workflow call did.
type Transition struct {
	Application   models.Application
	Collaboration *models.Collaboration
	Notification  *models.Notification
	// NoOp is set when the call found the work already done.
	NoOp bool
}

type Machine struct {
	f      *facade.Facade
	policy FrameworkPolicy
	locker Locker
	log    logger.Logger
}

type Option func(*Machine)

func WithLocker(l Locker) Option {
	return func(m *Machine) { m.locker = l }
}

func WithLogger(log logger.Logger) Option {
	return func(m *Machine) { m.log = log }
}

func New(f *facade.Facade, policy FrameworkPolicy, opts ...Option) *Machine {
	m := &Machine{f: f, policy: policy}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		m.locker = NewLocalLocker()
	}
	m.log = logger.ForComponent(m.log, "workflow")
	return m
}

func (m *Machine) snapshot() *domain.Snapshot { return m.f.Store().Snapshot() }

func observe(status models.ApplicationStatus, t Transition, err error) {
	result := resultApplied
	switch {
	case err != nil:
		result = resultFailed
	case t.NoOp:
		result = resultNoop
	}
	metrics.ApplicationTransitions.WithLabelValues(string(status), result).Inc()
}

// CreateApplication files a pending application for the pair and notifies the
// company's owner. If the pair already has an application, that one is
// returned and nothing is written.
func (m *Machine) CreateApplication(ctx context.Context, companyID, partnerID string) (t Transition, err error) {
	defer func() { observe(models.StatusPending, t, err) }()

	unlock, err := m.locker.Lock(ctx, "pair:"+companyID+"|"+partnerID)
	if err != nil {
		return t, err
	}
	defer unlock()

	snap := m.snapshot()
	company, ok := snap.Company(companyID)
	if !ok {
		return t, errors.NewEntityNotFoundError("company", companyID)
	}
	partner, ok := snap.Partner(partnerID)
	if !ok {
		return t, errors.NewEntityNotFoundError("partner", partnerID)
	}
	if existing, ok := snap.ApplicationFor(companyID, partnerID); ok {
		return Transition{Application: existing, NoOp: true}, nil
	}

	app, err := m.f.InsertApplication(ctx, companyID, partnerID)
	if stderrors.Is(err, persistence.ErrConflict) {
		// filed by another process after our snapshot was taken
		m.f.Refresh(ctx)
		if existing, ok := m.snapshot().ApplicationFor(companyID, partnerID); ok {
			return Transition{Application: existing, NoOp: true}, nil
		}
	}
	if err != nil {
		return t, err
	}
	t.Application = app

	m.log.Info("Application created", map[string]interface{}{
		"applicationId": app.ID,
		"companyId":     companyID,
		"partnerId":     partnerID,
	})

	t.Notification = m.notifyOwner(ctx, companyID,
		fmt.Sprintf("%s has applied to %s", partner.Name, company.Name),
		"/company/"+companyID)
	return t, nil
}

// Accept moves a pending application to Accepted, binding exactly one
// collaboration to it. The collaboration is created before the status flips so
// that a retry after a partial failure reuses it.
func (m *Machine) Accept(ctx context.Context, applicationID string) (t Transition, err error) {
	defer func() { observe(models.StatusAccepted, t, err) }()

	unlock, app, err := m.lockPending(ctx, applicationID)
	if err != nil {
		return t, err
	}
	defer unlock()
	if app.Status.Terminal() {
		return m.absorbed(app), nil
	}

	fw, err := m.policy.Select(app)
	if err != nil {
		return t, err
	}
	collab, err := m.collaborationFor(ctx, app, fw)
	if err != nil {
		return t, err
	}

	app, err = m.f.SetApplicationStatus(ctx, app.ID, models.StatusAccepted)
	if err != nil {
		return t, err
	}
	t.Application = app
	t.Collaboration = &collab

	m.log.Info("Application accepted", map[string]interface{}{
		"applicationId":   app.ID,
		"collaborationId": collab.ID,
		"frameworkId":     collab.Framework.ID,
	})

	t.Notification = m.notifyOwner(ctx, app.PartnerID,
		fmt.Sprintf("Your application to %s was accepted!", m.companyName(app.CompanyID)),
		"/workspace/"+app.CompanyID)
	return t, nil
}

// Reject moves a pending application to Rejected. No collaboration is created.
func (m *Machine) Reject(ctx context.Context, applicationID string) (t Transition, err error) {
	defer func() { observe(models.StatusRejected, t, err) }()

	unlock, app, err := m.lockPending(ctx, applicationID)
	if err != nil {
		return t, err
	}
	defer unlock()
	if app.Status.Terminal() {
		return m.absorbed(app), nil
	}

	app, err = m.f.SetApplicationStatus(ctx, app.ID, models.StatusRejected)
	if err != nil {
		return t, err
	}
	t.Application = app

	m.log.Info("Application rejected", map[string]interface{}{
		"applicationId": app.ID,
	})

	t.Notification = m.notifyOwner(ctx, app.PartnerID,
		fmt.Sprintf("Your application to %s was not successful this time.", m.companyName(app.CompanyID)),
		"/dashboard")
	return t, nil
}

// UpdateApplicationStatus dispatches to Accept or Reject. Pending is only
// accepted as a target when the application is still pending.
func (m *Machine) UpdateApplicationStatus(ctx context.Context, applicationID string, status models.ApplicationStatus) (Transition, error) {
	switch status {
	case models.StatusAccepted:
		return m.Accept(ctx, applicationID)
	case models.StatusRejected:
		return m.Reject(ctx, applicationID)
	case models.StatusPending:
		app, err := m.f.LoadApplication(ctx, applicationID)
		if err != nil {
			return Transition{}, err
		}
		if app.Status != models.StatusPending {
			return Transition{}, errors.NewInvalidTransitionError(string(app.Status), string(status))
		}
		return Transition{Application: app, NoOp: true}, nil
	}
	return Transition{}, errors.NewValidationError("unknown application status " + string(status))
}

func (m *Machine) lockPending(ctx context.Context, applicationID string) (func(), models.Application, error) {
	unlock, err := m.locker.Lock(ctx, "application:"+applicationID)
	if err != nil {
		return nil, models.Application{}, err
	}
	// the cached snapshot may predate a transition made by this or another
	// process, so the decision is taken on the stored record
	app, err := m.f.LoadApplication(ctx, applicationID)
	if err != nil {
		unlock()
		return nil, app, err
	}
	return unlock, app, nil
}

func (m *Machine) absorbed(app models.Application) Transition {
	t := Transition{Application: app, NoOp: true}
	if c, ok := m.snapshot().CollaborationForApplication(app.ID); ok {
		t.Collaboration = &c
	}
	m.log.Debug("Application already terminal", map[string]interface{}{
		"applicationId": app.ID,
		"status":        string(app.Status),
	})
	return t
}

func (m *Machine) collaborationFor(ctx context.Context, app models.Application, fw models.Framework) (models.Collaboration, error) {
	if c, ok := m.snapshot().CollaborationForApplication(app.ID); ok {
		return c, nil
	}
	c, err := m.f.InsertCollaboration(ctx, app, fw)
	if stderrors.Is(err, persistence.ErrConflict) {
		m.f.Refresh(ctx)
		if existing, ok := m.snapshot().CollaborationForApplication(app.ID); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Machine) companyName(companyID string) string {
	if c, ok := m.snapshot().Company(companyID); ok && c.Name != "" {
		return c.Name
	}
	return companyID
}

// notifyOwner notifies the user owning profileID. The transition has already
// committed, so failures are logged rather than returned.
func (m *Machine) notifyOwner(ctx context.Context, profileID, message, link string) *models.Notification {
	owner, ok := m.snapshot().OwnerOf(profileID)
	if !ok {
		m.log.Warn("No owner for profile, notification skipped", map[string]interface{}{
			"profileId": profileID,
		})
		return nil
	}
	n, err := m.f.CreateNotification(ctx, owner.ID, message, link)
	if err != nil {
		m.log.Error("Notification could not be created", map[string]interface{}{
			"profileId": profileID,
			"userId":    owner.ID,
			"error":     err.Error(),
		})
		return nil
	}
	return &n
}

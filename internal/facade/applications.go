package facade

import (
	"context"
	stderrors "errors"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"go.opentelemetry.io/otel/attribute"
)

// InsertApplication persists a pending application for the pair. It does not
// look for an existing one; a store-level duplicate surfaces as a
// DUPLICATE_APPLICATION error that still wraps persistence.ErrConflict.
func (f *Facade) InsertApplication(ctx context.Context, companyID, partnerID string) (models.Application, error) {
	var out models.Application
	err := f.run(ctx, "insert_application", func(ctx context.Context) error {
		if companyID == "" || partnerID == "" {
			return errors.NewValidationError("companyId and partnerId are required")
		}
		rec, err := f.create(ctx, "insert_application", persistence.Applications, models.Application{
			CompanyID: companyID,
			PartnerID: partnerID,
			Status:    models.StatusPending,
		})
		if stderrors.Is(err, persistence.ErrConflict) {
			return errors.NewDuplicateApplicationError(companyID, partnerID, err)
		}
		if err != nil {
			return err
		}
		out, err = decode[models.Application](rec)
		return err
	}, attribute.String("company.id", companyID), attribute.String("partner.id", partnerID))
	return out, err
}

// SetApplicationStatus writes a status. Transition rules live in the workflow.
func (f *Facade) SetApplicationStatus(ctx context.Context, applicationID string, status models.ApplicationStatus) (models.Application, error) {
	var out models.Application
	err := f.run(ctx, "set_application_status", func(ctx context.Context) error {
		if !status.Valid() {
			return errors.NewValidationError("unknown application status " + string(status))
		}
		if _, ok := f.snapshot().Application(applicationID); !ok {
			return errors.NewEntityNotFoundError("application", applicationID)
		}
		rec, err := f.update(ctx, "set_application_status", persistence.Applications, applicationID, map[string]any{"status": status})
		if err != nil {
			return err
		}
		out, err = decode[models.Application](rec)
		return err
	}, attribute.String("application.id", applicationID), attribute.String("status", string(status)))
	return out, err
}

// LoadApplication reads an application from the store, bypassing the cached
// snapshot, and reconciles the cache with it. Workflow transitions decide on
// this read.
func (f *Facade) LoadApplication(ctx context.Context, applicationID string) (models.Application, error) {
	rec, err := f.client.Get(ctx, persistence.Applications, applicationID)
	if stderrors.Is(err, persistence.ErrNotFound) {
		return models.Application{}, errors.NewEntityNotFoundError("application", applicationID)
	}
	if err != nil {
		return models.Application{}, errors.NewRemoteReadError(string(persistence.Applications), err)
	}
	app, err := decode[models.Application](rec)
	if err != nil {
		return models.Application{}, err
	}
	f.store.UpsertApplication(app)
	return app, nil
}

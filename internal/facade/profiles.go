package facade

import (
	"context"
	"io"
	"path"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/validation"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"go.opentelemetry.io/otel/attribute"
)

func validatePatch(schema *validation.Schema, patch map[string]any) error {
	res, err := schema.Validate(patch)
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	if !res.Valid {
		return errors.NewValidationError(res.Summary())
	}
	return nil
}

// UpdateCompanyProfile applies patch to the cached company at once, then
// persists it. A failed write rolls the cached company back.
func (f *Facade) UpdateCompanyProfile(ctx context.Context, companyID string, patch map[string]any) (models.CompanyProfile, error) {
	var out models.CompanyProfile
	err := f.run(ctx, "update_company_profile", func(ctx context.Context) error {
		if err := validatePatch(validation.CompanyProfilePatch, patch); err != nil {
			return err
		}
		c, ok := f.snapshot().Company(companyID)
		if !ok {
			return errors.NewEntityNotFoundError("company", companyID)
		}
		var err error
		out, err = patchOptimistically(ctx, f, optimistic[models.CompanyProfile]{
			collection: persistence.Companies,
			op:         "update_company_profile",
			get:        (*domain.Snapshot).Company,
			put:        f.store.PatchCompany,
		}, c, patch)
		return err
	}, attribute.String("company.id", companyID))
	return out, err
}

// UpdatePartnerProfile is the partner counterpart of UpdateCompanyProfile.
func (f *Facade) UpdatePartnerProfile(ctx context.Context, partnerID string, patch map[string]any) (models.PartnerProfile, error) {
	var out models.PartnerProfile
	err := f.run(ctx, "update_partner_profile", func(ctx context.Context) error {
		if err := validatePatch(validation.PartnerProfilePatch, patch); err != nil {
			return err
		}
		p, ok := f.snapshot().Partner(partnerID)
		if !ok {
			return errors.NewEntityNotFoundError("partner", partnerID)
		}
		var err error
		out, err = patchOptimistically(ctx, f, optimistic[models.PartnerProfile]{
			collection: persistence.Partners,
			op:         "update_partner_profile",
			get:        (*domain.Snapshot).Partner,
			put:        f.store.PatchPartner,
		}, p, patch)
		return err
	}, attribute.String("partner.id", partnerID))
	return out, err
}

// ToggleCompanyUpvote adds or removes userID from the company's upvotes.
// Upvotes are not notified.
func (f *Facade) ToggleCompanyUpvote(ctx context.Context, companyID, userID string) (models.CompanyProfile, error) {
	var out models.CompanyProfile
	err := f.run(ctx, "toggle_company_upvote", func(ctx context.Context) error {
		if err := f.requireUser(userID); err != nil {
			return err
		}
		if _, ok := f.snapshot().Company(companyID); !ok {
			return errors.NewEntityNotFoundError("company", companyID)
		}
		rec, err := f.toggle(ctx, "toggle_company_upvote", persistence.Companies, companyID, "upvotes", userID)
		if err != nil {
			return err
		}
		out, err = decode[models.CompanyProfile](rec)
		return err
	})
	return out, err
}

func (f *Facade) TogglePartnerUpvote(ctx context.Context, partnerID, userID string) (models.PartnerProfile, error) {
	var out models.PartnerProfile
	err := f.run(ctx, "toggle_partner_upvote", func(ctx context.Context) error {
		if err := f.requireUser(userID); err != nil {
			return err
		}
		if _, ok := f.snapshot().Partner(partnerID); !ok {
			return errors.NewEntityNotFoundError("partner", partnerID)
		}
		rec, err := f.toggle(ctx, "toggle_partner_upvote", persistence.Partners, partnerID, "upvotes", userID)
		if err != nil {
			return err
		}
		out, err = decode[models.PartnerProfile](rec)
		return err
	})
	return out, err
}

// AttachCompanyDocument uploads a document and appends it to the company.
func (f *Facade) AttachCompanyDocument(ctx context.Context, companyID, name string, r io.Reader) (models.CompanyProfile, error) {
	var out models.CompanyProfile
	err := f.run(ctx, "attach_company_document", func(ctx context.Context) error {
		c, ok := f.snapshot().Company(companyID)
		if !ok {
			return errors.NewEntityNotFoundError("company", companyID)
		}
		doc, err := f.uploadDocument(ctx, name, r)
		if err != nil {
			return err
		}
		docs := append(append([]models.DocumentRef(nil), c.Documents...), doc)
		rec, err := f.update(ctx, "attach_company_document", persistence.Companies, companyID, map[string]any{"documents": docs})
		if err != nil {
			return err
		}
		out, err = decode[models.CompanyProfile](rec)
		return err
	}, attribute.String("company.id", companyID))
	return out, err
}

// AttachPartnerResume uploads a resume and sets it on the partner.
func (f *Facade) AttachPartnerResume(ctx context.Context, partnerID, name string, r io.Reader) (models.PartnerProfile, error) {
	var out models.PartnerProfile
	err := f.run(ctx, "attach_partner_resume", func(ctx context.Context) error {
		if _, ok := f.snapshot().Partner(partnerID); !ok {
			return errors.NewEntityNotFoundError("partner", partnerID)
		}
		doc, err := f.uploadDocument(ctx, name, r)
		if err != nil {
			return err
		}
		rec, err := f.update(ctx, "attach_partner_resume", persistence.Partners, partnerID, map[string]any{"resumeUrl": doc.URL})
		if err != nil {
			return err
		}
		out, err = decode[models.PartnerProfile](rec)
		return err
	}, attribute.String("partner.id", partnerID))
	return out, err
}

func (f *Facade) uploadDocument(ctx context.Context, name string, r io.Reader) (models.DocumentRef, error) {
	if f.uploads == nil {
		return models.DocumentRef{}, errors.NewUploadFailedError(name, errNoUploader)
	}
	url, err := f.uploads.UploadDocument(ctx, name, r)
	if err != nil {
		return models.DocumentRef{}, err
	}
	return models.DocumentRef{
		ID:   f.newID(),
		Name: path.Base(name),
		URL:  url,
		Type: strings.TrimPrefix(path.Ext(name), "."),
	}, nil
}

func (f *Facade) requireUser(userID string) error {
	if userID == "" {
		return errors.NewValidationError("user id is required")
	}
	if _, ok := f.snapshot().User(userID); !ok {
		return errors.NewEntityNotFoundError("user", userID)
	}
	return nil
}

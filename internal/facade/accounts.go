package facade

import (
	"context"
	"io"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.opentelemetry.io/otel/attribute"
)

type NewUser struct {
	Name  string
	Email string
	Phone string
	Role  models.Role
}

func (u NewUser) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&u.Email, validation.Required, is.EmailFormat),
		validation.Field(&u.Phone, is.E164),
		validation.Field(&u.Role, validation.Required, validation.In(models.RoleSponsor, models.RolePartner, models.RoleAdmin)),
	)
}

// RegisterUser creates a user without a profile. Registering an Admin counts
// against the admin limit.
func (f *Facade) RegisterUser(ctx context.Context, in NewUser) (models.User, error) {
	var out models.User
	err := f.run(ctx, "register_user", func(ctx context.Context) error {
		if err := in.Validate(); err != nil {
			return errors.NewValidationError(err.Error())
		}
		if in.Role == models.RoleAdmin {
			f.roleMu.Lock()
			defer f.roleMu.Unlock()
			if err := f.checkAdminLimit(); err != nil {
				return err
			}
		}
		rec, err := f.create(ctx, "register_user", persistence.Users, models.User{
			Name:  in.Name,
			Email: in.Email,
			Phone: in.Phone,
			Role:  in.Role,
		})
		if err != nil {
			return err
		}
		out, err = decode[models.User](rec)
		return err
	})
	return out, err
}

// CompleteCompanyOnboarding creates the user's company profile and links it.
func (f *Facade) CompleteCompanyOnboarding(ctx context.Context, userID string, profile models.CompanyProfile) (models.CompanyProfile, error) {
	var out models.CompanyProfile
	err := f.run(ctx, "complete_company_onboarding", func(ctx context.Context) error {
		if profile.Name == "" {
			return errors.NewValidationError("company name is required")
		}
		if _, err := f.onboardingUser(userID); err != nil {
			return err
		}
		profile.Upvotes = nil
		rec, err := f.create(ctx, "create_company", persistence.Companies, profile)
		if err != nil {
			return err
		}
		if out, err = decode[models.CompanyProfile](rec); err != nil {
			return err
		}
		return f.linkProfile(ctx, userID, out.ID, models.ProfileCompany)
	}, attribute.String("user.id", userID))
	return out, err
}

// CompletePartnerOnboarding creates the user's partner profile and links it.
func (f *Facade) CompletePartnerOnboarding(ctx context.Context, userID string, profile models.PartnerProfile) (models.PartnerProfile, error) {
	var out models.PartnerProfile
	err := f.run(ctx, "complete_partner_onboarding", func(ctx context.Context) error {
		if profile.Name == "" {
			return errors.NewValidationError("partner name is required")
		}
		if _, err := f.onboardingUser(userID); err != nil {
			return err
		}
		profile.Upvotes = nil
		rec, err := f.create(ctx, "create_partner", persistence.Partners, profile)
		if err != nil {
			return err
		}
		if out, err = decode[models.PartnerProfile](rec); err != nil {
			return err
		}
		return f.linkProfile(ctx, userID, out.ID, models.ProfilePartner)
	}, attribute.String("user.id", userID))
	return out, err
}

func (f *Facade) onboardingUser(userID string) (models.User, error) {
	u, ok := f.snapshot().User(userID)
	if !ok {
		return u, errors.NewEntityNotFoundError("user", userID)
	}
	if u.OnboardingComplete || u.ProfileID != "" {
		return u, errors.NewValidationError("user has already completed onboarding")
	}
	return u, nil
}

func (f *Facade) linkProfile(ctx context.Context, userID, profileID string, kind models.ProfileKind) error {
	_, err := f.update(ctx, "link_profile", persistence.Users, userID, map[string]any{
		"profileId":          profileID,
		"profileKind":        kind,
		"onboardingComplete": true,
	})
	return err
}

// UpdateUserRole changes a user's role. At most MaxAdmins users may hold the
// Admin role; the check and the write are serialized within this process.
// Callers wanting a {success, message} value use errors.AsResult.
func (f *Facade) UpdateUserRole(ctx context.Context, userID string, role models.Role) error {
	return f.run(ctx, "update_user_role", func(ctx context.Context) error {
		if !role.Valid() {
			return errors.NewValidationError("unknown role " + string(role))
		}

		f.roleMu.Lock()
		defer f.roleMu.Unlock()

		u, ok := f.snapshot().User(userID)
		if !ok {
			return errors.NewEntityNotFoundError("user", userID)
		}
		if u.Role == role {
			return nil
		}
		if role == models.RoleAdmin {
			if err := f.checkAdminLimit(); err != nil {
				return err
			}
		}
		_, err := f.update(ctx, "update_user_role", persistence.Users, userID, map[string]any{"role": role})
		return err
	}, attribute.String("user.id", userID), attribute.String("role", string(role)))
}

func (f *Facade) checkAdminLimit() error {
	if f.snapshot().CountByRole(models.RoleAdmin) >= f.cfg.MaxAdmins {
		return errors.NewRoleLimitExceededError(string(models.RoleAdmin), f.cfg.MaxAdmins)
	}
	return nil
}

// UpdateAvatar sets the user's avatar optimistically.
func (f *Facade) UpdateAvatar(ctx context.Context, userID, url string) (models.User, error) {
	var out models.User
	err := f.run(ctx, "update_avatar", func(ctx context.Context) error {
		u, ok := f.snapshot().User(userID)
		if !ok {
			return errors.NewEntityNotFoundError("user", userID)
		}
		var err error
		out, err = patchOptimistically(ctx, f, optimistic[models.User]{
			collection: persistence.Users,
			op:         "update_avatar",
			get:        (*domain.Snapshot).User,
			put:        f.store.PatchUser,
		}, u, map[string]any{"avatarUrl": url})
		return err
	}, attribute.String("user.id", userID))
	return out, err
}

// UploadAvatar stores an image in the configured image bucket and sets it as
// the user's avatar.
func (f *Facade) UploadAvatar(ctx context.Context, userID, name string, r io.Reader) (models.User, error) {
	var out models.User
	err := f.run(ctx, "upload_avatar", func(ctx context.Context) error {
		if f.uploads == nil {
			return errors.NewUploadFailedError(name, errNoUploader)
		}
		if _, ok := f.snapshot().User(userID); !ok {
			return errors.NewEntityNotFoundError("user", userID)
		}
		url, err := f.uploads.UploadImage(ctx, name, r, f.cfg.ImageBucket)
		if err != nil {
			return err
		}
		out, err = f.UpdateAvatar(ctx, userID, url)
		return err
	}, attribute.String("user.id", userID))
	return out, err
}

package updateuserrole

import (
	"partner-workspace/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Input struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (i Input) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.UserID, validation.Required),
		validation.Field(&i.Role, validation.Required, validation.In(
			string(models.RoleSponsor),
			string(models.RolePartner),
			string(models.RoleAdmin),
		)),
	)
}

// Output mirrors errors.Result so the process can branch on success.
type Output struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

package createapplication

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Input struct {
	CompanyID string `json:"companyId"`
	PartnerID string `json:"partnerId"`
}

func (i Input) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.CompanyID, validation.Required),
		validation.Field(&i.PartnerID, validation.Required),
	)
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	Created           bool   `json:"created"`
	NotificationID    string `json:"notificationId,omitempty"`
	CreatedAt         string `json:"createdAt"` // ISO 8601
}

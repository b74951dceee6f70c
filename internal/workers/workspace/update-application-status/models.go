package updateapplicationstatus

import (
	"partner-workspace/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Input struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

func (i Input) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ApplicationID, validation.Required),
		validation.Field(&i.Status, validation.Required, validation.In(
			string(models.StatusPending),
			string(models.StatusAccepted),
			string(models.StatusRejected),
		)),
	)
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	CollaborationID   string `json:"collaborationId,omitempty"`
	FrameworkID       string `json:"frameworkId,omitempty"`
	Changed           bool   `json:"changed"`
	NotificationID    string `json:"notificationId,omitempty"`
}

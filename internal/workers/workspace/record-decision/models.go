package recorddecision

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Input struct {
	CollaborationID string `json:"collaborationId"`
	Decision        string `json:"decision"`
	Notes           string `json:"notes"`
	Phase           string `json:"phase"`
}

func (i Input) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.CollaborationID, validation.Required),
		validation.Field(&i.Decision, validation.Required, validation.Length(1, 2000)),
		validation.Field(&i.Notes, validation.Length(0, 10000)),
	)
}

type Output struct {
	CollaborationID string `json:"collaborationId"`
	DecisionCount   int    `json:"decisionCount"`
	Phase           string `json:"phase,omitempty"`
	RecordedAt      string `json:"recordedAt"` // ISO 8601
}

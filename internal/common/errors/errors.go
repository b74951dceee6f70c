// Package errors provides standardized error handling for the workspace state layer
// and its BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Validation errors: caught locally, no state change.
const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeEntityNotFound       ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeRoleLimitExceeded    ErrorCode = "ROLE_LIMIT_EXCEEDED"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeTransitionInProgress ErrorCode = "TRANSITION_IN_PROGRESS"
	ErrCodeFrameworkNotFound    ErrorCode = "FRAMEWORK_NOT_FOUND"
	ErrCodeWorkspaceInactive    ErrorCode = "WORKSPACE_INACTIVE"
)

// Remote errors: transport or store failures.
const (
	ErrCodeRemoteReadFailed       ErrorCode = "REMOTE_READ_FAILED"
	ErrCodeRemoteWriteFailed      ErrorCode = "REMOTE_WRITE_FAILED"
	ErrCodeMessageSendFailed      ErrorCode = "MESSAGE_SEND_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeUploadFailed           ErrorCode = "UPLOAD_FAILED"
)

// Category groups codes by how callers are expected to react.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryRemote     Category = "remote"
	CategoryInternal   Category = "internal"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.Cause }

// Is matches another StandardError by code, so sentinel values like
// &StandardError{Code: ErrCodeEntityNotFound} work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newValidation(code ErrorCode, message, details string) *StandardError {
	return &StandardError{
		Code:      code,
		Category:  CategoryValidation,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func newRemote(code ErrorCode, message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      code,
		Category:  CategoryRemote,
		Message:   message,
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewValidationError reports a malformed request.
func NewValidationError(details string) *StandardError {
	return newValidation(ErrCodeValidationFailed, "Validation failed", details)
}

// NewEntityNotFoundError reports a missing entity in the local snapshot.
func NewEntityNotFoundError(kind, id string) *StandardError {
	return newValidation(ErrCodeEntityNotFound, fmt.Sprintf("%s not found", kind), fmt.Sprintf("id: %s", id)).
		WithMetadata("kind", kind).
		WithMetadata("id", id)
}

// NewDuplicateApplicationError reports that the store already holds an
// application for the pair. cause stays reachable through errors.Is.
func NewDuplicateApplicationError(companyID, partnerID string, cause error) *StandardError {
	err := newValidation(ErrCodeDuplicateApplication, "Application already exists",
		fmt.Sprintf("companyId: %s, partnerId: %s", companyID, partnerID))
	err.Cause = cause
	return err
}

// NewRoleLimitExceededError reports that a role cap has been reached.
func NewRoleLimitExceededError(role string, limit int) *StandardError {
	return newValidation(ErrCodeRoleLimitExceeded,
		fmt.Sprintf("Maximum of %d %s users reached", limit, role),
		fmt.Sprintf("role: %s, limit: %d", role, limit)).
		WithMetadata("limit", limit)
}

// NewInvalidTransitionError reports a forbidden application status change.
func NewInvalidTransitionError(from, to string) *StandardError {
	return newValidation(ErrCodeInvalidTransition, "Invalid status transition", fmt.Sprintf("%s -> %s", from, to))
}

// NewTransitionInProgressError reports that another caller holds the transition lock.
func NewTransitionInProgressError(applicationID string) *StandardError {
	e := newValidation(ErrCodeTransitionInProgress, "Transition already in progress", fmt.Sprintf("applicationId: %s", applicationID))
	e.Retryable = true
	return e
}

// NewFrameworkNotFoundError reports an empty catalog or unknown framework id.
func NewFrameworkNotFoundError(details string) *StandardError {
	return newValidation(ErrCodeFrameworkNotFound, "Framework not found in catalog", details)
}

// NewWorkspaceInactiveError reports an operation on a deactivated workspace.
func NewWorkspaceInactiveError(collaborationID string) *StandardError {
	return newValidation(ErrCodeWorkspaceInactive, "Workspace is not active", fmt.Sprintf("collaborationId: %s", collaborationID))
}

// NewRemoteReadError wraps a failed collection fetch.
func NewRemoteReadError(collection string, err error) *StandardError {
	return newRemote(ErrCodeRemoteReadFailed, fmt.Sprintf("Failed to read collection '%s'", collection), err).
		WithMetadata("collection", collection)
}

// NewRemoteWriteError wraps a failed store write.
func NewRemoteWriteError(operation string, err error) *StandardError {
	return newRemote(ErrCodeRemoteWriteFailed, fmt.Sprintf("Store write '%s' failed", operation), err).
		WithMetadata("operation", operation)
}

// NewMessageSendFailedError wraps a failed chat message persist.
func NewMessageSendFailedError(err error) *StandardError {
	return newRemote(ErrCodeMessageSendFailed, "Message could not be sent", err)
}

// NewNotificationSendFailedError wraps a failed notification delivery.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newRemote(ErrCodeNotificationSendFailed, "Notification delivery failed", err).
		WithMetadata("channel", channel)
}

// NewUploadFailedError wraps a failed object storage upload.
func NewUploadFailedError(name string, err error) *StandardError {
	return newRemote(ErrCodeUploadFailed, "Upload failed", err).
		WithMetadata("name", name)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Category:  CategoryRemote,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Category:  CategoryRemote,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Category:  CategoryRemote,
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Inspection helpers
// ==========================

// As returns the StandardError in err's chain, if any.
func As(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := As(err)
	return ok && se.Code == code
}

// IsValidation reports whether err is a locally caught precondition failure.
func IsValidation(err error) bool {
	se, ok := As(err)
	return ok && se.Category == CategoryValidation
}

// IsRemote reports whether err came from the store or another collaborator.
func IsRemote(err error) bool {
	se, ok := As(err)
	return ok && se.Category == CategoryRemote
}

// Result is the caller-checkable outcome shape exposed to UI callers.
type Result struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

// AsResult folds an operation's error into a Result.
func AsResult(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	if se, ok := As(err); ok {
		return Result{Success: false, Message: se.Message, Code: se.Code}
	}
	return Result{Success: false, Message: err.Error(), Code: "INTERNAL_ERROR"}
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:       "VALIDATION_FAILED",
	ErrCodeEntityNotFound:         "ENTITY_NOT_FOUND",
	ErrCodeDuplicateApplication:   "DUPLICATE_APPLICATION",
	ErrCodeRoleLimitExceeded:      "ROLE_LIMIT_EXCEEDED",
	ErrCodeInvalidTransition:      "INVALID_TRANSITION",
	ErrCodeTransitionInProgress:   "TRANSITION_IN_PROGRESS",
	ErrCodeFrameworkNotFound:      "FRAMEWORK_NOT_FOUND",
	ErrCodeWorkspaceInactive:      "WORKSPACE_INACTIVE",
	ErrCodeRemoteReadFailed:       "REMOTE_READ_FAILED",
	ErrCodeRemoteWriteFailed:      "REMOTE_WRITE_FAILED",
	ErrCodeMessageSendFailed:      "MESSAGE_SEND_FAILED",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodeUploadFailed:           "UPLOAD_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRemoteReadFailed,
		ErrCodeRemoteWriteFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeUploadFailed:
		return 3
	case ErrCodeTransitionInProgress, ErrCodeMessageSendFailed:
		return 2
	default:
		return 0
	}
}

// GetErrorCategory returns the category for a code.
func GetErrorCategory(code ErrorCode) Category {
	switch code {
	case ErrCodeRemoteReadFailed,
		ErrCodeRemoteWriteFailed,
		ErrCodeMessageSendFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeUploadFailed:
		return CategoryRemote
	case "INTERNAL_ERROR":
		return CategoryInternal
	default:
		return CategoryValidation
	}
}

// ConvertToBPMNError converts a StandardError to the workflow engine's error shape.
func ConvertToBPMNError(err *StandardError) *BPMNError {
	code, ok := BPMNErrorMapping[err.Code]
	if !ok {
		code = string(err.Code)
	}
	vars := map[string]interface{}{}
	for k, v := range err.Metadata {
		vars[k] = v
	}
	return &BPMNError{
		Code:           code,
		Message:        err.Message,
		Details:        err.Details,
		Retryable:      err.Retryable,
		Retries:        GetRetryCount(err.Code),
		ErrorVariables: vars,
	}
}

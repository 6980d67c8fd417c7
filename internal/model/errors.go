package model

import (
	"fmt"
	"net/http"
)

// Error codes exposed on the HTTP surface. Every failure a caller can
// observe carries exactly one of these.
const (
	CodeModelNotFound    = "MODEL_NOT_FOUND"
	CodeProfileNotFound  = "PROFILE_NOT_FOUND"
	CodeSliceJobNotFound = "SLICE_JOB_NOT_FOUND"
	CodeUnsupportedFmt   = "UNSUPPORTED_FORMAT"
	CodeSlicingFailed    = "SLICING_FAILED"
	CodeOrcaCLINotFound  = "ORCA_CLI_NOT_FOUND"
	CodeJobNotCompleted  = "JOB_NOT_COMPLETED"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// APIError is the uniform error shape of the service: a stable machine
// readable code, a human readable message, the HTTP status it maps to
// and a free-form details mapping.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"http_status"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func ErrModelNotFound(modelID string) *APIError {
	return &APIError{
		Code:       CodeModelNotFound,
		Message:    fmt.Sprintf("Model %q does not exist.", modelID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"model_id": modelID},
	}
}

func ErrProfileNotFound(profileID string) *APIError {
	return &APIError{
		Code:       CodeProfileNotFound,
		Message:    fmt.Sprintf("Profile %q does not exist or is not accessible.", profileID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"profile_id": profileID},
	}
}

func ErrSliceJobNotFound(jobID string) *APIError {
	return &APIError{
		Code:       CodeSliceJobNotFound,
		Message:    fmt.Sprintf("Slice job %q does not exist.", jobID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"job_id": jobID},
	}
}

func ErrUnsupportedFormat(filename, format string) *APIError {
	return &APIError{
		Code:       CodeUnsupportedFmt,
		Message:    fmt.Sprintf("File format %q is not supported. Allowed: .stl, .step, .3mf.", format),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"filename": filename, "format": format},
	}
}

func ErrSlicingFailed(message string, details map[string]any) *APIError {
	if details == nil {
		details = map[string]any{}
	}
	return &APIError{
		Code:       CodeSlicingFailed,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
	}
}

func ErrOrcaCLINotFound(path string) *APIError {
	return &APIError{
		Code:       CodeOrcaCLINotFound,
		Message:    fmt.Sprintf("OrcaSlicer CLI not found at %q.", path),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"path": path},
	}
}

func ErrJobNotCompleted(jobID string, status JobStatus) *APIError {
	return &APIError{
		Code:       CodeJobNotCompleted,
		Message:    "Job is not completed yet.",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"job_id": jobID, "status": string(status)},
	}
}

func ErrFileNotFound(jobID, filename string) *APIError {
	return &APIError{
		Code:       CodeFileNotFound,
		Message:    fmt.Sprintf("Output file %q not found.", filename),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"job_id": jobID},
	}
}

func ErrValidation(details map[string]any) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    "Request validation failed.",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func ErrInternal(err error) *APIError {
	return &APIError{
		Code:       CodeInternal,
		Message:    "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"error": err.Error()},
	}
}

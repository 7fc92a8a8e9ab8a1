package response

import (
	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the JSON envelope every API endpoint renders.
type Response struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Details     []any    `json:"details,omitempty"`
	Data        any      `json:"data,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	ResetAt     int64    `json:"reset_at,omitempty"`
}

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Message: "Invalid request body.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Message: "The requested resource was not found.",
}

var ForbiddenResponse = Response{
	Status:  StatusError,
	Message: "You don't have permission to perform this action.",
}

var UnauthorizedResponse = Response{
	Status:  StatusError,
	Message: "Authentication is required to perform this action.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Message: "An internal server error occurred. Please try again later.",
}

// SuccessResponse builds a success envelope. At most one data payload is
// used; extra values are ignored.
func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 && data[0] != nil {
		resp.Data = data[0]
	}

	return resp
}

// ErrorResponse builds a bare error envelope with the given message.
func ErrorResponse(msg string) Response {
	return Response{
		Status:  StatusError,
		Message: msg,
	}
}

// ConflictResponse reports a taken slug together with verified-free
// alternatives the client may offer the user.
func ConflictResponse(msg string, suggestions []string) Response {
	return Response{
		Status:      StatusError,
		Message:     msg,
		Suggestions: suggestions,
	}
}

// RateLimitedResponse reports a rejected attempt and the epoch-milliseconds
// instant the window resets, so clients can back off precisely.
func RateLimitedResponse(resetAt int64) Response {
	return Response{
		Status:  StatusError,
		Message: "Too many requests. Please try again later.",
		ResetAt: resetAt,
	}
}

// ValidationErrorResponse converts validator errors into a response with
// per-field details.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Message: "The request contains invalid data.",
	}

	for _, ve := range getValidationErrors(err) {
		resp.Details = append(resp.Details, ve)
	}

	return resp
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	var result []validationError
	for _, fe := range errs {
		result = append(result, validationError{
			Field: fe.Field(),
			Value: fe.Value(),
			Issue: issueForTag(fe),
		})
	}

	return result
}

func issueForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "url":
		return "Invalid url."
	case "email":
		return "Invalid email."
	case "min":
		return "Value is too small."
	case "max":
		return "Value is too large."
	default:
		return "Invalid value."
	}
}

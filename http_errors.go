package ethauth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	goerrors "github.com/goliatone/go-errors"
)

const genericErrorMessage = "An internal server error occurred"

// ErrorMessage is one entry of the error payload
type ErrorMessage struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorData groups the messages of an error payload
type ErrorData struct {
	Messages []ErrorMessage `json:"messages"`
}

// ErrorResponse is the JSON body written for every failed request
type ErrorResponse struct {
	StatusCode int         `json:"statusCode"`
	Error      string      `json:"error"`
	Message    string      `json:"message"`
	ErrorID    string      `json:"errorId"`
	Field      string      `json:"field,omitempty"`
	Data       []ErrorData `json:"data"`
}

// StatusFor maps an error kind to its HTTP status. Only downstream
// failures are reported as server errors.
func StatusFor(kind Kind) int {
	if kind == KindDownstreamFailure {
		return fiber.StatusInternalServerError
	}
	return fiber.StatusBadRequest
}

// NewErrorResponse translates err into the client payload. Downstream
// failures never expose their cause.
func NewErrorResponse(err error) ErrorResponse {
	kind := KindOf(err)
	status := StatusFor(kind)

	id := ErrorID(err)
	field := ErrorField(err)

	message := genericErrorMessage
	if kind != KindDownstreamFailure {
		message = errorMessage(err)
	} else {
		id = IDInternal
		field = ""
	}

	return ErrorResponse{
		StatusCode: status,
		Error:      utils.StatusMessage(status),
		Message:    message,
		ErrorID:    id,
		Field:      field,
		Data: []ErrorData{{
			Messages: []ErrorMessage{{ID: id, Message: message, Field: field}},
		}},
	}
}

// WriteError sends err as an ErrorResponse
func WriteError(c *fiber.Ctx, err error) error {
	resp := NewErrorResponse(err)
	return c.Status(resp.StatusCode).JSON(resp)
}

// writeUnauthorized is used by the protected routes, outside the taxonomy
func writeUnauthorized(c *fiber.Ctx, err error) error {
	message := "Invalid token."
	if IsTokenExpiredError(err) {
		message = "Token is expired."
	}
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		StatusCode: fiber.StatusUnauthorized,
		Error:      utils.StatusMessage(fiber.StatusUnauthorized),
		Message:    message,
		ErrorID:    IDTokenInvalid,
		Data: []ErrorData{{
			Messages: []ErrorMessage{{ID: IDTokenInvalid, Message: message}},
		}},
	})
}

func errorMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}

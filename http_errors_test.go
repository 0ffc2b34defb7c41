package ethauth_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-ethauth"
)

func TestStatusFor(t *testing.T) {
	for _, kind := range []ethauth.Kind{
		ethauth.KindProviderDisabled,
		ethauth.KindMissingField,
		ethauth.KindNotFound,
		ethauth.KindAccountNotConfirmed,
		ethauth.KindAccountBlocked,
		ethauth.KindInvalidSignature,
		ethauth.KindConflict,
		ethauth.KindPolicyMisconfigured,
	} {
		assert.Equal(t, fiber.StatusBadRequest, ethauth.StatusFor(kind), kind)
	}
	assert.Equal(t, fiber.StatusInternalServerError, ethauth.StatusFor(ethauth.KindDownstreamFailure))
}

func TestNewErrorResponse(t *testing.T) {
	resp := ethauth.NewErrorResponse(ethauth.NewFieldError(ethauth.KindConflict, ethauth.IDEmailTaken, "Email is already taken.", "email"))

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Bad Request", resp.Error)
	assert.Equal(t, "Email is already taken.", resp.Message)
	assert.Equal(t, ethauth.IDEmailTaken, resp.ErrorID)
	assert.Equal(t, "email", resp.Field)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, []ethauth.ErrorMessage{{ID: ethauth.IDEmailTaken, Message: "Email is already taken.", Field: "email"}}, resp.Data[0].Messages)
}

func TestNewErrorResponse_HidesDownstreamCause(t *testing.T) {
	err := ethauth.WrapDownstream(errors.New("pq: password authentication failed for user admin"), ethauth.IDEmailDeliveryFailed, "failed to send email")
	resp := ethauth.NewErrorResponse(err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", resp.Error)
	assert.Equal(t, ethauth.IDInternal, resp.ErrorID)
	assert.NotContains(t, resp.Message, "password")
	assert.Empty(t, resp.Field)

	plain := ethauth.NewErrorResponse(errors.New("boom"))
	assert.Equal(t, fiber.StatusInternalServerError, plain.StatusCode)
	assert.NotEqual(t, "boom", plain.Message)
}

func TestWriteError(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return ethauth.WriteError(c, ethauth.NewError(ethauth.KindInvalidSignature, ethauth.IDSignatureMismatch, "Signature verification failed."))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.EqualValues(t, 400, body["statusCode"])
	assert.Equal(t, ethauth.IDSignatureMismatch, body["errorId"])
	assert.Equal(t, "Signature verification failed.", body["message"])
	assert.NotContains(t, body, "field")
}

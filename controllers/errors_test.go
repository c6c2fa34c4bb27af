package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"mailconnect/services"
	"mailconnect/utils"
)

func acquireCtx(t *testing.T, body string) (*fiber.App, *fiber.Ctx) {
	t.Helper()
	app := fiber.New()
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(fiber.MethodPost)
	rc.Request.SetRequestURI("/email-accounts/")
	rc.Request.Header.SetContentType(fiber.MIMEApplicationJSON)
	rc.Request.SetBodyString(body)
	c := app.AcquireCtx(rc)
	t.Cleanup(func() { app.ReleaseCtx(c) })
	return app, c
}

func responseBody(t *testing.T, c *fiber.Ctx) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(c.Response().Body(), &decoded))
	return decoded
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid credentials", services.ErrInvalidCredentials, fiber.StatusUnauthorized, "No active account found with the given credentials"},
		{"inactive", services.ErrInactiveAccount, fiber.StatusForbidden, "Account is not active"},
		{"bad token", fmt.Errorf("parse: %w", utils.ErrInvalidToken), fiber.StatusUnauthorized, "Token is invalid or expired"},
		{"not found", services.ErrNotFound, fiber.StatusNotFound, "Email account not found"},
		{"unexpected", errors.New("database is down"), fiber.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := acquireCtx(t, "")
			require.NoError(t, handleServiceError(c, tt.err, "test_operation", emailAccountNotFound))

			assert.Equal(t, tt.status, c.Response().StatusCode())
			assert.Equal(t, tt.message, responseBody(t, c)["error"])
		})
	}
}

func TestHandleServiceErrorValidation(t *testing.T) {
	_, c := acquireCtx(t, "")
	fields := utils.FieldErrors{}
	fields.Add("email", "user with this email already exists.")

	require.NoError(t, handleServiceError(c, &services.ValidationError{Fields: fields}, "register_failed", ""))

	assert.Equal(t, fiber.StatusBadRequest, c.Response().StatusCode())
	assert.Equal(t, []interface{}{"user with this email already exists."}, responseBody(t, c)["email"])
}

func TestParseBody(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, c := acquireCtx(t, `{"email":"a@x.com","smtp_port":587}`)
		var req AddEmailAccountRequest
		assert.Nil(t, parseBody(c, &req))
		assert.Equal(t, "a@x.com", req.Email)
		assert.Equal(t, 587, req.SMTPPort)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, c := acquireCtx(t, `{"smtp_port":"x"}`)
		var req AddEmailAccountRequest
		errs := parseBody(c, &req)
		assert.Equal(t, []string{"A valid integer is required."}, errs["smtp_port"])
	})

	t.Run("malformed", func(t *testing.T) {
		_, c := acquireCtx(t, `{"email":`)
		var req AddEmailAccountRequest
		errs := parseBody(c, &req)
		assert.Equal(t, []string{"Invalid request body"}, errs["non_field_errors"])
	})
}

func TestDecodeEmailAccounts(t *testing.T) {
	errs := utils.FieldErrors{}
	out := decodeEmailAccounts(json.RawMessage(`{
		"ok@x.com": {"provider":"gmail","smtp_server":"smtp.gmail.com","smtp_port":587,"imap_server":"imap.gmail.com","imap_port":993},
		"broken@x.com": {"provider":"gmail","smtp_port":70000},
		"not-an-email": {}
	}`), errs)

	require.Contains(t, out, "ok@x.com")
	assert.Nil(t, out["ok@x.com"].UseTLS)
	assert.NotContains(t, out, "broken@x.com")
	assert.Contains(t, errs["email_accounts"], "broken@x.com: smtp_port: Ensure this value is less than or equal to 65535.")
	assert.Contains(t, errs["email_accounts"], "broken@x.com: smtp_server: This field is required.")
	assert.Contains(t, errs["email_accounts"], "not-an-email: Enter a valid email address.")

	errs = utils.FieldErrors{}
	out = decodeEmailAccounts(json.RawMessage(`null`), errs)
	assert.Empty(t, out)
	assert.Empty(t, errs)

	errs = utils.FieldErrors{}
	decodeEmailAccounts(json.RawMessage(`["a@x.com"]`), errs)
	assert.Contains(t, errs, "email_accounts")
}

func TestNullableProfileFields(t *testing.T) {
	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"company_name": null, "phone_number": "+1 555"}`), &sent))

	cleared := nullable(sent, "company_name", nil)
	assert.True(t, cleared.Set)
	assert.Nil(t, cleared.Value)

	phone := "+1 555"
	set := nullable(sent, "phone_number", &phone)
	assert.True(t, set.Set)
	assert.Equal(t, &phone, set.Value)

	assert.False(t, nullable(sent, "email_signature", nil).Set)

	assert.True(t, isNull(sent, "company_name"))
	assert.False(t, isNull(sent, "phone_number"))
	assert.False(t, isNull(sent, "first_name"))
}

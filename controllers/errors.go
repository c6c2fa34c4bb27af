package controller

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/gofiber/fiber/v2"

	"mailconnect/services"
	"mailconnect/utils"
)

// parseBody decodes the JSON body into out. Type mismatches are reported
// against the offending field.
func parseBody(c *fiber.Ctx, out interface{}) utils.FieldErrors {
	err := c.BodyParser(out)
	if err == nil {
		return nil
	}

	errs := utils.FieldErrors{}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		switch typeErr.Type.Kind() {
		case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
			errs.Add(typeErr.Field, "A valid integer is required.")
		case reflect.Bool:
			errs.Add(typeErr.Field, "Must be a valid boolean.")
		default:
			errs.Add(typeErr.Field, "Incorrect type.")
		}
		return errs
	}

	errs.Add("non_field_errors", "Invalid request body")
	return errs
}

// handleServiceError maps service errors onto HTTP responses. notFound is
// the message used for services.ErrNotFound.
func handleServiceError(c *fiber.Ctx, err error, operation, notFound string) error {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return utils.ValidationErrorResponse(c, validationErr.Fields)
	case errors.Is(err, services.ErrInvalidCredentials):
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "No active account found with the given credentials")
	case errors.Is(err, services.ErrInactiveAccount):
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active")
	case errors.Is(err, utils.ErrInvalidToken):
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Token is invalid or expired")
	case errors.Is(err, services.ErrNotFound):
		return utils.ErrorResponse(c, fiber.StatusNotFound, notFound)
	}

	utils.LogError(operation, err, map[string]interface{}{
		"path":    c.Path(),
		"user_id": c.Locals("userID"),
	})
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
}

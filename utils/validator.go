package utils

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// FieldErrors maps a request field (its json name) to its messages.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(fe[field], " "))
	}
	return strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// mailbox checks address syntax the same way the account tester expects it
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return checkmail.ValidateFormat(fl.Field().String()) == nil
	})
	return v
}

// ValidateStruct returns nil when s is valid, otherwise the messages per field.
func ValidateStruct(s interface{}) FieldErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs := FieldErrors{}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.Add("non_field_errors", err.Error())
		return errs
	}

	for _, fieldErr := range validationErrors {
		errs.Add(fieldErr.Field(), messageFor(fieldErr))
	}
	return errs
}

func messageFor(err validator.FieldError) string {
	param := err.Param()
	numeric := err.Kind() >= reflect.Int && err.Kind() <= reflect.Float64

	switch err.Tag() {
	case "required":
		return "This field is required."
	case "email", "mailbox":
		return "Enter a valid email address."
	case "min":
		if numeric {
			return fmt.Sprintf("Ensure this value is greater than or equal to %s.", param)
		}
		return fmt.Sprintf("Ensure this field has at least %s characters.", param)
	case "max":
		if numeric {
			return fmt.Sprintf("Ensure this value is less than or equal to %s.", param)
		}
		return fmt.Sprintf("Ensure this field has no more than %s characters.", param)
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", param)
	default:
		return "This value is invalid."
	}
}

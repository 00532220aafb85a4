package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okian/boostcalc/internal/domain/identity"
)

// Validator wraps the validator instance with the registry tags registered.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the profileurl and cohortemail tags and reports
// fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("profileurl", validateProfileURL)
	_ = v.RegisterValidation("cohortemail", validateCohortEmail)
	return &Validator{validate: v}
}

// ValidateStruct validates a struct using tags.
func (v *Validator) ValidateStruct(s any) error {
	return v.validate.Struct(s)
}

// FormatValidationError turns validation errors into a field to message map.
func FormatValidationError(err error) map[string]string {
	if err == nil {
		return nil
	}

	out := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		out["error"] = "Invalid request format"
		return out
	}

	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out[field] = "This field is required"
		case "cohortemail":
			out[field] = "Invalid email format"
		case "profileurl":
			out[field] = "Invalid profile URL format"
		case "max":
			out[field] = fmt.Sprintf("Must be at most %s characters", e.Param())
		default:
			out[field] = "Invalid value"
		}
	}
	return out
}

func validateProfileURL(fl validator.FieldLevel) bool {
	return identity.IsProfileURL(fl.Field().String())
}

func validateCohortEmail(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	if email == "" {
		return true
	}
	return identity.IsValidEmail(email)
}

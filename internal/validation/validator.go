// Package validation checks request structs against their `validate` tags
// using go-playground/validator and reports failures as apperror values.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/bookshelf/internal/apperror"
)

// Validator wraps go-playground/validator with apperror conversion.
// It is safe for concurrent use; build one at startup and share it.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that names fields by their JSON tag and knows the
// extra "notblank" rule (rejects strings that are empty after trimming).
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "":
			return fld.Name
		case "-":
			return ""
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.String {
			return true
		}
		return strings.TrimSpace(f.String()) != ""
	})

	return &Validator{v: v}
}

// Validate checks s and returns nil or an *apperror.AppError wrapping
// apperror.ErrValidation, with one Details entry per invalid field.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	details := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		// first failure per field wins
		if _, seen := details[e.Field()]; !seen {
			details[e.Field()] = friendlyMessage(e)
		}
	}

	msg := "validation failed"
	if len(validationErrs) == 1 {
		e := validationErrs[0]
		msg = e.Field() + " " + friendlyMessage(e)
	}
	return apperror.ValidationWithDetails(msg, details)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "email":
		return "must be a valid email address"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", e.Param())
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must be at most " + e.Param()
	case "url", "http_url":
		return "must be a valid http(s) URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}

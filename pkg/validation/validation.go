package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	s "cidledger/pkg/platform/strings"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("cid", func(fl validator.FieldLevel) bool {
		return domain.ValidCID(fl.Field().String())
	})
	return v
}

// jsonFieldName reports validation failures under the wire name of the field.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// Validate validates a struct using the default validator and returns a domain
// error naming the first failing field.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		field, msg := describe(err)
		if field == "" {
			return dErrors.New(dErrors.CodeValidation, msg)
		}
		return &dErrors.Error{Code: dErrors.CodeValidation, Message: msg, Field: field}
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message.
func ErrorMessage(err error) string {
	_, msg := describe(err)
	return msg
}

func describe(err error) (string, string) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "", "invalid request body"
	}

	fe := validationErrs[0]
	field := fieldPath(fe)

	switch fe.ActualTag() {
	case "required":
		return field, fmt.Sprintf("%s is required", field)
	case "email":
		return field, fmt.Sprintf("%s must be a valid email", field)
	case "uuid":
		return field, fmt.Sprintf("%s must be a valid uuid", field)
	case "min":
		return field, fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return field, fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return field, fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return field, fmt.Sprintf("%s must not be blank", field)
	case "cid":
		return field, fmt.Sprintf("%s must match CID-<16 lowercase hex>", field)
	default:
		if field == "" {
			return "", "invalid request body"
		}
		return field, fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath renders the namespace without the root struct name,
// e.g. "BulkRequest.cids[3]" becomes "cids[3]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok && rest != "" {
		return rest
	}
	name := fe.Field()
	if name == "" {
		name = s.ToSnakeCase(fe.StructField())
	}
	return name
}

// Var validates a single value against tag and names field in the error.
func Var(field string, value any, tag string) error {
	if err := defaultValidator.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			return dErrors.Invalid(field, fmt.Sprintf("failed %q check", validationErrs[0].ActualTag()))
		}
		return dErrors.Invalid(field, "is invalid")
	}
	return nil
}

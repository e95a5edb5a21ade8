package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/0x00K1/arcp/internal/arcperr"
)

// validate is a package-level, concurrency-safe validator instance,
// adapted from the teacher's httpserver.validate.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation on v, returning a single
// ValidationError-kind *arcperr.Error describing every failing field, or
// nil when v satisfies its tags.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return arcperr.New(arcperr.KindValidationError, err.Error())
	}

	var b strings.Builder
	for i, fe := range ve {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(jsonFieldName(fe))
		b.WriteString(": ")
		b.WriteString(fieldErrorMessage(fe))
	}
	return arcperr.New(arcperr.KindValidationError, b.String())
}

// DecodeAndValidate decodes a JSON body into dst and runs struct-tag
// validation, writing the appropriate Problem Details response and
// returning false on any failure.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := DecodeJSON(w, r, dst); err != nil {
		RespondError(w, arcperr.New(arcperr.KindValidationError, "malformed request body"))
		return false
	}
	if err := Validate(dst); err != nil {
		RespondError(w, err)
		return false
	}
	return true
}

func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return toSnakeCase(ns)
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + 32)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

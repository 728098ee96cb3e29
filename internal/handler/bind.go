package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/clustify-agent/internal/apperror"
)

// maxJSONBody caps JSON request bodies. Auth payloads are a few hundred bytes.
const maxJSONBody = 1 << 20

// bindValidator checks the `validate` tags on request structs. Field errors
// are reported under the JSON name, so clients see "email", not "Email".
var bindValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// decodeJSON reads a JSON body into dst and runs its validate tags.
//
// Only the shape of the request is checked here (fields present, body
// parseable). Business rules such as password length live in the service.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("", "Request body is required")
		}
		return apperror.ValidationFailed("", "Request body must be valid JSON")
	}

	if err := bindValidator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return apperror.ValidationFailed("", "Invalid request")
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	field := fe.Field()
	label := strings.ToUpper(field[:1]) + field[1:]

	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, label+" is required")
	case "max":
		return apperror.ValidationFailed(field, label+" is too long")
	default:
		return apperror.ValidationFailed(field, label+" is not valid")
	}
}

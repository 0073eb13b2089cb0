package httpx

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var ErrInvalidBody = errors.New("invalid body")

// DecodeAndValidate decodes a JSON body into dst and runs its `validate` tags.
// On validation failure the returned map holds one message per failing field.
func DecodeAndValidate(r *http.Request, dst any) (map[string]string, error) {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return nil, ErrInvalidBody
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, err
		}
		meta := make(map[string]string, len(ve))
		for _, fe := range ve {
			meta[fe.Field()] = fieldMessage(fe)
		}
		return meta, ErrInvalidBody
	}
	return nil, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid uuid"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

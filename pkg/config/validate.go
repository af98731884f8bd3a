package config

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Matatika/tap-shopify/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Use JSON tag names for field names in errors
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("startdate", func(fl validator.FieldLevel) bool {
			_, err := ParseStartDate(fl.Field().String())
			return err == nil
		})

		validate = v
	})
	return validate
}

// Validate checks required settings and value ranges. The returned error
// is of type config and carries a "fields" detail listing each violation.
func (c *TapConfig) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}

	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "TapConfig.")
		fields[field] = validationMessage(fe)
		msgs = append(msgs, field+": "+fields[field])
	}

	return errors.New(errors.ErrorTypeConfig, "invalid configuration: "+strings.Join(msgs, "; ")).
		WithDetail("fields", fields)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless client credentials are set"
	case "required_with":
		return "is required together with " + strings.ToLower(fe.Param())
	case "required_if":
		return "is required when " + fe.Param()
	case "url":
		return "must be a URL"
	case "startdate":
		return "must be an RFC 3339 timestamp or YYYY-MM-DD date"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

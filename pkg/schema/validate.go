package schema

import (
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/shopspring/decimal"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
)

// Validate checks record against s and reports every violation at once.
func Validate(s *Schema, record map[string]interface{}) error {
	if err := s.VisitJSON(Normalize(record), openapi3.MultiErrors()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "record does not match schema")
	}
	return nil
}

// Normalize converts decoded values into the plain JSON types the
// validator understands. The input is not modified.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case decimal.Decimal:
		return t.InexactFloat64()
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		return t.InexactFloat64()
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

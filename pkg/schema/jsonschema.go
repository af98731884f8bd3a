package schema

// ToJSONSchema renders s as a Singer JSON Schema document. Nullable types
// become ["null", <type>] unions.
func ToJSONSchema(s *Schema) map[string]interface{} {
	out := make(map[string]interface{})
	if s == nil {
		return out
	}

	var types []string
	if s.Type != nil {
		types = append(types, (*s.Type)...)
	}

	switch {
	case len(types) == 0:
		// untyped: any value
	case s.Nullable:
		out["type"] = append([]string{"null"}, types...)
	case len(types) == 1:
		out["type"] = types[0]
	default:
		out["type"] = types
	}

	if s.Format != "" {
		out["format"] = s.Format
	}
	if s.Description != "" {
		out["description"] = s.Description
	}

	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, ref := range s.Properties {
			if ref == nil {
				continue
			}
			props[name] = ToJSONSchema(ref.Value)
		}
		out["properties"] = props
	}

	if s.Items != nil && s.Items.Value != nil {
		out["items"] = ToJSONSchema(s.Items.Value)
	}

	return out
}

package config

const redacted = "***"

// Secret holds a credential. It prints and serializes as "***" so that
// config dumps and logs never leak it; use Reveal to read the value.
type Secret string

// Reveal returns the underlying value.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether no secret is set.
func (s Secret) IsZero() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from printing the value.
func (s Secret) GoString() string { return s.String() }

// MarshalJSON implements json.Marshaler
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// MarshalYAML implements yaml.Marshaler
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

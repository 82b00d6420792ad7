package config

const redacted = "[redacted]"

// Secret holds a credential. Every textual rendering of it is redacted;
// only Value exposes the content.
type Secret string

func (s Secret) Value() string { return string(s) }

func (s Secret) Empty() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s Secret) MarshalYAML() (interface{}, error) { return s.String(), nil }

package build

import "fmt"

// ActivityID identifies an activity within a build. Kind names the kind of
// work (for example "rest" or "ssh") and Name the configured instance, so
// several activities of the same kind can coexist in one build.
type ActivityID struct {
	Kind string
	Name string
}

// String returns "kind/name".
func (id ActivityID) String() string {
	return fmt.Sprintf("%s/%s", id.Kind, id.Name)
}

// ShortString returns the name alone, for status displays.
func (id ActivityID) ShortString() string {
	if id.Name == "" {
		return id.Kind
	}
	return id.Name
}

// IsValid reports whether both fields are set.
func (id ActivityID) IsValid() bool {
	return id.Kind != "" && id.Name != ""
}

// MarshalText encodes the ID as String() so it can key JSON maps.
func (id ActivityID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the String() form.
func (id *ActivityID) UnmarshalText(text []byte) error {
	s := string(text)
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			id.Kind, id.Name = s[:i], s[i+1:]
			return nil
		}
	}
	return fmt.Errorf("invalid activity id %q", s)
}

package tele

// Redacted replaces the token value in every diagnostic representation.
const Redacted = "[REDACTED]"

// Secret wraps the auth token. The value comes out only through Reveal(),
// called by the transport while building the Authorization header.
// Printing with %s/%v/%+v/%#v and JSON/YAML marshaling all yield Redacted,
// so a Secret inside a logged config or error cannot leak.
type Secret struct {
	value string
}

func NewSecret(value string) Secret { return Secret{value: value} }

func (s Secret) Reveal() string { return s.value }

func (s Secret) Empty() bool { return s.value == "" }

func (s Secret) String() string   { return Redacted }
func (s Secret) GoString() string { return "tele.Secret(" + Redacted + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + Redacted + `"`), nil }
func (s Secret) MarshalText() ([]byte, error) { return []byte(Redacted), nil }
func (s Secret) MarshalYAML() (interface{}, error) { return Redacted, nil }

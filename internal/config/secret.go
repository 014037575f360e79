package config

const redacted = "***REDACTED***"

// SecretString keeps credentials out of logs and JSON dumps. Unmask returns
// the plaintext for the few callers that need it.
type SecretString string

func (s SecretString) String() string { return redacted }

func (s SecretString) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// Unmask returns the raw value.
func (s SecretString) Unmask() string { return string(s) }

package logging

import (
	"fmt"
	"strings"
)

const redactedValue = "[REDACTED]"

// Redactor handles secret redaction in log fields.
type Redactor struct {
	sensitiveKeys map[string]bool
}

// NewRedactor creates a new Redactor with default sensitive keys.
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: map[string]bool{
			// Credentials
			"password":    true,
			"secret":      true,
			"token":       true,
			"private_key": true,
			"hmac_key":    true,
			"fake_seed":   true,

			// SRP values. Single-letter keys match case-sensitively so the
			// public A and B stay loggable.
			"x":           true, // private key
			"a":           true, // client ephemeral private
			"b":           true, // server ephemeral private
			"S":           true, // premaster secret
			"K":           true, // session key
			"key":         true,
			"session_key": true,
			"m1":          true,
			"m2":          true,
			"proof":       true,
			"verifier":    true,
			"salt":        true,
		},
	}
}

// AddSensitiveKey adds a custom key to the redaction list.
func (r *Redactor) AddSensitiveKey(key string) {
	r.sensitiveKeys[normalizeKey(key)] = true
}

// RemoveSensitiveKey removes a key from the redaction list.
func (r *Redactor) RemoveSensitiveKey(key string) {
	delete(r.sensitiveKeys, normalizeKey(key))
}

// RedactFields redacts sensitive values from a map of fields.
// Raw byte values under any key are replaced by their length.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	redacted := make(map[string]any, len(fields))

	for k, v := range fields {
		if r.isSensitiveKey(k) {
			redacted[k] = redactedValue
			continue
		}

		switch val := v.(type) {
		case map[string]any:
			redacted[k] = r.RedactFields(val)
		case []byte:
			redacted[k] = fmt.Sprintf("<%d bytes>", len(val))
		default:
			redacted[k] = v
		}
	}

	return redacted
}

// isSensitiveKey matches on the whole key, case-insensitively unless the key
// is a single letter.
func (r *Redactor) isSensitiveKey(key string) bool {
	return r.sensitiveKeys[normalizeKey(key)]
}

// normalizeKey lowercases keys longer than one character. In SRP notation the
// case of a single letter separates public from secret values (A and a).
func normalizeKey(key string) string {
	if len(key) <= 1 {
		return key
	}
	return strings.ToLower(key)
}

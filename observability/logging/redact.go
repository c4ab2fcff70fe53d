package logging

import "strings"

// RedactedValue replaces sensitive values before they reach the log stream.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"signature":     {},
	"private_key":   {},
}

// IsSensitive reports whether a log key carries material that must never be
// written out verbatim, such as bearer tokens or claim signatures.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// Redact returns the value unchanged unless the key is sensitive, in which
// case the canonical placeholder is substituted.
func Redact(key, value string) string {
	if IsSensitive(key) {
		return RedactedValue
	}
	return value
}

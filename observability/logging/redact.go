package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of sensitive attributes.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = []string{
	"authorization",
	"passphrase",
	"password",
	"token",
	"secret",
	"dsn",
	"private_key",
}

// IsSensitive reports whether values logged under key must be masked. Keys
// match exactly or by suffix, so "indexer_dsn" and "jwt_secret" are covered.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, sensitive := range sensitiveKeys {
		if normalized == sensitive || strings.HasSuffix(normalized, "_"+sensitive) {
			return true
		}
	}
	return false
}

// MaskValue returns the placeholder for non-empty values and leaves empty
// ones alone.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() == slog.KindGroup {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}

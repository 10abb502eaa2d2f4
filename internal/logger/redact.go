package logger

import "strings"

const filtered = "[FILTERED]"

// sensitiveKeys are config/payload field names whose values never reach logs.
var sensitiveKeys = map[string]struct{}{
	"authorization": {}, "cookie": {}, "token": {}, "api_token": {},
	"access_token": {}, "firefly_access_token": {}, "secret": {},
	"webhook_secret": {}, "webhook_secret_update": {}, "api_key": {},
	"password": {}, "signature": {},
}

// SensitiveKey reports whether a field or header name holds secret material.
func SensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := sensitiveKeys[key]; ok {
		return true
	}
	// Compound names like "x-auth-token" or "firefly_token".
	return strings.Contains(key, "token") || strings.Contains(key, "secret")
}

// RedactMap returns a copy of m with sensitive values replaced. Nested maps
// are redacted recursively; everything else passes through unchanged.
func RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case SensitiveKey(k):
			out[k] = filtered
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = RedactMap(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// RedactHeader returns the value to log for an HTTP header.
func RedactHeader(name, value string) string {
	if SensitiveKey(name) {
		return filtered
	}
	return value
}

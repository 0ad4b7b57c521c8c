package logger

import (
	"net/http"
	"strings"
)

// Headers that carry credentials on the webhook and API paths.
var sensitiveHeaders = []string{
	"authorization",
	"cookie",
	"stripe-signature",
	"x-api-key",
}

// MaskAuthorization masks bearer tokens, preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return "Bearer " + maskLast4(parts[1])
	}
	return maskLast4(value)
}

// MaskHeaders returns a copy of headers with credential-bearing fields masked.
func MaskHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		joined := strings.Join(values, ",")
		if isSensitiveHeader(key) {
			if strings.EqualFold(key, "Authorization") {
				masked[key] = MaskAuthorization(joined)
			} else {
				masked[key] = maskLast4(joined)
			}
			continue
		}
		masked[key] = joined
	}
	return masked
}

func isSensitiveHeader(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveHeaders {
		if key == needle {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****" + value
	}
	return "****" + value[len(value)-4:]
}

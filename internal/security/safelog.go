// Package security keeps credentials out of logs and terminal output.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

// sensitiveParams are query parameters whose values are never logged.
var sensitiveParams = []string{"apiKey", "apikey", "api_key", "token", "access_token"}

var sensitivePattern = regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|bearer)([=:\s]+)([^\s"'&]+)`)

// MaskCredential keeps only the edges of a secret.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// RedactURL masks credential query parameters in a request URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return MaskSecrets(raw)
	}
	q := u.Query()
	changed := false
	for _, p := range sensitiveParams {
		if v := q.Get(p); v != "" {
			q.Set(p, MaskCredential(v))
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// MaskSecrets masks key=value style secrets anywhere in s.
func MaskSecrets(s string) string {
	return sensitivePattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := sensitivePattern.FindStringSubmatch(match)
		return parts[1] + parts[2] + MaskCredential(parts[3])
	})
}

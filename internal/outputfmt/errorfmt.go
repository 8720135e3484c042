// Package outputfmt scrubs credentials out of error text before it reaches
// logs or chat replies.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[redacted]"

var (
	absoluteURLInTextRE = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// Bot API paths carry the token: /bot<id>:<secret>/<method>.
	botTokenPathRE = regexp.MustCompile(`/bot[0-9]+:[A-Za-z0-9_-]+`)
)

// SanitizeErrorText keeps the host and method of Bot API URLs but replaces
// the bot token in the path and sensitive query values.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = absoluteURLInTextRE.ReplaceAllStringFunc(raw, sanitizeURLInText)
	return botTokenPathRE.ReplaceAllString(raw, "/bot"+redacted)
}

// RedactSecret replaces every occurrence of secret in raw. Secrets shorter
// than 4 characters are left alone to avoid shredding ordinary text.
func RedactSecret(raw, secret string) string {
	secret = strings.TrimSpace(secret)
	if len(secret) < 4 {
		return raw
	}
	return strings.ReplaceAll(raw, secret, redacted)
}

func sanitizeURLInText(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	if len(u.Query()) > 0 {
		u.RawQuery = redactSensitiveQuery(u.Query())
	}
	u.User = nil
	return u.String()
}

func redactSensitiveQuery(q url.Values) string {
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, redacted)
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	n := strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", "")
	if n == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}

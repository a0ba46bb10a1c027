package validators

import "strings"

// BearerToken extracts the token from an Authorization header value. The
// "Bearer " prefix is optional; an empty string means no credentials.
func BearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.EqualFold(token, "bearer") {
		return ""
	}
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

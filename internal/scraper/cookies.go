package scraper

import (
	"regexp"
	"sort"
	"strings"
)

// EssentialCookies are required for an authenticated timeline session.
var EssentialCookies = map[string]string{
	"auth_token": "Authentication token",
	"ct0":        "CSRF token",
	"guest_id":   "Guest identifier",
}

var hexOnly = regexp.MustCompile(`^[a-f0-9]+$`)

// ParseCookies splits a browser "name=value; name2=value2" header string.
func ParseCookies(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}

// ValidateCookies returns the missing essential cookies (sorted) and
// format warnings for values that look wrong but may still work.
func ValidateCookies(cookies map[string]string) (missing, warnings []string) {
	for name := range EssentialCookies {
		if cookies[name] == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	if v := cookies["auth_token"]; v != "" && (len(v) < 40 || !hexOnly.MatchString(v)) {
		warnings = append(warnings, "auth_token format may be invalid")
	}
	if v := cookies["ct0"]; v != "" && (len(v) < 32 || !hexOnly.MatchString(v)) {
		warnings = append(warnings, "ct0 format may be invalid")
	}
	return missing, warnings
}

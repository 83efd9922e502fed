package generator

import (
	"regexp"
	"strconv"
	"strings"
)

var numbered = regexp.MustCompile(`^\**\s*(\d+)\s*/\s*(\d+)\s*\**\s*[:.)\-]?\s*(.*)$`)

// ParseThread extracts up to n numbered segments ("1/5 text", "2/5: text")
// from generated output. Lines without a valid index are ignored.
func ParseThread(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := numbered.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			continue
		}
		body := strings.TrimSpace(m[3])
		if body == "" {
			continue
		}
		out = append(out, Truncate(body, MaxTweetLength))
		if len(out) == n {
			break
		}
	}
	return out
}

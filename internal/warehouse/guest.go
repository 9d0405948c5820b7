package warehouse

import (
	"regexp"
	"strings"
)

// guestPattern captures up to four capitalized words following "with" in an
// episode title, e.g. "Scaling ops with Dr. Jane Doe | Ep 12".
var guestPattern = regexp.MustCompile(`\b(?i:with)\s+((?:[A-Z][A-Za-z'.-]*)(?:\s+[A-Z][A-Za-z'.-]*){0,3})`)

// ExtractGuestName pulls a guest name out of the episode title, falling back
// to the description. Returns "" when no "with <Name>" pattern is present.
func ExtractGuestName(title, description string) string {
	if name := matchGuest(title); name != "" {
		return name
	}
	return matchGuest(description)
}

func matchGuest(s string) string {
	m := guestPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(m[1]), ".,:;!?")
}

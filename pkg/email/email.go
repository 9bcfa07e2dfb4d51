package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail splits an address's local part into a plausible
// first/last name pair. Pilot participants are seeded from the submitter's
// address before anyone has typed a profile, so a readable fallback beats
// an empty one.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Participant", "Participant"
	}

	first := capitalize(parts[0])
	last := "Participant"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

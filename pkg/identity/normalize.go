package identity

import "strings"

// DefaultSignificantDigits is how many trailing digits two phone-style ids
// must share to be considered the same identity.
const DefaultSignificantDigits = 10

// maxPhoneDigits is the E.164 ceiling. Longer numeric ids (Discord
// snowflakes) are platform ids and compare in full.
const maxPhoneDigits = 15

// Normalize reduces a sender id to a comparable form. Domain suffixes
// ("@s.whatsapp.net"), device suffixes (":12") and formatting characters are
// dropped and, for phone-length ids, only the last `digits` digits are kept.
// digits <= 0 keeps every digit. Ids without any digit are lower-cased.
func Normalize(id string, digits int) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if at := strings.IndexByte(id, '@'); at > 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon > 0 {
		id = id[:colon]
	}
	if bar := strings.IndexByte(id, '|'); bar > 0 {
		id = id[:bar]
	}

	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	if num == "" {
		return strings.ToLower(strings.TrimPrefix(id, "@"))
	}
	if digits > 0 && len(num) > digits && len(num) <= maxPhoneDigits {
		num = num[len(num)-digits:]
	}
	return num
}

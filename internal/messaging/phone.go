package messaging

import "strings"

// NormalizeWhatsApp reduces a WhatsApp address such as "+55 62 9999-0000" or
// "556299990000@c.us" to its digits.
func NormalizeWhatsApp(value string) string {
	value = strings.TrimSpace(value)
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

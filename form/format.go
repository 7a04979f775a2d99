package form

import "strings"

// Formatter rewrites a raw value before it is stored.
type Formatter func(raw string) string

// PositiveNumber keeps digits and the first decimal separator. A leading
// separator gets a zero, so ".5" becomes "0.5".
func PositiveNumber(raw string) string {
	var b strings.Builder
	dot := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case (r == '.' || r == ',') && !dot:
			dot = true
			if b.Len() == 0 {
				b.WriteByte('0')
			}
			b.WriteByte('.')
		}
	}
	return b.String()
}

// Decimal truncates the fractional part to places digits.
func Decimal(places int) Formatter {
	return func(raw string) string {
		i := strings.IndexByte(raw, '.')
		if i < 0 || len(raw)-i-1 <= places {
			return raw
		}
		if places == 0 {
			return raw[:i]
		}
		return raw[:i+1+places]
	}
}

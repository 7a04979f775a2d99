package form

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Rule checks one field value. siblings holds every field's current raw
// value, so a rule may depend on other fields.
type Rule func(value string, siblings map[string]string) error

var (
	ErrRequired   = errors.New("form: value is required")
	ErrNotNumeric = errors.New("form: value is not a number")
	ErrPairEmpty  = errors.New("form: one of the paired values must be a number")
	ErrBadDate    = errors.New("form: value is not a date")
	ErrTooEarly   = errors.New("form: date is too early")
)

// IsNumeric reports whether s parses as a finite number. The empty string
// is not numeric.
func IsNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Number parses s, returning 0 for anything that is not numeric.
func Number(s string) float64 {
	if !IsNumeric(s) {
		return 0
	}
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func Required(value string, _ map[string]string) error {
	if strings.TrimSpace(value) == "" {
		return ErrRequired
	}
	return nil
}

// Numeric accepts empty values; combine with Required when needed.
func Numeric(value string, _ map[string]string) error {
	if strings.TrimSpace(value) == "" || IsNumeric(value) {
		return nil
	}
	return ErrNotNumeric
}

// NumericOrSibling is the credit pair law: the field is valid when either
// it or the named sibling parses as a number.
func NumericOrSibling(other string) Rule {
	return func(value string, siblings map[string]string) error {
		if IsNumeric(value) || IsNumeric(siblings[other]) {
			return nil
		}
		return ErrPairEmpty
	}
}

// dateLayouts are tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats a date field accepts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadDate
}

// NotBefore rejects dates earlier than floor(). The floor itself is
// accepted; an empty value is allowed.
func NotBefore(floor func() time.Time) Rule {
	return func(value string, _ map[string]string) error {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		t, err := ParseDate(value)
		if err != nil {
			return err
		}
		if t.Before(floor()) {
			return ErrTooEarly
		}
		return nil
	}
}

// Yesterday returns a floor one day before now().
func Yesterday(now func() time.Time) func() time.Time {
	return func() time.Time { return now().Add(-24 * time.Hour) }
}

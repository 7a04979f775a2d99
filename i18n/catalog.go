// Package i18n resolves translation keys to localized strings, with
// {{param}} interpolation, CLDR plural forms and locale-aware numbers.
package i18n

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"gopkg.in/yaml.v3"
)

// CountParam is the interpolation name the plural count is exposed as.
const CountParam = "count"

// Message is either a single string or a set of plural forms keyed by
// CLDR category ("zero", "one", "two", "few", "many", "other").
type Message struct {
	Text  string
	Forms map[string]string
}

func (m *Message) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Decode(&m.Text)
	case yaml.MappingNode:
		return n.Decode(&m.Forms)
	default:
		return fmt.Errorf("i18n: line %d: message must be a string or a map of plural forms", n.Line)
	}
}

type catalogFile struct {
	Locale   string             `yaml:"locale"`
	Messages map[string]Message `yaml:"messages"`
}

// Catalog holds the messages of one locale.
type Catalog struct {
	tag      language.Tag
	messages map[string]Message
	printer  *message.Printer
}

// Parse reads a YAML catalog.
func Parse(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("i18n: parse catalog: %w", err)
	}
	if f.Locale == "" {
		return nil, fmt.Errorf("i18n: catalog has no locale")
	}
	tag, err := language.Parse(f.Locale)
	if err != nil {
		return nil, fmt.Errorf("i18n: catalog locale %q: %w", f.Locale, err)
	}
	return newCatalog(tag, f.Messages), nil
}

func newCatalog(tag language.Tag, msgs map[string]Message) *Catalog {
	if msgs == nil {
		msgs = map[string]Message{}
	}
	return &Catalog{tag: tag, messages: msgs, printer: message.NewPrinter(tag)}
}

func (c *Catalog) Locale() language.Tag { return c.tag }

func (c *Catalog) Has(key string) bool {
	_, ok := c.messages[key]
	return ok
}

// Translate renders key with params. When count is given the plural form
// for it is picked and {{count}} is available. Unknown keys render as the
// key itself.
func (c *Catalog) Translate(key string, params map[string]any, count ...float64) string {
	m, ok := c.messages[key]
	if !ok {
		return key
	}
	text := m.Text
	if len(m.Forms) > 0 {
		n := 0.0
		if len(count) > 0 {
			n = count[0]
		}
		text = c.pick(m.Forms, n)
	}
	if len(count) > 0 {
		merged := make(map[string]any, len(params)+1)
		for k, v := range params {
			merged[k] = v
		}
		if _, set := merged[CountParam]; !set {
			merged[CountParam] = count[0]
		}
		params = merged
	}
	return c.interpolate(text, params)
}

func (c *Catalog) pick(forms map[string]string, n float64) string {
	if n == 0 {
		if s, ok := forms["zero"]; ok {
			return s
		}
	}
	if s, ok := forms[formName(pluralForm(c.tag, n))]; ok {
		return s
	}
	return forms["other"]
}

// pluralForm maps n onto the CLDR operands (i, v, w, f, t).
func pluralForm(tag language.Tag, n float64) plural.Form {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return plural.Other
	}
	n = math.Abs(n)
	s := strconv.FormatFloat(n, 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	trimmed := strings.TrimRight(frac, "0")
	i, ok1 := operand(intPart)
	f, ok2 := operand(frac)
	t, ok3 := operand(trimmed)
	if !ok1 || !ok2 || !ok3 {
		return plural.Other
	}
	return plural.Cardinal.MatchPlural(tag, i, len(frac), len(trimmed), f, t)
}

// operandDigits bounds an operand so it fits an int on every platform.
// Plural rules only test equality with small values and remainders up to
// 10^6, so the low digits plus a nonzero marker select the same form.
const operandDigits = 9

func operand(digits string) (int, bool) {
	if digits == "" {
		return 0, true
	}
	if len(digits) <= operandDigits {
		n, err := strconv.Atoi(digits)
		return n, err == nil
	}
	low, err := strconv.Atoi(digits[len(digits)-operandDigits:])
	if err != nil {
		return 0, false
	}
	return 1_000_000_000 + low, true
}

func formName(f plural.Form) string {
	switch f {
	case plural.Zero:
		return "zero"
	case plural.One:
		return "one"
	case plural.Two:
		return "two"
	case plural.Few:
		return "few"
	case plural.Many:
		return "many"
	default:
		return "other"
	}
}

func (c *Catalog) interpolate(text string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	var b strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			break
		}
		name := strings.TrimSpace(text[start+2 : start+end])
		b.WriteString(text[:start])
		if v, ok := params[name]; ok {
			b.WriteString(c.format(v))
		} else {
			b.WriteString(text[start : start+end+2])
		}
		text = text[start+end+2:]
	}
	b.WriteString(text)
	return b.String()
}

func (c *Catalog) format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return c.FormatNumber(t)
	case float32:
		return c.FormatNumber(float64(t))
	case int:
		return c.printer.Sprint(number.Decimal(t))
	case int64:
		return c.printer.Sprint(number.Decimal(t))
	default:
		return fmt.Sprint(t)
	}
}

// FormatNumber renders v with the locale's separators and at most two
// fraction digits.
func (c *Catalog) FormatNumber(v float64) string {
	return c.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FormatMoney renders amount as "<ISO code> <number>" with the currency's
// standard number of fraction digits.
func (c *Catalog) FormatMoney(amount float64, code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("i18n: currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	n := c.printer.Sprint(number.Decimal(amount, number.MinFractionDigits(scale), number.MaxFractionDigits(scale)))
	return unit.String() + " " + n, nil
}

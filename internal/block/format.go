package block

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Value is a placeholder value. Its unit decides how it is printed.
type Value struct {
	text string
}

func (v Value) String() string { return v.text }

// Text is printed as is.
func Text(s string) Value { return Value{text: s} }

// Number is printed with the given number of decimals.
func Number(f float64, decimals int) Value {
	return Value{text: strconv.FormatFloat(f, 'f', decimals, 64)}
}

// Percent is printed as a rounded integer with a % sign.
func Percent(f float64) Value {
	return Value{text: fmt.Sprintf("%d%%", int(math.Round(f)))}
}

// Bytes is printed with an IEC (KiB, MiB) or SI (kB, MB) prefix.
func Bytes(n uint64, iec bool) Value {
	if iec {
		return Value{text: humanize.IBytes(n)}
	}
	return Value{text: humanize.Bytes(n)}
}

// BitRate is printed with an SI prefix, for example "94.2 Mbit/s".
func BitRate(bps float64) Value {
	return Value{text: humanize.SIWithDigits(bps, 1, "bit/s")}
}

// Degrees is printed as a rounded integer with a degree sign and unit.
func Degrees(f float64, unit string) Value {
	return Value{text: fmt.Sprintf("%d°%s", int(math.Round(f)), unit)}
}

// Values maps placeholder names to values.
type Values map[string]Value

type segment struct {
	literal     string
	placeholder string
}

// Template is a parsed format string such as "{used}/{total}". A literal
// brace is written as "{{" or "}}".
type Template struct {
	raw      string
	segments []segment
}

// ParseTemplate parses a format string.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{raw: s}
	var lit strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("format %q: unclosed '{' at offset %d", s, i)
			}
			name := strings.TrimSpace(s[i+1 : i+1+end])
			if name == "" {
				return nil, fmt.Errorf("format %q: empty placeholder at offset %d", s, i)
			}
			if lit.Len() > 0 {
				t.segments = append(t.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			t.segments = append(t.segments, segment{placeholder: name})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("format %q: unmatched '}' at offset %d", s, i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.segments = append(t.segments, segment{literal: lit.String()})
	}
	return t, nil
}

// MustParseTemplate is ParseTemplate for built-in defaults.
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Placeholders returns the placeholder names in order of appearance.
func (t *Template) Placeholders() []string {
	var names []string
	for _, seg := range t.segments {
		if seg.placeholder != "" {
			names = append(names, seg.placeholder)
		}
	}
	return names
}

// Check fails if the template uses a placeholder not in known.
func (t *Template) Check(known ...string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	for _, name := range t.Placeholders() {
		if !allowed[name] {
			return fmt.Errorf("format %q: unknown placeholder {%s} (known: %s)", t.raw, name, strings.Join(known, ", "))
		}
	}
	return nil
}

// Render substitutes values into the template.
func (t *Template) Render(values Values) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.placeholder == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := values[seg.placeholder]
		if !ok {
			return "", fmt.Errorf("format %q: no value for {%s}", t.raw, seg.placeholder)
		}
		b.WriteString(v.String())
	}
	return b.String(), nil
}

func (t *Template) String() string { return t.raw }

// Format parses template and renders it in one step.
func Format(template string, values Values) (string, error) {
	t, err := ParseTemplate(template)
	if err != nil {
		return "", err
	}
	return t.Render(values)
}

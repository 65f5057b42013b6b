package chunkedgraph

import (
	"fmt"
	"strings"
)

type segment struct {
	text  string
	field bool
}

// Template is a parsed URL template with "{name}" placeholders. Literal
// braces are written "{{" and "}}".
type Template struct {
	segs []segment
}

// ParseTemplate parses raw into a Template.
func ParseTemplate(raw string) (Template, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch ch {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return Template{}, &TemplateError{Template: raw, Reason: "unclosed placeholder"}
			}
			name := raw[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{ ") {
				return Template{}, &TemplateError{Template: raw, Reason: fmt.Sprintf("invalid placeholder %q", name)}
			}
			flush()
			segs = append(segs, segment{text: name, field: true})
			i += end + 1
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return Template{}, &TemplateError{Template: raw, Reason: "unmatched '}'"}
		default:
			lit.WriteByte(ch)
		}
	}
	flush()
	return Template{segs: segs}, nil
}

// MustParseTemplate is ParseTemplate that panics on error.
func MustParseTemplate(raw string) Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Placeholders lists the unbound placeholder names in order of appearance.
func (t Template) Placeholders() []string {
	var names []string
	for _, s := range t.segs {
		if s.field {
			names = append(names, s.text)
		}
	}
	return names
}

// Partial substitutes the fields present in f and keeps the rest as
// placeholders.
func (t Template) Partial(f Fields) Template {
	out := make([]segment, 0, len(t.segs))
	for _, s := range t.segs {
		if s.field {
			if v, ok := f.Lookup(s.text); ok {
				s = segment{text: v}
			}
		}
		if !s.field && len(out) > 0 && !out[len(out)-1].field {
			out[len(out)-1].text += s.text
			continue
		}
		out = append(out, s)
	}
	return Template{segs: out}
}

// Expand substitutes every placeholder from f. A placeholder without a value
// yields a *TemplateError.
func (t Template) Expand(f Fields) (string, error) {
	var sb strings.Builder
	for _, s := range t.segs {
		if !s.field {
			sb.WriteString(s.text)
			continue
		}
		v, ok := f.Lookup(s.text)
		if !ok {
			return "", &TemplateError{Template: t.String(), Field: s.text, Err: ErrMissingField}
		}
		sb.WriteString(v)
	}
	return sb.String(), nil
}

// String renders t back to template syntax.
func (t Template) String() string {
	var sb strings.Builder
	for _, s := range t.segs {
		if s.field {
			sb.WriteByte('{')
			sb.WriteString(s.text)
			sb.WriteByte('}')
			continue
		}
		sb.WriteString(strings.NewReplacer("{", "{{", "}", "}}").Replace(s.text))
	}
	return sb.String()
}

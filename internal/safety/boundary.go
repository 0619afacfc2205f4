package safety

import "strings"

// WrapToolOutput encloses sanitized tool output in the structural boundary
// the model is told (in the system prompt) to treat as untrusted data,
// never as instructions. Attribute values are XML-escaped so the boundary
// itself cannot be spoofed by content that contains a literal closing tag.
func WrapToolOutput(name string, content string, sanitized bool) string {
	var b strings.Builder
	b.WriteString(`<tool_output name="`)
	b.WriteString(xmlEscapeAttr(name))
	b.WriteString(`" sanitized="`)
	if sanitized {
		b.WriteString("true")
	} else {
		b.WriteString("false")
	}
	b.WriteString(`">`)
	b.WriteString(xmlEscapeText(content))
	b.WriteString(`</tool_output>`)
	return b.String()
}

func xmlEscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func xmlEscapeAttr(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

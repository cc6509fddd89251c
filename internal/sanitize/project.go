package sanitize

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const sccElementPrefix = "Scc"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// span is a half-open byte range of the input.
type span struct{ start, end int }

// Project removes every XML element whose unprefixed name starts with
// "Scc", together with its content. When an element sits on a line of
// its own the whole line goes, so no blank lines are left behind.
func Project(data []byte) ([]byte, error) {
	bom := 0
	if bytes.HasPrefix(data, utf8BOM) {
		bom = len(utf8BOM)
	}
	body := data[bom:]

	spans, err := sccSpans(body)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return data, nil
	}

	var out bytes.Buffer
	out.Grow(len(data))
	out.Write(data[:bom])

	pos := 0
	for _, s := range spans {
		s = widenToLine(body, s)
		if s.start < pos {
			s.start = pos
		}
		out.Write(body[pos:s.start])
		pos = s.end
	}
	out.Write(body[pos:])

	return out.Bytes(), nil
}

// sccSpans locates the outermost Scc elements.
func sccSpans(body []byte) ([]span, error) {
	d := xml.NewDecoder(bytes.NewReader(body))
	// Offsets are all that matter, so any declared charset is read as-is
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var spans []span
	var open []xml.Name
	skipDepth := -1
	start := 0

	for {
		before := int(d.InputOffset())
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid project XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if skipDepth < 0 && t.Name.Space == "" && strings.HasPrefix(t.Name.Local, sccElementPrefix) {
				skipDepth = len(open)
				start = before
			}
			open = append(open, t.Name)
		case xml.EndElement:
			if len(open) == 0 {
				return nil, fmt.Errorf("invalid project XML: unexpected </%s>", qualified(t.Name))
			}
			if top := open[len(open)-1]; top != t.Name {
				return nil, fmt.Errorf("invalid project XML: mismatched </%s>, want </%s>", qualified(t.Name), qualified(top))
			}
			open = open[:len(open)-1]
			if len(open) == skipDepth {
				spans = append(spans, span{start: start, end: int(d.InputOffset())})
				skipDepth = -1
			}
		}
	}

	if len(open) > 0 {
		return nil, fmt.Errorf("invalid project XML: unclosed <%s>", qualified(open[len(open)-1]))
	}
	return spans, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// widenToLine extends s over its line's indentation and terminator
// when nothing else shares the line.
func widenToLine(body []byte, s span) span {
	lineStart := s.start
	for lineStart > 0 && (body[lineStart-1] == ' ' || body[lineStart-1] == '\t') {
		lineStart--
	}
	if lineStart > 0 && body[lineStart-1] != '\n' {
		return s
	}

	lineEnd := s.end
	for lineEnd < len(body) && (body[lineEnd] == ' ' || body[lineEnd] == '\t') {
		lineEnd++
	}
	switch {
	case lineEnd == len(body):
	case body[lineEnd] == '\n':
		lineEnd++
	case body[lineEnd] == '\r' && lineEnd+1 < len(body) && body[lineEnd+1] == '\n':
		lineEnd += 2
	default:
		return s
	}

	return span{start: lineStart, end: lineEnd}
}

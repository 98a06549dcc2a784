// Package partialjson recovers JSON values from model output that is still
// being streamed, and strictly decodes the final text once the stream ends.
//
// TryDecode never fails: a truncated document yields the value built from its
// closed structure. Partially written string values are kept up to their last
// complete character; partially written keys, numbers and literals are left out
// so that a later, longer input never contradicts an earlier result.
package partialjson

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ErrNotObject is returned by Decode when the text is valid JSON but not an object.
var ErrNotObject = errors.New("response is not a JSON object")

// TryDecode returns the best-effort JSON value found in text, or nil when no
// structural progress can be recovered yet. Every '{' or '[' outside an earlier
// candidate may start the document; the candidate whose parse covers the most
// text wins, so brackets in leading or trailing prose do not anchor the parse.
func TryDecode(text string) any {
	var best any
	bestSpan := 0
	for from := 0; from < len(text); {
		i := strings.IndexAny(text[from:], "{[")
		if i < 0 {
			break
		}
		start := from + i
		v, span := decodeAt(text[start:])
		if v != nil && span > bestSpan {
			best, bestSpan = v, span
		}
		from = start + max(span, 1)
	}
	return best
}

// decodeAt parses the document at the start of body and reports how many bytes
// the parse covered.
func decodeAt(body string) (any, int) {
	// A complete document decodes through the regular codec.
	if trimmed := strings.TrimSpace(StripCodeFences(body)); json.Valid([]byte(trimmed)) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v, len(body)
		}
	}

	p := &parser{s: body}
	v, complete, ok := p.value()
	if !ok || (!complete && isEmptyContainer(v)) {
		return nil, p.i
	}
	return v, p.i
}

// Decode strictly parses the final response text as a JSON object. Markdown
// code fences around the object are tolerated; anything else is an error.
func Decode(text string) (map[string]any, error) {
	cleaned := strings.TrimSpace(StripCodeFences(text))
	if cleaned == "" {
		return nil, errors.New("empty response")
	}
	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// StripCodeFences removes markdown code fence lines (``` or ```json) that
// models often wrap around JSON.
func StripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func isEmptyContainer(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// parser walks a possibly truncated document. Every production reports
// whether it reached its closing token (complete) and whether it produced a
// value worth keeping (ok). Once anything is incomplete, parsing stops.
type parser struct {
	s string
	i int
}

func (p *parser) eof() bool { return p.i >= len(p.s) }

func (p *parser) skipWS() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

func (p *parser) value() (v any, complete, ok bool) {
	p.skipWS()
	if p.eof() {
		return nil, false, false
	}
	switch c := p.s[p.i]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, complete := p.str()
		return s, complete, true
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 't' || c == 'f' || c == 'n':
		return p.literal()
	}
	return nil, false, false
}

func (p *parser) object() (any, bool, bool) {
	p.i++ // '{'
	obj := map[string]any{}
	for {
		p.skipWS()
		if p.eof() {
			return obj, false, true
		}
		switch p.s[p.i] {
		case '}':
			p.i++
			return obj, true, true
		case ',':
			p.i++
			continue
		case '"':
		default:
			return obj, false, true
		}

		key, keyDone := p.str()
		if !keyDone {
			return obj, false, true
		}
		p.skipWS()
		if p.eof() || p.s[p.i] != ':' {
			return obj, false, true
		}
		p.i++

		v, complete, ok := p.value()
		if ok {
			obj[key] = v
		}
		if !complete {
			return obj, false, true
		}
	}
}

func (p *parser) array() (any, bool, bool) {
	p.i++ // '['
	arr := []any{}
	for {
		p.skipWS()
		if p.eof() {
			return arr, false, true
		}
		switch p.s[p.i] {
		case ']':
			p.i++
			return arr, true, true
		case ',':
			p.i++
			continue
		}

		v, complete, ok := p.value()
		if ok {
			arr = append(arr, v)
		}
		if !complete {
			return arr, false, true
		}
	}
}

// str reads a string starting at the opening quote. On truncation it returns
// the text decoded so far, minus any half-written escape or rune.
func (p *parser) str() (string, bool) {
	p.i++ // opening quote
	var b strings.Builder
	for p.i < len(p.s) {
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return b.String(), true
		case c == '\\':
			r, n, ok := p.escape()
			if !ok {
				p.i = len(p.s)
				return b.String(), false
			}
			b.WriteRune(r)
			p.i += n
		default:
			r, size := utf8.DecodeRuneInString(p.s[p.i:])
			if r == utf8.RuneError && size == 1 && !utf8.FullRuneInString(p.s[p.i:]) {
				p.i = len(p.s)
				return b.String(), false
			}
			b.WriteRune(r)
			p.i += size
		}
	}
	return b.String(), false
}

// escape decodes the escape sequence at p.i. ok is false when it is cut off.
func (p *parser) escape() (r rune, n int, ok bool) {
	rest := p.s[p.i:]
	if len(rest) < 2 {
		return 0, 0, false
	}
	switch rest[1] {
	case '"', '\\', '/':
		return rune(rest[1]), 2, true
	case 'b':
		return '\b', 2, true
	case 'f':
		return '\f', 2, true
	case 'n':
		return '\n', 2, true
	case 'r':
		return '\r', 2, true
	case 't':
		return '\t', 2, true
	case 'u':
		r1, ok := hex4(rest, 2)
		if !ok {
			return 0, 0, false
		}
		if !utf16.IsSurrogate(r1) {
			return r1, 6, true
		}
		if (len(rest) > 6 && rest[6] != '\\') || (len(rest) > 7 && rest[7] != 'u') {
			return utf8.RuneError, 6, true
		}
		r2, ok := hex4(rest, 8)
		if !ok {
			return 0, 0, false
		}
		if dec := utf16.DecodeRune(r1, r2); dec != utf8.RuneError {
			return dec, 12, true
		}
		return utf8.RuneError, 6, true
	}
	return utf8.RuneError, 2, true
}

func hex4(s string, at int) (rune, bool) {
	if len(s) < at+4 {
		return 0, false
	}
	v, err := strconv.ParseUint(s[at:at+4], 16, 32)
	if err != nil {
		return utf8.RuneError, true
	}
	return rune(v), true
}

func (p *parser) number() (any, bool, bool) {
	start := p.i
	for p.i < len(p.s) && strings.IndexByte("+-.eE0123456789", p.s[p.i]) >= 0 {
		p.i++
	}
	if p.eof() {
		// More digits may follow.
		return nil, false, false
	}
	f, err := strconv.ParseFloat(p.s[start:p.i], 64)
	if err != nil {
		return nil, false, false
	}
	return f, true, true
}

func (p *parser) literal() (any, bool, bool) {
	for word, v := range map[string]any{"true": true, "false": false, "null": nil} {
		rest := p.s[p.i:]
		if strings.HasPrefix(rest, word) {
			p.i += len(word)
			return v, true, true
		}
		if strings.HasPrefix(word, rest) {
			p.i = len(p.s)
			return nil, false, false
		}
	}
	return nil, false, false
}

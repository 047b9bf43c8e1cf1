package values

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scinapse-labs/monty/heap"
)

// StrPayload is a heap-allocated Unicode string. Short strings produced at
// runtime are interned instead (interns.InternOrAllocateString); longer ones
// land here. Strings are immutable: every mutating method builds a new
// payload, and the VM's `+` concatenation likewise always builds a new
// string (spec §4.D).
type StrPayload struct {
	s     string
	runes []rune // lazily populated codepoint view for O(1) indexing
}

func NewStr(s string) *StrPayload { return &StrPayload{s: s} }

func (p *StrPayload) Value() string { return p.s }

func (p *StrPayload) runeSlice() []rune {
	if p.runes == nil {
		p.runes = []rune(p.s)
	}
	return p.runes
}

func (p *StrPayload) ContainsRefs() bool         { return false }
func (p *StrPayload) WalkRefs(func(heap.Ref))    {}
func (p *StrPayload) ComputeHash() uint64 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(p.s))
	return f.Sum64()
}

// Len returns the Unicode-codepoint count, not the byte length.
func (p *StrPayload) Len() int { return utf8.RuneCountInString(p.s) }

func (p *StrPayload) Repr() string {
	return reprPyString(p.s)
}

// At returns the codepoint at a normalized (already non-negative, in
// range) index as a single-character string.
func (p *StrPayload) At(idx int) (string, bool) {
	rs := p.runeSlice()
	if idx < 0 || idx >= len(rs) {
		return "", false
	}
	return string(rs[idx]), true
}

// Slice returns the substring [start, stop) stepping by step, following the
// already-normalized slice.indices(len) convention (Indices, values/slicev.go).
func (p *StrPayload) Slice(start, stop, step int) string {
	rs := p.runeSlice()
	var out []rune
	if step > 0 {
		for i := start; i < stop; i += step {
			if i < 0 || i >= len(rs) {
				break
			}
			out = append(out, rs[i])
		}
	} else if step < 0 {
		for i := start; i > stop; i += step {
			if i < 0 || i >= len(rs) {
				break
			}
			out = append(out, rs[i])
		}
	}
	return string(out)
}

// Split mirrors str.split(sep, maxsplit); empty sep raises ValueError at the
// caller (this function just refuses it the same way).
func (p *StrPayload) Split(sep string, maxsplit int) ([]string, error) {
	if sep == "" {
		return nil, fmt.Errorf("empty separator")
	}
	if maxsplit < 0 {
		return strings.Split(p.s, sep), nil
	}
	return strings.SplitN(p.s, sep, maxsplit+1), nil
}

// SplitWhitespace implements sep=None splitting: runs of whitespace, no
// leading/trailing empty fields.
func (p *StrPayload) SplitWhitespace() []string {
	return strings.Fields(p.s)
}

// lineBoundaryRunes matches Python's splitlines() line-boundary set, which is
// wider than "\n": \r\n, \r, \n, \v, \f, \x1c-\x1e, \x85,  ,  .
var lineBoundaryRunes = map[rune]bool{
	'\n': true, '\r': true, '\v': true, '\f': true,
	0x1c: true, 0x1d: true, 0x1e: true, 0x85: true, 0x2028: true, 0x2029: true,
}

// Splitlines implements str.splitlines(keepends).
func (p *StrPayload) Splitlines(keepends bool) []string {
	var lines []string
	var cur strings.Builder
	rs := []rune(p.s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if lineBoundaryRunes[r] {
			if keepends {
				cur.WriteRune(r)
				if r == '\r' && i+1 < len(rs) && rs[i+1] == '\n' {
					cur.WriteRune('\n')
					i++
				}
			} else if r == '\r' && i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
			lines = append(lines, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func (p *StrPayload) Strip(cutset string) string {
	if cutset == "" {
		return strings.TrimSpace(p.s)
	}
	return strings.Trim(p.s, cutset)
}
func (p *StrPayload) LStrip(cutset string) string {
	if cutset == "" {
		return strings.TrimLeft(p.s, " \t\n\r\v\f")
	}
	return strings.TrimLeft(p.s, cutset)
}
func (p *StrPayload) RStrip(cutset string) string {
	if cutset == "" {
		return strings.TrimRight(p.s, " \t\n\r\v\f")
	}
	return strings.TrimRight(p.s, cutset)
}

func (p *StrPayload) Find(sub string) int {
	byteIdx := strings.Index(p.s, sub)
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(p.s[:byteIdx])
}

func (p *StrPayload) RFind(sub string) int {
	byteIdx := strings.LastIndex(p.s, sub)
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(p.s[:byteIdx])
}

func (p *StrPayload) Replace(old, new string, count int) string {
	if count < 0 {
		return strings.ReplaceAll(p.s, old, new)
	}
	return strings.Replace(p.s, old, new, count)
}

func (p *StrPayload) Lower() string      { return strings.ToLower(p.s) }
func (p *StrPayload) Upper() string      { return strings.ToUpper(p.s) }
func (p *StrPayload) Capitalize() string {
	rs := p.runeSlice()
	if len(rs) == 0 {
		return ""
	}
	out := make([]rune, len(rs))
	out[0] = unicode.ToUpper(rs[0])
	for i := 1; i < len(rs); i++ {
		out[i] = unicode.ToLower(rs[i])
	}
	return string(out)
}
func (p *StrPayload) Title() string { return strings.Title(p.s) } //nolint:staticcheck // matches Python's simple title-casing, not locale-aware.

func (p *StrPayload) StartsWith(prefix string) bool { return strings.HasPrefix(p.s, prefix) }
func (p *StrPayload) EndsWith(suffix string) bool   { return strings.HasSuffix(p.s, suffix) }

func (p *StrPayload) Join(parts []string) string { return strings.Join(parts, p.s) }

func (p *StrPayload) Partition(sep string) (string, string, string) {
	idx := strings.Index(p.s, sep)
	if idx < 0 {
		return p.s, "", ""
	}
	return p.s[:idx], sep, p.s[idx+len(sep):]
}

func (p *StrPayload) RPartition(sep string) (string, string, string) {
	idx := strings.LastIndex(p.s, sep)
	if idx < 0 {
		return "", "", p.s
	}
	return p.s[:idx], sep, p.s[idx+len(sep):]
}

func (p *StrPayload) ZFill(width int) string {
	rs := p.runeSlice()
	if len(rs) >= width {
		return p.s
	}
	pad := width - len(rs)
	sign := ""
	body := p.s
	if len(p.s) > 0 && (p.s[0] == '+' || p.s[0] == '-') {
		sign = string(p.s[0])
		body = p.s[1:]
	}
	return sign + strings.Repeat("0", pad) + body
}

func (p *StrPayload) LJust(width int, fill rune) string {
	n := p.Len()
	if n >= width {
		return p.s
	}
	return p.s + strings.Repeat(string(fill), width-n)
}
func (p *StrPayload) RJust(width int, fill rune) string {
	n := p.Len()
	if n >= width {
		return p.s
	}
	return strings.Repeat(string(fill), width-n) + p.s
}

func (p *StrPayload) IsDigit() bool { return isAllRunes(p.s, unicode.IsDigit) }
func (p *StrPayload) IsAlpha() bool { return isAllRunes(p.s, unicode.IsLetter) }
func (p *StrPayload) IsAlnum() bool {
	return isAllRunes(p.s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) })
}
func (p *StrPayload) IsSpace() bool { return isAllRunes(p.s, unicode.IsSpace) }

func isAllRunes(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// Encode implements str.encode(encoding); only the UTF-8 family is
// supported, matching the bytes side's decode restriction (spec §4.D).
func (p *StrPayload) Encode(encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return p.s, nil
	default:
		return "", fmt.Errorf("unknown encoding: %s", encoding)
	}
}

// FormatSpecKind is the precomputed/runtime-parsed format_spec tag (§4.D).
type FormatSpecKind byte

const (
	FormatAuto FormatSpecKind = iota
	FormatDecimal
	FormatFloatF
	FormatHexLower
	FormatHexUpper
	FormatOctal
	FormatBinary
	FormatPercent
	FormatString
)

// FormatSpec is a parsed format_spec mini-language instance: fill/align/
// sign/width/precision/type. When Static, the compiler has already computed
// it and stored it as a negative-encoded Int constant (§4.D); this struct is
// what that constant decodes to, or what the runtime parser below builds.
type FormatSpec struct {
	Fill      rune
	Align     byte // '<' '>' '^' '=' or 0 for default
	Sign      byte // '+' '-' ' ' or 0
	Width     int
	Precision int
	HasPrec   bool
	Kind      FormatSpecKind
}

// ParseFormatSpec parses a runtime format_spec string per the mini-language:
// [[fill]align][sign][width][.precision][type]
func ParseFormatSpec(spec string) (FormatSpec, error) {
	fs := FormatSpec{Fill: ' '}
	rs := []rune(spec)
	i := 0
	if len(rs) >= 2 && isAlignChar(rs[1]) {
		fs.Fill = rs[0]
		fs.Align = byte(rs[1])
		i = 2
	} else if len(rs) >= 1 && isAlignChar(rs[0]) {
		fs.Align = byte(rs[0])
		i = 1
	}
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-' || rs[i] == ' ') {
		fs.Sign = byte(rs[i])
		i++
	}
	widthStart := i
	for i < len(rs) && unicode.IsDigit(rs[i]) {
		i++
	}
	if i > widthStart {
		fmt.Sscanf(string(rs[widthStart:i]), "%d", &fs.Width)
	}
	if i < len(rs) && rs[i] == '.' {
		i++
		precStart := i
		for i < len(rs) && unicode.IsDigit(rs[i]) {
			i++
		}
		fmt.Sscanf(string(rs[precStart:i]), "%d", &fs.Precision)
		fs.HasPrec = true
	}
	if i < len(rs) {
		switch rs[i] {
		case 'd':
			fs.Kind = FormatDecimal
		case 'f', 'F':
			fs.Kind = FormatFloatF
		case 'x':
			fs.Kind = FormatHexLower
		case 'X':
			fs.Kind = FormatHexUpper
		case 'o':
			fs.Kind = FormatOctal
		case 'b':
			fs.Kind = FormatBinary
		case '%':
			fs.Kind = FormatPercent
		case 's':
			fs.Kind = FormatString
		default:
			return fs, fmt.Errorf("unknown format code %q", rs[i])
		}
		i++
	}
	if i != len(rs) {
		return fs, fmt.Errorf("invalid format spec %q", spec)
	}
	return fs, nil
}

func isAlignChar(r rune) bool { return r == '<' || r == '>' || r == '^' || r == '=' }

// Apply renders an already-stringified value body according to the spec's
// width/align/fill rules. Numeric sign/type rendering happens before Apply
// is called (the caller picks the base representation).
func (fs FormatSpec) Apply(body string) string {
	n := utf8.RuneCountInString(body)
	if n >= fs.Width {
		return body
	}
	pad := fs.Width - n
	fill := string(fs.Fill)
	switch fs.Align {
	case '<':
		return body + strings.Repeat(fill, pad)
	case '^':
		left := pad / 2
		right := pad - left
		return strings.Repeat(fill, left) + body + strings.Repeat(fill, right)
	case '=', '>':
		return strings.Repeat(fill, pad) + body
	default:
		return strings.Repeat(fill, pad) + body
	}
}

// FormatValue renders v under this spec: FormatAuto and FormatString fall
// back to str() (truncated to Precision runes for FormatString), everything
// else reads v as a number and builds the type-specific base representation
// before Apply pads/aligns it. Kinds that need a number reject a non-numeric
// v rather than silently falling back to str().
func (fs FormatSpec) FormatValue(e Env, v Value) (string, error) {
	switch fs.Kind {
	case FormatAuto:
		return fs.Apply(e.PyStr(v)), nil
	case FormatString:
		body := e.PyStr(v)
		if fs.HasPrec && fs.Precision < utf8.RuneCountInString(body) {
			body = string([]rune(body)[:fs.Precision])
		}
		return fs.Apply(body), nil
	}

	var f float64
	switch v.Type {
	case TypeInt:
		f = float64(v.Data.(int64))
	case TypeBool:
		if v.Data.(bool) {
			f = 1
		}
	case TypeFloat:
		f = v.Data.(float64)
	default:
		return "", fmt.Errorf("unsupported format code for %s", e.PyRepr(v))
	}

	var body string
	switch fs.Kind {
	case FormatDecimal:
		body = strconv.FormatInt(int64(f), 10)
	case FormatFloatF:
		prec := 6
		if fs.HasPrec {
			prec = fs.Precision
		}
		body = strconv.FormatFloat(f, 'f', prec, 64)
	case FormatHexLower:
		body = strconv.FormatInt(int64(f), 16)
	case FormatHexUpper:
		body = strings.ToUpper(strconv.FormatInt(int64(f), 16))
	case FormatOctal:
		body = strconv.FormatInt(int64(f), 8)
	case FormatBinary:
		body = strconv.FormatInt(int64(f), 2)
	case FormatPercent:
		prec := 6
		if fs.HasPrec {
			prec = fs.Precision
		}
		body = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
	}
	if f >= 0 {
		switch fs.Sign {
		case '+':
			body = "+" + body
		case ' ':
			body = " " + body
		}
	}
	return fs.Apply(body), nil
}

// SortStrings sorts ss in place in natural (byte-wise) order. The `sorted()`
// builtin does not use it; it sorts through Env.SortValues.
func SortStrings(ss []string) {
	sort.Strings(ss)
}

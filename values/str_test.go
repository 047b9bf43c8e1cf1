package values_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scinapse-labs/monty/heap"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/values"
)

func TestStrPayloadLenCountsCodepoints(t *testing.T) {
	p := values.NewStr("héllo")
	require.Equal(t, 5, p.Len())
}

func TestStrPayloadSplitEmptySepErrors(t *testing.T) {
	p := values.NewStr("abc")
	_, err := p.Split("", -1)
	require.Error(t, err, "spec §4.D: empty-separator split('') raises ValueError")
}

func TestStrPayloadSplitAndMaxsplit(t *testing.T) {
	p := values.NewStr("a,b,c,d")
	parts, err := p.Split(",", -1)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, parts)

	parts, err = p.Split(",", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b,c,d"}, parts)
}

// TestSplitlinesMatchesPythonBoundarySet is spec §4.D: splitlines uses a
// wider boundary set than "\n" alone, and \r\n counts as one boundary.
func TestSplitlinesMatchesPythonBoundarySet(t *testing.T) {
	p := values.NewStr("a\r\nb\vc")
	require.Equal(t, []string{"a", "b", "c"}, p.Splitlines(false))

	withEnds := values.NewStr("a\r\nb").Splitlines(true)
	require.Equal(t, []string{"a\r\n", "b"}, withEnds)
}

func TestStrSliceNegativeStep(t *testing.T) {
	p := values.NewStr("abcdef")
	require.Equal(t, "fedcba", p.Slice(5, -1, -1))
	require.Equal(t, "bcd", p.Slice(1, 4, 1))
}

func TestStrAtNormalizedIndex(t *testing.T) {
	p := values.NewStr("abc")
	ch, ok := p.At(1)
	require.True(t, ok)
	require.Equal(t, "b", ch)

	_, ok = p.At(5)
	require.False(t, ok, "out-of-range index must report not-found, never panic")
}

func TestStrReprPicksQuoteToAvoidEscaping(t *testing.T) {
	require.Equal(t, `"it's"`, values.NewStr("it's").Repr())
	require.Equal(t, `'plain'`, values.NewStr("plain").Repr())
}

func TestParseFormatSpecFullForm(t *testing.T) {
	fs, err := values.ParseFormatSpec("*^10.2f")
	require.NoError(t, err)
	require.Equal(t, '*', fs.Fill)
	require.Equal(t, byte('^'), fs.Align)
	require.Equal(t, 10, fs.Width)
	require.True(t, fs.HasPrec)
	require.Equal(t, 2, fs.Precision)
	require.Equal(t, values.FormatFloatF, fs.Kind)
}

func TestParseFormatSpecRejectsUnknownType(t *testing.T) {
	_, err := values.ParseFormatSpec("5q")
	require.Error(t, err)
}

func TestFormatSpecApplyAlignment(t *testing.T) {
	fs := values.FormatSpec{Fill: '-', Align: '^', Width: 7}
	require.Equal(t, "--ab---", fs.Apply("ab"))

	fs = values.FormatSpec{Fill: ' ', Align: '<', Width: 5}
	require.Equal(t, "ab   ", fs.Apply("ab"))
}

func TestFormatValueFloatPrecision(t *testing.T) {
	e := values.Env{Heap: heap.New(), Interns: interns.New()}
	fs, err := values.ParseFormatSpec(".2f")
	require.NoError(t, err)
	s, err := fs.FormatValue(e, values.Float(3.14159))
	require.NoError(t, err)
	require.Equal(t, "3.14", s)
}

func TestFormatValueWidthPadsDecimal(t *testing.T) {
	e := values.Env{Heap: heap.New(), Interns: interns.New()}
	fs := values.FormatSpec{Fill: '0', Align: '=', Width: 5, Kind: values.FormatDecimal}
	s, err := fs.FormatValue(e, values.Int(7))
	require.NoError(t, err)
	require.Equal(t, "00007", s)
}

func TestFormatValueAutoUsesStrNotRepr(t *testing.T) {
	e := values.Env{Heap: heap.New(), Interns: interns.New()}
	sid := e.Interns.InternString("ab")
	fs := values.FormatSpec{Fill: ' '}
	s, err := fs.FormatValue(e, values.InternStr(sid))
	require.NoError(t, err)
	require.Equal(t, "ab", s)
}

func TestFormatValueRejectsNonNumericForNumericType(t *testing.T) {
	e := values.Env{Heap: heap.New(), Interns: interns.New()}
	fs, err := values.ParseFormatSpec("d")
	require.NoError(t, err)
	sid := e.Interns.InternString("ab")
	_, err = fs.FormatValue(e, values.InternStr(sid))
	require.Error(t, err)
}

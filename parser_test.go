package lisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) Value {
	t.Helper()
	packages := newPackages()
	parser := NewParser(packages)
	stream := NewStream()
	stream.Add(src)
	v, err := parser.ParseNext(stream)
	require.NoError(t, err)
	require.False(t, v.IsEOF())
	return v
}

func TestParseAtoms(t *testing.T) {
	assert.Equal(t, Int(42), parseOne(t, "42"))
	assert.Equal(t, Int(-7), parseOne(t, "-7"))
	assert.Equal(t, Float(3.5), parseOne(t, "3.5"))
	assert.Equal(t, Bool(true), parseOne(t, "#t"))
	assert.Equal(t, Bool(false), parseOne(t, "#f"))
	assert.Equal(t, Bool(false), parseOne(t, "#anything"))
	assert.Equal(t, String("hi there"), parseOne(t, `"hi there"`))
}

func TestParseStringEscape(t *testing.T) {
	v := parseOne(t, `"a\"b\\c\nd"`)
	assert.Equal(t, "a\"b\\cnd", v.AsString(), "backslash escapes the following character verbatim")
}

func TestParseList(t *testing.T) {
	v := parseOne(t, "(1 2 3)")
	items, tail := ListToSlice(v)
	require.Len(t, items, 3)
	assert.True(t, tail.IsNil())
	assert.Equal(t, Int(1), items[0])
	assert.Equal(t, Int(3), items[2])
}

func TestParseDottedList(t *testing.T) {
	v := parseOne(t, "(1 2 . 3)")
	items, tail := ListToSlice(v)
	require.Len(t, items, 2)
	assert.Equal(t, Int(3), tail)
}

func TestParseNestedList(t *testing.T) {
	v := parseOne(t, "(1 (2 3) 4)")
	items, _ := ListToSlice(v)
	require.Len(t, items, 3)
	inner, _ := ListToSlice(items[1])
	require.Len(t, inner, 2)
}

func TestParseQuote(t *testing.T) {
	v := parseOne(t, "'x")
	items, _ := ListToSlice(v)
	require.Len(t, items, 2)
	assert.Equal(t, "quote", items[0].AsSymbol().Name())
	assert.Equal(t, "x", items[1].AsSymbol().Name())
}

func TestParseComment(t *testing.T) {
	v := parseOne(t, "; a comment\n42")
	assert.Equal(t, Int(42), v)
}

func TestParseSymbolPackagePrefix(t *testing.T) {
	packages := newPackages()
	parser := NewParser(packages)
	stream := NewStream()
	stream.Add("foo:bar")
	v, err := parser.ParseNext(stream)
	require.NoError(t, err)
	sym := v.AsSymbol()
	assert.Equal(t, "bar", sym.Name())
	assert.Equal(t, "foo", sym.Package().Name())
}

func TestParseKeyword(t *testing.T) {
	v := parseOne(t, ":foo")
	assert.Equal(t, "foo", v.AsSymbol().Name())
	assert.Equal(t, ":foo", v.String())
}

func TestParseEOFIncomplete(t *testing.T) {
	packages := newPackages()
	parser := NewParser(packages)
	stream := NewStream()
	stream.Add("(1 2")
	v, err := parser.ParseNext(stream)
	require.NoError(t, err)
	assert.True(t, v.IsEOF())
	// the stream must be restored, not consumed, so feeding more text
	// completes the same form
	stream.Add(" 3)")
	v, err = parser.ParseNext(stream)
	require.NoError(t, err)
	items, _ := ListToSlice(v)
	assert.Len(t, items, 3)
}

func TestParseUnexpectedCloseParen(t *testing.T) {
	packages := newPackages()
	parser := NewParser(packages)
	stream := NewStream()
	stream.Add(")")
	_, err := parser.ParseNext(stream)
	require.Error(t, err)
	var perr *ParserError
	assert.ErrorAs(t, err, &perr)
}

func TestParseUnquoteOutsideBackquoteIsError(t *testing.T) {
	packages := newPackages()
	parser := NewParser(packages)
	stream := NewStream()
	stream.Add(",x")
	_, err := parser.ParseNext(stream)
	require.Error(t, err)
}

// TestQuasiquoteRewriteShape checks that a backquoted list with an unquote
// and a splice is rewritten into a (list ...) or (append ...) call. The
// evaluated result of a quasiquote is checked in context_test.go
// (TestScenarioQuasiquote).
func TestQuasiquoteRewriteShape(t *testing.T) {
	v := parseOne(t, "`(1 ,x ,@y)")
	// Expect a (list 1 x) / y append-or-collapsed shape; exact structure is
	// exercised end-to-end in context_test.go via evaluation, this only
	// checks the rewrite doesn't error and heads with append or list.
	require.Equal(t, KindCons, v.Kind())
	head := v.AsCons().First
	require.Equal(t, KindSymbol, head.Kind())
	assert.Contains(t, []string{"list", "append"}, head.AsSymbol().Name())
}

func TestParseDot(t *testing.T) {
	// A bare "." outside a list position is read as the reserved symbol,
	// not a number or a malformed dotted pair; the compiler rejects it.
	v := parseOne(t, ".")
	assert.Equal(t, KindSymbol, v.Kind())
	assert.Equal(t, ".", v.AsSymbol().Name())
}

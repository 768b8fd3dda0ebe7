package lisp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lisp "github.com/rzubek/golisp"
)

func evalAll(t *testing.T, ctx *lisp.Context, src string) []lisp.Result {
	t.Helper()
	results := ctx.Eval(src)
	for _, r := range results {
		require.NoError(t, r.Err, "form %s", r.Input)
	}
	return results
}

// TestScenarioArithmetic is spec section 8, scenario 1.
func TestScenarioArithmetic(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "(+ 1 2) (+ 1 2 3 4) (* 1 2 3 4)")
	require.Len(t, results, 3)
	assert.Equal(t, "3", results[0].Value.String())
	assert.Equal(t, "10", results[1].Value.String())
	assert.Equal(t, "24", results[2].Value.String())
}

// TestScenarioWhileLoop is spec section 8, scenario 2.
func TestScenarioWhileLoop(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "(begin (set! x 0) (while (< x 5) (set! x (+ x 1))) x)")
	require.Len(t, results, 1)
	assert.Equal(t, "5", results[0].Value.String())
}

// TestScenarioRecursiveFactorial is spec section 8, scenario 3.
func TestScenarioRecursiveFactorial(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "(set! fact (lambda (x) (if (<= x 1) 1 (* x (fact (- x 1)))))) (fact 5)")
	require.Len(t, results, 2)
	assert.Equal(t, "[Closure]", results[0].Value.String())
	assert.Equal(t, "120", results[1].Value.String())
}

// TestScenarioQuasiquote is spec section 8, scenario 4.
func TestScenarioQuasiquote(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "`(1 ,(list 2 3) ,@(list 4 5))")
	require.Len(t, results, 1)
	assert.Equal(t, "(1 (2 3) 4 5)", results[0].Value.String())
}

// TestScenarioMacroExpansion is spec section 8, scenario 5.
func TestScenarioMacroExpansion(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "(defmacro inc1 (x) `(+ ,x 1)) (inc1 (inc1 (inc1 1)))")
	require.Len(t, results, 2)
	assert.Equal(t, "4", results[1].Value.String())

	results = evalAll(t, ctx, "(mx1 '(inc1 5))")
	require.Len(t, results, 1)
	assert.Equal(t, "(core:+ 5 1)", results[0].Value.String())
}

// TestScenarioClosureCapturedState is spec section 8, scenario 6: set!
// through a captured variable is visible on every subsequent call through
// the same closure (and, per the environment-sharing invariant, through any
// other closure sharing the frame).
func TestScenarioClosureCapturedState(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, `
(set! add (let ((sum 0)) (lambda (d) (set! sum (+ sum d)) sum)))
(add 0)
(add 100)
(add 0)
`)
	require.Len(t, results, 4)
	assert.Equal(t, "[Closure]", results[0].Value.String())
	assert.Equal(t, "0", results[1].Value.String())
	assert.Equal(t, "100", results[2].Value.String())
	assert.Equal(t, "100", results[3].Value.String())
}

// TestScenarioPackageIsolation is spec section 8, scenario 7: a bare symbol
// read while the current package is "foo" interns as foo:x, leaving the
// global x untouched.
func TestScenarioPackageIsolation(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, `
(package-set "foo")
(package-import "core")
(set! x 5)
(package-set nil)
x
`)
	require.Len(t, results, 5)
	assert.Equal(t, `"foo"`, results[0].Value.String())
	assert.Equal(t, "()", results[1].Value.String())
	assert.Equal(t, "5", results[2].Value.String())
	assert.Equal(t, "()", results[3].Value.String())
	assert.Equal(t, "()", results[4].Value.String(), "global x must be untouched by foo:x")
}

func TestContextSuppressStdlib(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{SuppressStdlib: true})
	results := ctx.Eval("(let ((x 1)) x)")
	require.Len(t, results, 1)
	require.Error(t, results[0].Err, "let is only available once the embedded standard library has loaded")
}

func TestContextHostPrimitive(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{
		Primitives: []*lisp.PrimitiveDef{
			{Name: "host-double", Fn: func(args []lisp.Value) (lisp.Value, error) {
				return lisp.Int(args[0].AsInt() * 2), nil
			}},
		},
	})
	results := evalAll(t, ctx, "(host-double 21)")
	require.Len(t, results, 1)
	assert.Equal(t, "42", results[0].Value.String())
}

func TestContextParseErrorStopsButKeepsPriorResults(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := ctx.Eval("(+ 1 2) )")
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "3", results[0].Value.String())
	assert.Error(t, results[1].Err)
}

func TestContextCompileErrorDoesNotAbortLaterForms(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := ctx.Eval("(set! 5 1) (+ 1 1)")
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "2", results[1].Value.String())
}

func TestDisassembleSmoke(t *testing.T) {
	ctx := lisp.NewContext(lisp.Options{})
	results := evalAll(t, ctx, "(lambda (x) (+ x 1))")
	require.Len(t, results, 1)
	closure := results[0].Value.AsClosure()
	out := ctx.Disassemble(closure.CodeHandle)
	assert.Contains(t, out, "MAKE_ENV")
}

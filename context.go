package lisp

import (
	"os"
	"time"
)

// Options configures a Context at construction time (spec section 10's
// ambient construction story: a single Options struct plus a New-style
// constructor, rather than a pile of With* setters).
type Options struct {
	// SuppressStdlib skips loading the embedded standard-library source
	// (spec section 4.6); useful for tests that want a minimal core.
	SuppressStdlib bool
	// Tracer overrides the GOLISP_TRACE_COMPILE / GOLISP_TRACE_VM
	// environment-variable defaults when non-nil.
	Tracer Tracer
	// Primitives lets a caller add (or override, by name) primitives beyond
	// the built-in set, e.g. to embed golisp with host-specific functions.
	Primitives []*PrimitiveDef
	// Now supplies the clock Result.Elapsed is measured against; defaults to
	// time.Now. Tests that need deterministic timing can override it.
	Now func() time.Time
}

// Context owns one independent interpreter instance: its own code store,
// package registry, compiler, and VM. Two Contexts never share state.
type Context struct {
	CodeStore *CodeStore
	Packages  *Packages
	Parser    *Parser
	Compiler  *Compiler
	VM        *VM
	tracer    Tracer
	now       func() time.Time
}

// Result is what one top-level form evaluates to: the form itself (after
// parsing, before compilation, for error-reporting context), the resulting
// value, any error from parsing/compiling/running it, and how long
// compilation plus execution took.
type Result struct {
	Input   Value
	Value   Value
	Err     error
	Elapsed time.Duration
}

func envTracer() Tracer {
	compile := os.Getenv("GOLISP_TRACE_COMPILE") != ""
	vmTrace := os.Getenv("GOLISP_TRACE_VM") != ""
	if !compile && !vmTrace {
		return nilTracer{}
	}
	return NewWriterTracer(os.Stderr)
}

// NewContext builds a ready-to-use interpreter: core packages seeded,
// built-in primitives installed, and (unless suppressed) the embedded
// standard library loaded.
func NewContext(opts Options) *Context {
	codeStore := NewCodeStore()
	packages := newPackages()
	vm := NewVM(codeStore)
	compiler := NewCompiler(codeStore, packages, vm)
	parser := NewParser(packages)

	tracer := opts.Tracer
	if tracer == nil {
		tracer = envTracer()
	}
	vm.SetTracer(tracer)
	compiler.SetTracer(tracer)

	installPrimitives(vm, codeStore, packages, compiler)
	for _, def := range opts.Primitives {
		vm.RegisterPrimitive(def)
		block := codeStore.Register([]Instruction{
			{Op: OpCallPrimop, First: String(def.Name), Debug: def.Name},
			{Op: OpReturnVal},
		}, def.Name)
		sym := packages.Core().Intern(def.Name)
		sym.SetExported(true)
		_ = packages.Core().Set(sym, ClosureValue(&Closure{CodeHandle: block.Handle, Name: def.Name}))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx := &Context{
		CodeStore: codeStore,
		Packages:  packages,
		Parser:    parser,
		Compiler:  compiler,
		VM:        vm,
		tracer:    tracer,
		now:       now,
	}

	if !opts.SuppressStdlib {
		for _, r := range ctx.Eval(stdlibSource) {
			if r.Err != nil {
				panic("golisp: embedded standard library failed to load: " + r.Err.Error())
			}
		}
	}
	return ctx
}

// Eval parses every top-level form out of source and compiles+executes each
// in turn, stopping at the first parse error (a truncated or malformed
// trailing form does not invalidate forms already read).
func (ctx *Context) Eval(source string) []Result {
	stream := NewStream()
	stream.Add(source)

	var results []Result
	for {
		form, err := ctx.Parser.ParseNext(stream)
		if err != nil {
			results = append(results, Result{Err: err})
			return results
		}
		if form.IsEOF() {
			return results
		}
		results = append(results, ctx.evalForm(form))
	}
}

func (ctx *Context) evalForm(form Value) Result {
	start := ctx.now()
	closure, err := ctx.Compiler.CompileTopLevel(form)
	if err != nil {
		return Result{Input: form, Err: err, Elapsed: ctx.now().Sub(start)}
	}
	value, err := ctx.VM.Execute(closure)
	return Result{Input: form, Value: value, Err: err, Elapsed: ctx.now().Sub(start)}
}

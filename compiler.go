package lisp

import "fmt"

// Macro is an immutable compile-time binding: a name, formal parameter
// list, and a body closure that runs on the VM at compile time with the
// call site's unevaluated argument forms (spec section 3).
type Macro struct {
	Name   string
	Params []*Symbol
	Dotted bool
	Body   *Closure
}

// compileScope is the compile-time mirror of the runtime frame chain: a
// list of bound symbol names per lexical level, used to resolve a symbol
// to a VarPos (spec section 4.3, "Local resolution").
type compileScope struct {
	symbols []*Symbol
	parent  *compileScope
}

func (s *compileScope) lookup(sym *Symbol) (VarPos, bool) {
	depth := 0
	for sc := s; sc != nil; sc = sc.parent {
		for slot, candidate := range sc.symbols {
			if candidate == sym {
				return VarPos{Depth: depth, Slot: slot}, true
			}
		}
		depth++
	}
	return notLocal, false
}

// Compiler turns one parsed top-level form into a closure whose code block
// holds a fully assembled instruction list, installing any defmacro
// immediately along the way (spec section 4.3).
type Compiler struct {
	codeStore *CodeStore
	packages  *Packages
	vm        *VM
	labelSeq  int
	tracer    Tracer
}

func NewCompiler(codeStore *CodeStore, packages *Packages, vm *VM) *Compiler {
	return &Compiler{codeStore: codeStore, packages: packages, vm: vm, tracer: nilTracer{}}
}

// SetTracer overrides the compiler's trace sink; nil restores the no-op.
func (c *Compiler) SetTracer(t Tracer) {
	if t == nil {
		t = nilTracer{}
	}
	c.tracer = t
}

func (c *Compiler) newLabel() string {
	c.labelSeq++
	return fmt.Sprintf("L%d", c.labelSeq)
}

// CompileTopLevel compiles one form read from the parser at the outermost
// level: the whole form is in tail position of an implicit, zero-argument
// thunk, and its value is consumed by the host (used=true).
func (c *Compiler) CompileTopLevel(form Value) (*Closure, error) {
	instrs, err := c.compile(form, nil, true, true)
	if err != nil {
		return nil, err
	}
	assembled, err := assemble(instrs)
	if err != nil {
		return nil, err
	}
	block := c.codeStore.Register(assembled, "")
	c.tracer.OnCompile(form, block)
	return &Closure{CodeHandle: block.Handle, Env: nil}, nil
}

// finish applies the shared "STACK_POP if unused; RETURN_VAL if tail" tail
// of nearly every row in the spec's special-form table. (The spec's prose
// says "if final"/"if non-final"; per the authoritative (used, final) state
// enumeration in section 4.3, final=false IS tail position, so this
// implementation names the field `tail` directly rather than propagating
// that inverted terminology — see DESIGN.md.)
func (c *Compiler) finish(instrs []Instruction, used, tail bool) []Instruction {
	if tail {
		return append(instrs, Instruction{Op: OpReturnVal})
	}
	if !used {
		return append(instrs, Instruction{Op: OpStackPop})
	}
	return instrs
}

func (c *Compiler) compile(form Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	switch form.Kind() {
	case KindSymbol:
		return c.compileSymbolRef(form.AsSymbol(), scope, used, tail)
	case KindCons:
		return c.compileCons(form, scope, used, tail)
	default:
		return c.compileConstant(form, used, tail)
	}
}

func (c *Compiler) compileSymbolRef(sym *Symbol, scope *compileScope, used, tail bool) ([]Instruction, error) {
	if !used {
		return nil, nil // suppressed entirely if unused
	}
	var instrs []Instruction
	if pos, ok := scope.lookup(sym); ok {
		instrs = []Instruction{{Op: OpLocalGet, First: Int(int32(pos.Depth)), Second: Int(int32(pos.Slot)), Debug: sym.String()}}
	} else {
		instrs = []Instruction{{Op: OpGlobalGet, First: SymbolValue(sym), Debug: sym.String()}}
	}
	return c.finish(instrs, true, tail), nil
}

func (c *Compiler) compileConstant(form Value, used, tail bool) ([]Instruction, error) {
	if !used {
		return nil, nil // suppressed entirely if unused
	}
	return c.finish([]Instruction{{Op: OpPushConst, First: form}}, true, tail), nil
}

func (c *Compiler) compileCons(form Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	cons := form.AsCons()
	head := cons.First

	if head.Kind() == KindSymbol {
		sym := head.AsSymbol()
		if sym.Package() == c.packages.Global() {
			switch sym.Name() {
			case "quote":
				return c.compileQuote(cons.Rest, used, tail)
			case "begin":
				return c.compileBegin(cons.Rest, scope, used, tail)
			case "set!":
				return c.compileSet(cons.Rest, scope, used, tail)
			case "if":
				return c.compileIf(cons.Rest, scope, used, tail)
			case "if*":
				return c.compileIfStar(cons.Rest, scope, used, tail)
			case "lambda":
				return c.compileLambda(cons.Rest, scope, used, tail)
			case "defmacro":
				return c.compileDefmacro(cons.Rest, scope, used, tail)
			case "while":
				return c.compileWhile(cons.Rest, scope, used, tail)
			case ".":
				return nil, newCompilerError("unexpected '.' outside a list")
			}
		}
		if m, ok := sym.Package().GetMacro(sym); ok {
			expanded, err := c.expandMacro(m, cons.Rest)
			if err != nil {
				return nil, err
			}
			return c.compile(expanded, scope, used, tail)
		}
	}
	return c.compileApply(head, cons.Rest, scope, used, tail)
}

func (c *Compiler) compileQuote(rest Value, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) != 1 {
		return nil, newCompilerError("quote requires exactly 1 argument")
	}
	if !used {
		return nil, nil
	}
	return c.finish([]Instruction{{Op: OpPushConst, First: items[0]}}, true, tail), nil
}

func (c *Compiler) compileBegin(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() {
		return nil, newCompilerError("begin: malformed body")
	}
	if len(items) == 0 {
		if !used {
			return nil, nil
		}
		return c.finish([]Instruction{{Op: OpPushConst, First: Nil}}, true, tail), nil
	}
	var out []Instruction
	for i, item := range items {
		last := i == len(items)-1
		var (
			instrs []Instruction
			err    error
		)
		if last {
			instrs, err = c.compile(item, scope, used, tail)
		} else {
			instrs, err = c.compile(item, scope, false, false)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, instrs...)
	}
	return out, nil
}

func (c *Compiler) compileSet(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) != 2 {
		return nil, newCompilerError("set! requires exactly 2 arguments")
	}
	if items[0].Kind() != KindSymbol {
		return nil, newCompilerError("set!: target must be a symbol, got %s", items[0])
	}
	sym := items[0].AsSymbol()
	if reservedWords[sym.Name()] && sym.Package() == c.packages.Global() {
		return nil, newCompilerError("cannot set! reserved word %q", sym.Name())
	}
	if _, ok := sym.Package().GetMacro(sym); ok {
		return nil, newCompilerError("cannot set! %s: already defined as a macro", sym)
	}
	valInstrs, err := c.compile(items[1], scope, true, false)
	if err != nil {
		return nil, err
	}
	out := append([]Instruction{}, valInstrs...)
	if pos, ok := scope.lookup(sym); ok {
		out = append(out, Instruction{Op: OpLocalSet, First: Int(int32(pos.Depth)), Second: Int(int32(pos.Slot)), Debug: sym.String()})
	} else {
		out = append(out, Instruction{Op: OpGlobalSet, First: SymbolValue(sym), Debug: sym.String()})
	}
	return c.finish(out, used, tail), nil
}

func isLiteralKind(v Value) bool {
	switch v.Kind() {
	case KindNil, KindBool, KindInt, KindFloat, KindString:
		return true
	}
	return false
}

func structuralEqual(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNil:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindInt:
		return a.AsInt() == b.AsInt()
	case KindFloat:
		return a.AsFloat() == b.AsFloat()
	case KindString:
		return a.AsString() == b.AsString()
	case KindSymbol:
		return a.AsSymbol() == b.AsSymbol()
	case KindCons:
		ac, bc := a.AsCons(), b.AsCons()
		return structuralEqual(ac.First, bc.First) && structuralEqual(ac.Rest, bc.Rest)
	default:
		return a.AsObject() == b.AsObject()
	}
}

func (c *Compiler) compileIf(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) != 3 {
		return nil, newCompilerError("if requires exactly 3 arguments (predicate, then, else)")
	}
	pred, then, els := items[0], items[1], items[2]

	if isLiteralKind(pred) {
		if pred.Truthy() {
			return c.compile(then, scope, used, tail)
		}
		return c.compile(els, scope, used, tail)
	}
	if structuralEqual(then, els) {
		begin := List(SymbolValue(c.packages.Global().Intern("begin")), pred, then)
		return c.compile(begin, scope, used, tail)
	}

	predInstrs, err := c.compile(pred, scope, true, false)
	if err != nil {
		return nil, err
	}
	l1, l2 := c.newLabel(), c.newLabel()

	out := append([]Instruction{}, predInstrs...)
	out = append(out, Instruction{Op: OpJmpIfFalse, First: String(l1)})

	thenInstrs, err := c.compile(then, scope, used, tail)
	if err != nil {
		return nil, err
	}
	out = append(out, thenInstrs...)
	if !tail {
		out = append(out, Instruction{Op: OpJmpToLabel, First: String(l2)})
	}

	out = append(out, Instruction{Op: OpLabel, First: String(l1)})
	elseInstrs, err := c.compile(els, scope, used, tail)
	if err != nil {
		return nil, err
	}
	out = append(out, elseInstrs...)
	if !tail {
		out = append(out, Instruction{Op: OpLabel, First: String(l2)})
	}
	return out, nil
}

func (c *Compiler) compileIfStar(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) != 2 {
		return nil, newCompilerError("if* requires exactly 2 arguments")
	}
	pred, els := items[0], items[1]

	predInstrs, err := c.compile(pred, scope, true, false)
	if err != nil {
		return nil, err
	}
	l1 := c.newLabel()

	out := append([]Instruction{}, predInstrs...)
	out = append(out, Instruction{Op: OpDuplicate})
	out = append(out, Instruction{Op: OpJmpIfTrue, First: String(l1)})
	out = append(out, Instruction{Op: OpStackPop})

	elseInstrs, err := c.compile(els, scope, true, false)
	if err != nil {
		return nil, err
	}
	out = append(out, elseInstrs...)
	out = append(out, Instruction{Op: OpLabel, First: String(l1)})
	return c.finish(out, used, tail), nil
}

func (c *Compiler) compileWhile(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) < 1 {
		return nil, newCompilerError("while requires a predicate and zero or more body forms")
	}
	pred, body := items[0], items[1:]
	l1, l2 := c.newLabel(), c.newLabel()

	out := []Instruction{{Op: OpPushConst, First: Nil}}
	out = append(out, Instruction{Op: OpLabel, First: String(l1)})

	predInstrs, err := c.compile(pred, scope, true, false)
	if err != nil {
		return nil, err
	}
	out = append(out, predInstrs...)
	out = append(out, Instruction{Op: OpJmpIfFalse, First: String(l2)})
	out = append(out, Instruction{Op: OpStackPop})

	if len(body) == 0 {
		out = append(out, Instruction{Op: OpPushConst, First: Nil})
	} else {
		for i, b := range body {
			last := i == len(body)-1
			var (
				bi  []Instruction
				err error
			)
			if last {
				bi, err = c.compile(b, scope, true, false)
			} else {
				bi, err = c.compile(b, scope, false, false)
			}
			if err != nil {
				return nil, err
			}
			out = append(out, bi...)
		}
	}
	out = append(out, Instruction{Op: OpJmpToLabel, First: String(l1)})
	out = append(out, Instruction{Op: OpLabel, First: String(l2)})
	return c.finish(out, used, tail), nil
}

// parseParamList reads a (possibly dotted) formal-parameter list: a proper
// list of symbols, or a dotted list whose tail symbol collects surplus
// arguments.
func parseParamList(form Value) (params []*Symbol, dotted bool, err error) {
	items, tailv := ListToSlice(form)
	for _, it := range items {
		if it.Kind() != KindSymbol {
			return nil, false, newCompilerError("invalid lambda parameter list: %s", form)
		}
		params = append(params, it.AsSymbol())
	}
	if tailv.IsNil() {
		return params, false, nil
	}
	if tailv.Kind() != KindSymbol {
		return nil, false, newCompilerError("invalid lambda parameter list: %s", form)
	}
	return append(params, tailv.AsSymbol()), true, nil
}

// compileBody assembles one function body (the shared tail of lambda and
// defmacro compilation) into its own registered code block.
func (c *Compiler) compileBody(bodyForms []Value, scope *compileScope, dotted bool, nparams int) (*CodeBlock, error) {
	var bodyInstrs []Instruction
	if len(bodyForms) == 0 {
		bodyInstrs = []Instruction{{Op: OpPushConst, First: Nil}, {Op: OpReturnVal}}
	} else {
		for i, b := range bodyForms {
			last := i == len(bodyForms)-1
			var (
				bi  []Instruction
				err error
			)
			if last {
				bi, err = c.compile(b, scope, true, true)
			} else {
				bi, err = c.compile(b, scope, false, false)
			}
			if err != nil {
				return nil, err
			}
			bodyInstrs = append(bodyInstrs, bi...)
		}
	}
	var prologue Instruction
	if dotted {
		prologue = Instruction{Op: OpMakeEnvDot, First: Int(int32(nparams))}
	} else {
		prologue = Instruction{Op: OpMakeEnv, First: Int(int32(nparams))}
	}
	full := append([]Instruction{prologue}, bodyInstrs...)
	assembled, err := assemble(full)
	if err != nil {
		return nil, err
	}
	return c.codeStore.RegisterFunc(assembled, "", scope.symbols, dotted), nil
}

func (c *Compiler) compileLambda(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) < 1 {
		return nil, newCompilerError("lambda requires a parameter list and a body")
	}
	params, dotted, err := parseParamList(items[0])
	if err != nil {
		return nil, err
	}
	childScope := &compileScope{symbols: params, parent: scope}
	block, err := c.compileBody(items[1:], childScope, dotted, len(params))
	if err != nil {
		return nil, err
	}
	if !used {
		return nil, nil
	}
	instrs := []Instruction{{Op: OpMakeClosure, First: Int(int32(block.Handle))}}
	return c.finish(instrs, true, tail), nil
}

// compileDefmacro compiles the macro body eagerly and installs it into the
// name symbol's own package immediately; it only emits PUSH_CONST nil for
// the surrounding program, matching the scenario in spec section 8 where a
// defmacro form's own printed result is not itself meaningful. Per
// DESIGN.md, defmacro is only supported at top level (scope == nil): a
// macro's body closure needs a real captured runtime environment, and only
// the top level has one (nil, the same as any other top-level closure)
// available at compile time.
func (c *Compiler) compileDefmacro(rest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	if scope != nil {
		return nil, newCompilerError("defmacro is only allowed at top level")
	}
	items, tailv := ListToSlice(rest)
	if !tailv.IsNil() || len(items) < 2 {
		return nil, newCompilerError("defmacro requires a name, a parameter list, and a body")
	}
	if items[0].Kind() != KindSymbol {
		return nil, newCompilerError("defmacro: name must be a symbol")
	}
	sym := items[0].AsSymbol()
	params, dotted, err := parseParamList(items[1])
	if err != nil {
		return nil, err
	}
	block, err := c.compileBody(items[2:], &compileScope{symbols: params}, dotted, len(params))
	if err != nil {
		return nil, err
	}
	closure := &Closure{CodeHandle: block.Handle, Env: nil, Params: params, Dotted: dotted, Name: sym.Name()}
	macro := &Macro{Name: sym.Name(), Params: params, Dotted: dotted, Body: closure}
	if err := sym.Package().SetMacro(sym, macro); err != nil {
		return nil, newCompilerError("%s", err.Error())
	}
	return c.finish([]Instruction{{Op: OpPushConst, First: Nil}}, used, tail), nil
}

func (c *Compiler) expandMacro(m *Macro, argsRest Value) (Value, error) {
	argItems, tailv := ListToSlice(argsRest)
	if !tailv.IsNil() {
		return Nil, newCompilerError("macro %s: malformed call arguments", m.Name)
	}
	if m.Dotted {
		if len(argItems) < len(m.Params)-1 {
			return Nil, newCompilerError("macro %s: too few arguments", m.Name)
		}
	} else if len(argItems) != len(m.Params) {
		return Nil, newCompilerError("macro %s: expected %d arguments, got %d", m.Name, len(m.Params), len(argItems))
	}
	return c.vm.Execute(m.Body, argItems...)
}

// ExpandOnce performs a single macro-expansion step on form for the mx1
// primitive: form must be a cons whose head names a macro. Non-macro-headed
// forms are returned unchanged.
func (c *Compiler) ExpandOnce(form Value) (Value, error) {
	if form.Kind() != KindCons {
		return form, nil
	}
	cons := form.AsCons()
	if cons.First.Kind() != KindSymbol {
		return form, nil
	}
	sym := cons.First.AsSymbol()
	m, ok := sym.Package().GetMacro(sym)
	if !ok {
		return form, nil
	}
	return c.expandMacro(m, cons.Rest)
}

// ExpandFull repeatedly expands form (and, after each step, whatever new
// macro call sits at its head) until it stops changing, for the mx
// primitive's "expand to a fixed point" semantics.
func (c *Compiler) ExpandFull(form Value) (Value, error) {
	const maxSteps = 10000
	cur := form
	for i := 0; i < maxSteps; i++ {
		next, err := c.ExpandOnce(cur)
		if err != nil {
			return Nil, err
		}
		if structuralEqual(next, cur) {
			return cur, nil
		}
		cur = next
	}
	return Nil, newCompilerError("mx: macro expansion did not converge after %d steps", maxSteps)
}

// Gensym mints a fresh, uninterned symbol (pkg == nil) for use by macros
// that need a name guaranteed not to collide with anything a caller wrote.
func (c *Compiler) Gensym(prefix string) *Symbol {
	c.labelSeq++
	return &Symbol{name: fmt.Sprintf("%s%d", prefix, c.labelSeq)}
}

// matchZeroArgLambdaCall implements the "((lambda () body)) -> compile
// body in-place" shortcut from the application row of spec section 4.3.
func matchZeroArgLambdaCall(packages *Packages, head, argsRest Value) ([]Value, bool) {
	if !argsRest.IsNil() {
		return nil, false
	}
	if head.Kind() != KindCons {
		return nil, false
	}
	hc := head.AsCons()
	if hc.First.Kind() != KindSymbol || hc.First.AsSymbol().Name() != "lambda" || hc.First.AsSymbol().Package() != packages.Global() {
		return nil, false
	}
	rest := hc.Rest
	if rest.Kind() != KindCons {
		return nil, false
	}
	rc := rest.AsCons()
	if !rc.First.IsNil() {
		return nil, false
	}
	bodyForms, tailv := ListToSlice(rc.Rest)
	if !tailv.IsNil() {
		return nil, false
	}
	return bodyForms, true
}

func (c *Compiler) compileApply(head, argsRest Value, scope *compileScope, used, tail bool) ([]Instruction, error) {
	if bodyForms, ok := matchZeroArgLambdaCall(c.packages, head, argsRest); ok {
		return c.compileBegin(List(bodyForms...), scope, used, tail)
	}

	argItems, argTail := ListToSlice(argsRest)
	if !argTail.IsNil() {
		return nil, newCompilerError("malformed call arguments")
	}

	var out []Instruction
	var contLabel string
	if !tail {
		contLabel = c.newLabel()
		out = append(out, Instruction{Op: OpSaveReturn, First: String(contLabel)})
	}
	for _, a := range argItems {
		ai, err := c.compile(a, scope, true, false)
		if err != nil {
			return nil, err
		}
		out = append(out, ai...)
	}
	fi, err := c.compile(head, scope, true, false)
	if err != nil {
		return nil, err
	}
	out = append(out, fi...)
	out = append(out, Instruction{Op: OpJmpClosure, First: Int(int32(len(argItems)))})

	if !tail {
		out = append(out, Instruction{Op: OpLabel, First: String(contLabel)})
		if !used {
			out = append(out, Instruction{Op: OpStackPop})
		}
	}
	return out, nil
}

// assemble resolves every jump instruction's label to the integer program
// counter of its LABEL pseudo-instruction within this same block (spec
// section 4.3, "Assembly"). The LABEL instruction itself is retained.
func assemble(instrs []Instruction) ([]Instruction, error) {
	labelPC := map[string]int{}
	for i, ins := range instrs {
		if ins.Op == OpLabel {
			labelPC[ins.First.AsString()] = i
		}
	}
	for i, ins := range instrs {
		switch ins.Op {
		case OpJmpToLabel, OpJmpIfTrue, OpJmpIfFalse, OpSaveReturn:
			name := ins.First.AsString()
			pc, ok := labelPC[name]
			if !ok {
				return nil, newCompilerError("unresolved jump label %q", name)
			}
			instrs[i].Second = Int(int32(pc))
		}
	}
	return instrs, nil
}

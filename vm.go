package lisp

// VM is the stack machine that runs assembled code blocks (spec section
// 4.4). A single VM instance is shared by ordinary program execution and
// by macro expansion at compile time: both are just calls to Execute.
type VM struct {
	codeStore  *CodeStore
	primitives map[string]*PrimitiveDef
	tracer     Tracer
}

func NewVM(codeStore *CodeStore) *VM {
	return &VM{codeStore: codeStore, primitives: map[string]*PrimitiveDef{}, tracer: nilTracer{}}
}

func (vm *VM) SetTracer(t Tracer) {
	if t == nil {
		t = nilTracer{}
	}
	vm.tracer = t
}

// RegisterPrimitive installs a primitive under its own name; CALL_PRIMOP
// looks primitives up by this name alone, and the primitive's own Fn is
// responsible for validating argc against its declared arity (spec section
// 4.5).
func (vm *VM) RegisterPrimitive(def *PrimitiveDef) {
	vm.primitives[def.Name] = def
}

func (vm *VM) Primitive(name string) (*PrimitiveDef, bool) {
	def, ok := vm.primitives[name]
	return def, ok
}

// popN removes and returns the top n stack values in their original
// left-to-right push order.
func popN(stack *[]Value, n int) ([]Value, error) {
	s := *stack
	if len(s) < n {
		return nil, newRuntimeError("stack underflow: need %d values, have %d", n, len(s))
	}
	out := make([]Value, n)
	copy(out, s[len(s)-n:])
	*stack = s[:len(s)-n]
	return out, nil
}

func pop(stack *[]Value) (Value, error) {
	s := *stack
	if len(s) == 0 {
		return Nil, newRuntimeError("stack underflow")
	}
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v, nil
}

func peek(stack []Value) (Value, error) {
	if len(stack) == 0 {
		return Nil, newRuntimeError("stack underflow")
	}
	return stack[len(stack)-1], nil
}

func push(stack *[]Value, v Value) {
	*stack = append(*stack, v)
}

// Execute installs closure as the running frame, pre-loads the stack with
// args, and runs the dispatch loop to completion. It is the single entry
// point used both for top-level program execution and for running a
// macro's body on the same VM at compile time.
func (vm *VM) Execute(closure *Closure, args ...Value) (Value, error) {
	block, ok := vm.codeStore.Get(closure.CodeHandle)
	if !ok {
		return Nil, newRuntimeError("call to a closure with an invalid code handle")
	}

	stack := make([]Value, 0, len(args)+8)
	for _, a := range args {
		push(&stack, a)
	}

	cur := closure
	code := block.Instructions
	pc := 0
	env := closure.Env
	argcount := len(args)

	for {
		if pc < 0 || pc >= len(code) {
			return Nil, newRuntimeError("program counter ran off the end of the code block")
		}
		ins := code[pc]
		vm.tracer.OnInstruction(pc, ins, stack)

		switch ins.Op {
		case OpLabel:
			pc++

		case OpPushConst:
			push(&stack, ins.First)
			pc++

		case OpLocalGet:
			depth, slot := int(ins.First.AsInt()), int(ins.Second.AsInt())
			v, err := envGet(env, depth, slot)
			if err != nil {
				return Nil, err
			}
			push(&stack, v)
			pc++

		case OpLocalSet:
			depth, slot := int(ins.First.AsInt()), int(ins.Second.AsInt())
			v, err := peek(stack)
			if err != nil {
				return Nil, err
			}
			if err := envSet(env, depth, slot, v); err != nil {
				return Nil, err
			}
			pc++

		case OpGlobalGet:
			sym := ins.First.AsSymbol()
			v, ok := sym.Package().Get(sym)
			if !ok {
				v = Nil
			}
			push(&stack, v)
			pc++

		case OpGlobalSet:
			sym := ins.First.AsSymbol()
			v, err := peek(stack)
			if err != nil {
				return Nil, err
			}
			if err := sym.Package().Set(sym, v); err != nil {
				return Nil, err
			}
			pc++

		case OpStackPop:
			if _, err := pop(&stack); err != nil {
				return Nil, err
			}
			pc++

		case OpDuplicate:
			v, err := peek(stack)
			if err != nil {
				return Nil, err
			}
			push(&stack, v)
			pc++

		case OpJmpIfTrue:
			v, err := pop(&stack)
			if err != nil {
				return Nil, err
			}
			if v.Truthy() {
				pc = int(ins.Second.AsInt())
			} else {
				pc++
			}

		case OpJmpIfFalse:
			v, err := pop(&stack)
			if err != nil {
				return Nil, err
			}
			if !v.Truthy() {
				pc = int(ins.Second.AsInt())
			} else {
				pc++
			}

		case OpJmpToLabel:
			pc = int(ins.Second.AsInt())

		case OpSaveReturn:
			push(&stack, ReturnAddressValue(&ReturnAddress{
				Closure: cur, PC: int(ins.Second.AsInt()), Env: env,
			}))
			pc++

		case OpJmpClosure:
			callee, err := pop(&stack)
			if err != nil {
				return Nil, err
			}
			if callee.Kind() != KindClosure {
				return Nil, newRuntimeError("attempt to call a non-closure value: %s", callee)
			}
			cur = callee.AsClosure()
			b, ok := vm.codeStore.Get(cur.CodeHandle)
			if !ok {
				return Nil, newRuntimeError("call to a closure with an invalid code handle")
			}
			code = b.Instructions
			env = cur.Env
			argcount = int(ins.First.AsInt())
			pc = 0

		case OpReturnVal:
			v, err := pop(&stack)
			if err != nil {
				return Nil, err
			}
			if len(stack) == 0 {
				return v, nil
			}
			top, err := peek(stack)
			if err != nil || top.Kind() != KindReturnAddress {
				return Nil, newRuntimeError("return with no matching continuation on the stack")
			}
			ra, _ := pop(&stack)
			r := ra.AsReturnAddress()
			push(&stack, v)
			cur = r.Closure
			b, ok := vm.codeStore.Get(cur.CodeHandle)
			if !ok {
				return Nil, newRuntimeError("call to a closure with an invalid code handle")
			}
			code = b.Instructions
			env = r.Env
			pc = r.PC

		case OpMakeEnv:
			n := int(ins.First.AsInt())
			if argcount != n {
				return Nil, newRuntimeError("arity mismatch: %s expects %d argument(s), got %d", cur.describe(), n, argcount)
			}
			vals, err := popN(&stack, n)
			if err != nil {
				return Nil, err
			}
			env = NewEnvironment(env, cur.Params, vals)
			pc++

		case OpMakeEnvDot:
			n := int(ins.First.AsInt())
			if argcount < n-1 {
				return Nil, newRuntimeError("arity mismatch: %s expects at least %d argument(s), got %d", cur.describe(), n-1, argcount)
			}
			vals, err := popN(&stack, argcount)
			if err != nil {
				return Nil, err
			}
			bound := make([]Value, n)
			copy(bound, vals[:n-1])
			bound[n-1] = List(vals[n-1:]...)
			env = NewEnvironment(env, cur.Params, bound)
			pc++

		case OpMakeClosure:
			handle := int(ins.First.AsInt())
			b, ok := vm.codeStore.Get(handle)
			if !ok {
				return Nil, newRuntimeError("MAKE_CLOSURE: invalid code handle %d", handle)
			}
			push(&stack, ClosureValue(&Closure{CodeHandle: handle, Env: env, Params: b.Params, Dotted: b.Dotted}))
			pc++

		case OpCallPrimop:
			name := ins.First.AsString()
			def, ok := vm.primitives[name]
			if !ok {
				return Nil, newRuntimeError("unknown primitive %q", name)
			}
			args, err := popN(&stack, argcount)
			if err != nil {
				return Nil, err
			}
			result, err := def.Fn(args)
			if err != nil {
				return Nil, err
			}
			push(&stack, result)
			pc++

		default:
			return Nil, newRuntimeError("unimplemented opcode %s", ins.Op)
		}
	}
}

func (c *Closure) describe() string {
	if c.Name != "" {
		return c.Name
	}
	return "closure"
}

func envGet(env *Environment, depth, slot int) (Value, error) {
	if env == nil || env.ancestor(depth) == nil {
		return Nil, newRuntimeError("local variable reference at invalid depth %d", depth)
	}
	return env.Get(depth, slot), nil
}

func envSet(env *Environment, depth, slot int, v Value) error {
	if env == nil || env.ancestor(depth) == nil {
		return newRuntimeError("local variable assignment at invalid depth %d", depth)
	}
	env.Set(depth, slot, v)
	return nil
}

package lisp

import (
	"os"
	"strings"
)

// PrimitiveDef is one entry in the primitive table: a name and the
// implementation. There is no arity field; Fn checks its own argument count
// (an "exact" or "varargs" check is expressed directly in Go more simply
// than through a separate enum). Every primitive is also exposed as an ordinary global
// binding: a synthetic one-instruction stub closure (CALL_PRIMOP name;
// RETURN_VAL), so ordinary call compilation needs no special case for
// primitives at all (spec section 4.5).
type PrimitiveDef struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

// installPrimitives registers every primitive with vm and binds its stub
// closure, exported, in the core package.
func installPrimitives(vm *VM, codeStore *CodeStore, packages *Packages, compiler *Compiler) {
	defs := buildPrimitiveDefs(vm, packages, compiler)
	for _, def := range defs {
		vm.RegisterPrimitive(def)
		block := codeStore.Register([]Instruction{
			{Op: OpCallPrimop, First: String(def.Name), Debug: def.Name},
			{Op: OpReturnVal},
		}, def.Name)
		sym := packages.Core().Intern(def.Name)
		sym.SetExported(true)
		stub := &Closure{CodeHandle: block.Handle, Env: nil, Name: def.Name}
		_ = packages.Core().Set(sym, ClosureValue(stub))
	}
}

func arityError(name string, want string, got int) error {
	return newRuntimeError("%s: expected %s argument(s), got %d", name, want, got)
}

func isNumber(v Value) bool { return v.Kind() == KindInt || v.Kind() == KindFloat }

func asFloat(v Value) float32 {
	if v.Kind() == KindInt {
		return float32(v.AsInt())
	}
	return v.AsFloat()
}

func checkNumber(v Value, who string) error {
	if !isNumber(v) {
		return newRuntimeError("%s: expected a number, got %s", who, v)
	}
	return nil
}

func numAdd(a, b Value) Value {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		return Int(a.AsInt() + b.AsInt())
	}
	return Float(asFloat(a) + asFloat(b))
}

func numSub(a, b Value) Value {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		return Int(a.AsInt() - b.AsInt())
	}
	return Float(asFloat(a) - asFloat(b))
}

func numMul(a, b Value) Value {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		return Int(a.AsInt() * b.AsInt())
	}
	return Float(asFloat(a) * asFloat(b))
}

func numDiv(a, b Value) (Value, error) {
	if a.Kind() == KindInt && b.Kind() == KindInt {
		if b.AsInt() == 0 {
			return Nil, newRuntimeError("/: division by zero")
		}
		return Int(a.AsInt() / b.AsInt()), nil
	}
	return Float(asFloat(a) / asFloat(b)), nil
}

func negate(v Value) Value {
	if v.Kind() == KindInt {
		return Int(-v.AsInt())
	}
	return Float(-v.AsFloat())
}

func numCompare(a, b Value) int {
	fa, fb := asFloat(a), asFloat(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

// carOf/cdrOf implement car/cdr with the runtime-error semantics shared by
// cadr, cddr, caddr, cdddr and nth-tail.
func carOf(v Value, who string) (Value, error) {
	if v.Kind() != KindCons {
		return Nil, newRuntimeError("%s: expected a cons, got %s", who, v)
	}
	return v.AsCons().First, nil
}

func cdrOf(v Value, who string) (Value, error) {
	if v.Kind() != KindCons {
		return Nil, newRuntimeError("%s: expected a cons, got %s", who, v)
	}
	return v.AsCons().Rest, nil
}

func buildPrimitiveDefs(vm *VM, packages *Packages, compiler *Compiler) []*PrimitiveDef {
	var defs []*PrimitiveDef
	add := func(name string, fn func(args []Value) (Value, error)) {
		defs = append(defs, &PrimitiveDef{Name: name, Fn: fn})
	}

	// Arithmetic.
	add("+", func(args []Value) (Value, error) {
		acc := Int(0)
		for _, a := range args {
			if err := checkNumber(a, "+"); err != nil {
				return Nil, err
			}
			acc = numAdd(acc, a)
		}
		return acc, nil
	})
	add("-", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Nil, arityError("-", "at least 1", 0)
		}
		if err := checkNumber(args[0], "-"); err != nil {
			return Nil, err
		}
		if len(args) == 1 {
			return negate(args[0]), nil
		}
		acc := args[0]
		for _, a := range args[1:] {
			if err := checkNumber(a, "-"); err != nil {
				return Nil, err
			}
			acc = numSub(acc, a)
		}
		return acc, nil
	})
	add("*", func(args []Value) (Value, error) {
		acc := Int(1)
		for _, a := range args {
			if err := checkNumber(a, "*"); err != nil {
				return Nil, err
			}
			acc = numMul(acc, a)
		}
		return acc, nil
	})
	add("/", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Nil, arityError("/", "at least 1", 0)
		}
		if err := checkNumber(args[0], "/"); err != nil {
			return Nil, err
		}
		if len(args) == 1 {
			return numDiv(Int(1), args[0])
		}
		acc := args[0]
		var err error
		for _, a := range args[1:] {
			if err = checkNumber(a, "/"); err != nil {
				return Nil, err
			}
			acc, err = numDiv(acc, a)
			if err != nil {
				return Nil, err
			}
		}
		return acc, nil
	})

	// Comparison: chained, e.g. (< a b c) == a<b && b<c.
	chain := func(name string, ok func(cmp int) bool) {
		add(name, func(args []Value) (Value, error) {
			if len(args) < 2 {
				return Nil, arityError(name, "at least 2", len(args))
			}
			for i := 0; i+1 < len(args); i++ {
				if err := checkNumber(args[i], name); err != nil {
					return Nil, err
				}
				if err := checkNumber(args[i+1], name); err != nil {
					return Nil, err
				}
				if !ok(numCompare(args[i], args[i+1])) {
					return Bool(false), nil
				}
			}
			return Bool(true), nil
		})
	}
	chain("=", func(cmp int) bool { return cmp == 0 })
	chain("!=", func(cmp int) bool { return cmp != 0 })
	chain("<", func(cmp int) bool { return cmp < 0 })
	chain("<=", func(cmp int) bool { return cmp <= 0 })
	chain(">", func(cmp int) bool { return cmp > 0 })
	chain(">=", func(cmp int) bool { return cmp >= 0 })

	// List construction and access.
	add("cons", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("cons", "2", len(args))
		}
		return ConsValue(&Cons{First: args[0], Rest: args[1]}), nil
	})
	add("list", func(args []Value) (Value, error) { return List(args...), nil })
	add("append", func(args []Value) (Value, error) {
		if len(args) == 0 {
			return Nil, nil
		}
		result := args[len(args)-1]
		for i := len(args) - 2; i >= 0; i-- {
			items, tailv := ListToSlice(args[i])
			if !tailv.IsNil() {
				return Nil, newRuntimeError("append: argument %d is not a proper list", i)
			}
			for j := len(items) - 1; j >= 0; j-- {
				result = ConsValue(&Cons{First: items[j], Rest: result})
			}
		}
		return result, nil
	})
	add("length", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("length", "1", len(args))
		}
		n, proper := ListLength(args[0])
		if !proper {
			return Nil, newRuntimeError("length: improper list")
		}
		return Int(int32(n)), nil
	})
	add("car", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("car", "1", len(args))
		}
		return carOf(args[0], "car")
	})
	add("cdr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("cdr", "1", len(args))
		}
		return cdrOf(args[0], "cdr")
	})
	add("cadr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("cadr", "1", len(args))
		}
		d, err := cdrOf(args[0], "cadr")
		if err != nil {
			return Nil, err
		}
		return carOf(d, "cadr")
	})
	add("cddr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("cddr", "1", len(args))
		}
		d, err := cdrOf(args[0], "cddr")
		if err != nil {
			return Nil, err
		}
		return cdrOf(d, "cddr")
	})
	add("caddr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("caddr", "1", len(args))
		}
		d, err := cdrOf(args[0], "caddr")
		if err != nil {
			return Nil, err
		}
		d, err = cdrOf(d, "caddr")
		if err != nil {
			return Nil, err
		}
		return carOf(d, "caddr")
	})
	add("cdddr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("cdddr", "1", len(args))
		}
		d, err := cdrOf(args[0], "cdddr")
		if err != nil {
			return Nil, err
		}
		d, err = cdrOf(d, "cdddr")
		if err != nil {
			return Nil, err
		}
		return cdrOf(d, "cdddr")
	})
	add("nth", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("nth", "2", len(args))
		}
		items, _ := ListToSlice(args[0])
		i := int(args[1].AsInt())
		if i < 0 || i >= len(items) {
			return Nil, newRuntimeError("nth: index %d out of range", i)
		}
		return items[i], nil
	})
	add("nth-tail", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("nth-tail", "2", len(args))
		}
		cur := args[0]
		i := int(args[1].AsInt())
		for ; i > 0; i-- {
			c, err := cdrOf(cur, "nth-tail")
			if err != nil {
				return Nil, err
			}
			cur = c
		}
		return cur, nil
	})
	add("nth-cons", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("nth-cons", "2", len(args))
		}
		cur := args[0]
		i := int(args[1].AsInt())
		for ; i > 0; i-- {
			if cur.Kind() != KindCons {
				return Nil, newRuntimeError("nth-cons: index %d out of range", int(args[1].AsInt()))
			}
			cur = cur.AsCons().Rest
		}
		if cur.Kind() != KindCons {
			return Nil, newRuntimeError("nth-cons: index %d out of range", i)
		}
		return cur, nil
	})
	add("map", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("map", "2", len(args))
		}
		if args[0].Kind() != KindClosure {
			return Nil, newRuntimeError("map: expected a closure, got %s", args[0])
		}
		fn := args[0].AsClosure()
		items, tailv := ListToSlice(args[1])
		if !tailv.IsNil() {
			return Nil, newRuntimeError("map: second argument is not a proper list")
		}
		out := make([]Value, len(items))
		for i, item := range items {
			r, err := vm.Execute(fn, item)
			if err != nil {
				return Nil, err
			}
			out[i] = r
		}
		return List(out...), nil
	})

	// Predicates.
	add("not", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("not", "1", len(args))
		}
		return Bool(!args[0].Truthy()), nil
	})
	add("null?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("null?", "1", len(args))
		}
		return Bool(args[0].IsNil()), nil
	})
	add("cons?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("cons?", "1", len(args))
		}
		return Bool(args[0].Kind() == KindCons), nil
	})
	add("atom?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("atom?", "1", len(args))
		}
		return Bool(args[0].Kind() != KindCons), nil
	})
	add("string?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("string?", "1", len(args))
		}
		return Bool(args[0].Kind() == KindString), nil
	})
	add("number?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("number?", "1", len(args))
		}
		return Bool(isNumber(args[0])), nil
	})
	add("boolean?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("boolean?", "1", len(args))
		}
		return Bool(args[0].Kind() == KindBool), nil
	})

	add("eq?", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("eq?", "2", len(args))
		}
		return Bool(args[0].Equal(args[1])), nil
	})
	add("member?", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return Nil, arityError("member?", "2", len(args))
		}
		items, _ := ListToSlice(args[1])
		for _, it := range items {
			if it.Equal(args[0]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	})
	add("symbol", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind() != KindString {
			return Nil, newRuntimeError("symbol: expected a string")
		}
		return SymbolValue(packages.Current().Resolve(args[0].AsString())), nil
	})
	add("symbol-name", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind() != KindSymbol {
			return Nil, newRuntimeError("symbol-name: expected a symbol")
		}
		return String(args[0].AsSymbol().Name()), nil
	})
	add("string-append", func(args []Value) (Value, error) {
		var sb strings.Builder
		for _, a := range args {
			if a.Kind() != KindString {
				return Nil, newRuntimeError("string-append: expected a string, got %s", a)
			}
			sb.WriteString(a.AsString())
		}
		return String(sb.String()), nil
	})

	// Vectors, used by the record system in the embedded standard library.
	add("vector", func(args []Value) (Value, error) {
		items := make([]Value, len(args))
		copy(items, args)
		return VectorValue(&Vector{Items: items}), nil
	})
	add("vector?", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("vector?", "1", len(args))
		}
		return Bool(args[0].Kind() == KindVector), nil
	})
	add("vector-length", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind() != KindVector {
			return Nil, newRuntimeError("vector-length: expected a vector")
		}
		return Int(int32(len(args[0].AsVector().Items))), nil
	})
	add("vector-ref", func(args []Value) (Value, error) {
		if len(args) != 2 || args[0].Kind() != KindVector {
			return Nil, newRuntimeError("vector-ref: expected a vector and an index")
		}
		items := args[0].AsVector().Items
		i := int(args[1].AsInt())
		if i < 0 || i >= len(items) {
			return Nil, newRuntimeError("vector-ref: index %d out of range", i)
		}
		return items[i], nil
	})
	add("vector-set!", func(args []Value) (Value, error) {
		if len(args) != 3 || args[0].Kind() != KindVector {
			return Nil, newRuntimeError("vector-set!: expected a vector, an index, and a value")
		}
		items := args[0].AsVector().Items
		i := int(args[1].AsInt())
		if i < 0 || i >= len(items) {
			return Nil, newRuntimeError("vector-set!: index %d out of range", i)
		}
		items[i] = args[2]
		return args[2], nil
	})

	// Compiler reflection.
	add("mx1", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("mx1", "1", len(args))
		}
		return compiler.ExpandOnce(args[0])
	})
	add("mx", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("mx", "1", len(args))
		}
		return compiler.ExpandFull(args[0])
	})
	add("gensym", func(args []Value) (Value, error) {
		prefix := "g"
		if len(args) == 1 {
			if args[0].Kind() != KindString {
				return Nil, newRuntimeError("gensym: expected a string prefix")
			}
			prefix = args[0].AsString()
		} else if len(args) > 1 {
			return Nil, arityError("gensym", "0 or 1", len(args))
		}
		return SymbolValue(compiler.Gensym(prefix)), nil
	})
	add("trace", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("trace", "1", len(args))
		}
		if args[0].Truthy() {
			vm.SetTracer(NewWriterTracer(os.Stderr))
		} else {
			vm.SetTracer(nilTracer{})
		}
		return Bool(args[0].Truthy()), nil
	})

	// Package control.
	add("package-set", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return Nil, arityError("package-set", "1", len(args))
		}
		if args[0].IsNil() {
			packages.SetCurrent(nil)
			return Nil, nil
		}
		if args[0].Kind() != KindString {
			return Nil, newRuntimeError("package-set: expected nil or a string")
		}
		packages.SetCurrent(packages.FindOrCreate(args[0].AsString()))
		return String(packages.Current().Name()), nil
	})
	add("package-get", func(args []Value) (Value, error) {
		if len(args) != 0 {
			return Nil, arityError("package-get", "0", len(args))
		}
		name := packages.Current().Name()
		if name == "" {
			return Nil, nil
		}
		return String(name), nil
	})
	add("package-import", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind() != KindString {
			return Nil, newRuntimeError("package-import: expected a package name string")
		}
		packages.Current().Import(packages.FindOrCreate(args[0].AsString()))
		return Nil, nil
	})
	add("package-imports", func(args []Value) (Value, error) {
		pkg := packages.Current()
		if len(args) == 1 {
			if args[0].Kind() != KindString {
				return Nil, newRuntimeError("package-imports: expected a package name string")
			}
			p, ok := packages.Find(args[0].AsString())
			if !ok {
				return Nil, newRuntimeError("package-imports: unknown package %q", args[0].AsString())
			}
			pkg = p
		} else if len(args) != 0 {
			return Nil, arityError("package-imports", "0 or 1", len(args))
		}
		var out []Value
		for _, imp := range pkg.Imports() {
			out = append(out, String(imp.Name()))
		}
		return List(out...), nil
	})
	add("package-export", func(args []Value) (Value, error) {
		if len(args) != 1 || args[0].Kind() != KindSymbol {
			return Nil, newRuntimeError("package-export: expected a symbol")
		}
		args[0].AsSymbol().SetExported(true)
		return args[0], nil
	})
	add("package-exports", func(args []Value) (Value, error) {
		pkg := packages.Current()
		if len(args) == 1 {
			if args[0].Kind() != KindString {
				return Nil, newRuntimeError("package-exports: expected a package name string")
			}
			p, ok := packages.Find(args[0].AsString())
			if !ok {
				return Nil, newRuntimeError("package-exports: unknown package %q", args[0].AsString())
			}
			pkg = p
		} else if len(args) != 0 {
			return Nil, arityError("package-exports", "0 or 1", len(args))
		}
		var out []Value
		for _, sym := range pkg.exportedSymbols() {
			out = append(out, String(sym.Name()))
		}
		return List(out...), nil
	})

	return defs
}

package lisp

import "fmt"

// Symbol is an interned (name, package, exported?) triple. A Package
// guarantees a unique Symbol instance per name it interns; identity
// comparison of two Symbols from the same package is therefore equivalent
// to name comparison.
type Symbol struct {
	name     string
	pkg      *Package
	exported bool
}

func (s *Symbol) Name() string    { return s.name }
func (s *Symbol) Package() *Package { return s.pkg }
func (s *Symbol) Exported() bool  { return s.exported }
func (s *Symbol) SetExported(v bool) { s.exported = v }

// String renders the symbol per spec section 6: pkg:name, bare name in the
// global package, or :name in the keywords package.
func (s *Symbol) String() string {
	if s.pkg == nil {
		return "#:" + s.name // uninterned, e.g. from gensym
	}
	switch s.pkg.special {
	case globalPkg:
		return s.name
	case keywordPkg:
		return ":" + s.name
	default:
		return fmt.Sprintf("%s:%s", s.pkg.name, s.name)
	}
}

// reservedWords may never be rebound and always resolve to the global
// package, regardless of the current package at read time (spec section 6).
var reservedWords = map[string]bool{
	"quote": true, "begin": true, "set!": true, "if": true, "if*": true,
	"lambda": true, "defmacro": true, ".": true, "while": true,
}

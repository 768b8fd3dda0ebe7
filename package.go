package lisp

import (
	"fmt"
	"sort"
)

type pkgSpecial uint8

const (
	regularPkg pkgSpecial = iota
	globalPkg
	keywordPkg
)

// Package is a named container of interned symbols, their value and macro
// bindings, and an ordered import chain. Imports are walked when a bare
// name is resolved to a symbol (Resolve: own table first, then exported
// symbols of imports) and by LookupByName; Get and GetMacro consult only
// this package's own tables.
type Package struct {
	name     string
	special  pkgSpecial
	symbols  map[string]*Symbol
	bindings map[*Symbol]Value
	macros   map[*Symbol]*Macro
	imports  []*Package
}

func newPackage(name string, special pkgSpecial) *Package {
	return &Package{
		name:     name,
		special:  special,
		symbols:  map[string]*Symbol{},
		bindings: map[*Symbol]Value{},
		macros:   map[*Symbol]*Macro{},
	}
}

func (p *Package) Name() string { return p.name }

// Intern returns the unique Symbol for name in this package, creating it on
// first use.
func (p *Package) Intern(name string) *Symbol {
	if s, ok := p.symbols[name]; ok {
		return s
	}
	s := &Symbol{name: name, pkg: p}
	p.symbols[name] = s
	return s
}

// findOwn returns a symbol already interned in this package, without
// creating one.
func (p *Package) findOwn(name string) (*Symbol, bool) {
	s, ok := p.symbols[name]
	return s, ok
}

// Import adds other to this package's import chain, skipping duplicates.
func (p *Package) Import(other *Package) {
	for _, imp := range p.imports {
		if imp == other {
			return
		}
	}
	p.imports = append(p.imports, other)
}

func (p *Package) Imports() []*Package {
	out := make([]*Package, len(p.imports))
	copy(out, p.imports)
	return out
}

// Resolve implements bare-name symbol resolution at read time: reuse an
// existing symbol reachable from this package (its own table, then each
// import's exported symbols) before interning a brand new one here.
func (p *Package) Resolve(name string) *Symbol {
	if s, ok := p.symbols[name]; ok {
		return s
	}
	for _, imp := range p.imports {
		if s, ok := imp.symbols[name]; ok && s.exported {
			return s
		}
	}
	return p.Intern(name)
}

// LookupByName finds the bound value for name: this package's own
// bindings first, then the bindings of exported symbols from imports.
// Macros are not searched.
func (p *Package) LookupByName(name string) (*Symbol, Value, bool) {
	if s, ok := p.symbols[name]; ok {
		if v, ok := p.bindings[s]; ok {
			return s, v, true
		}
	}
	for _, imp := range p.imports {
		if s, ok := imp.symbols[name]; ok && s.exported {
			if v, ok := imp.bindings[s]; ok {
				return s, v, true
			}
		}
	}
	return nil, Nil, false
}

// Get resolves sym.pkg's own binding table only (resolving Open Question #1
// of spec section 9 this way: a symbol's home package is fixed at intern
// time, so GLOBAL_GET never falls through an import chain a second time).
func (p *Package) Get(sym *Symbol) (Value, bool) {
	v, ok := p.bindings[sym]
	return v, ok
}

// Set binds sym to v in this package. Per the cross-package invariant in
// spec section 3, sym must have been interned here.
func (p *Package) Set(sym *Symbol, v Value) error {
	if sym.pkg != p {
		return fmt.Errorf("cannot set %s in package %s: symbol belongs to a different package", sym, p.displayName())
	}
	if v.IsNil() {
		delete(p.bindings, sym)
		return nil
	}
	p.bindings[sym] = v
	return nil
}

func (p *Package) displayName() string {
	switch p.special {
	case globalPkg:
		return "<global>"
	case keywordPkg:
		return "<keywords>"
	default:
		return p.name
	}
}

// exportedSymbols returns this package's own exported symbols, for the
// package-exports primitive.
func (p *Package) exportedSymbols() []*Symbol {
	var out []*Symbol
	for _, s := range p.symbols {
		if s.exported {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (p *Package) GetMacro(sym *Symbol) (*Macro, bool) {
	m, ok := p.macros[sym]
	return m, ok
}

func (p *Package) SetMacro(sym *Symbol, m *Macro) error {
	if sym.pkg != p {
		return fmt.Errorf("cannot install macro %s in package %s: symbol belongs to a different package", sym, p.displayName())
	}
	p.macros[sym] = m
	return nil
}

// Packages is the registry owned by one Context: the global, keywords and
// core packages, every user package created by name, and the single
// current package the parser interns new symbols into.
type Packages struct {
	global   *Package
	keywords *Package
	core     *Package
	byName   map[string]*Package
	current  *Package
}

func newPackages() *Packages {
	p := &Packages{
		global:   newPackage("", globalPkg),
		keywords: newPackage("", keywordPkg),
		core:     newPackage("core", regularPkg),
		byName:   map[string]*Package{},
	}
	p.byName["core"] = p.core
	p.current = p.global
	p.global.Import(p.core)
	return p
}

func (ps *Packages) Global() *Package   { return ps.global }
func (ps *Packages) Keywords() *Package { return ps.keywords }
func (ps *Packages) Core() *Package     { return ps.core }
func (ps *Packages) Current() *Package  { return ps.current }

// FindOrCreate returns the named package, creating it (and auto-importing
// core) if it does not exist yet.
func (ps *Packages) FindOrCreate(name string) *Package {
	if p, ok := ps.byName[name]; ok {
		return p
	}
	p := newPackage(name, regularPkg)
	p.Import(ps.core)
	ps.byName[name] = p
	return p
}

func (ps *Packages) Find(name string) (*Package, bool) {
	p, ok := ps.byName[name]
	return p, ok
}

// SetCurrent switches the current package; nil resets to the global
// package, matching the "package-set nil" scenario in spec section 8.
func (ps *Packages) SetCurrent(p *Package) {
	if p == nil {
		p = ps.global
	}
	ps.current = p
}

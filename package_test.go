package lisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagesBaseline(t *testing.T) {
	packages := newPackages()
	assert.Equal(t, "", packages.Global().Name())
	assert.Equal(t, "", packages.Keywords().Name())
	assert.Equal(t, "core", packages.Core().Name())
	assert.Same(t, packages.Global(), packages.Current())

	imports := packages.Global().Imports()
	require.Len(t, imports, 1)
	assert.Same(t, packages.Core(), imports[0])
}

func TestFindOrCreateAutoImportsCore(t *testing.T) {
	packages := newPackages()
	foo := packages.FindOrCreate("foo")
	imports := foo.Imports()
	require.Len(t, imports, 1)
	assert.Same(t, packages.Core(), imports[0])

	again := packages.FindOrCreate("foo")
	assert.Same(t, foo, again)
}

func TestPackageSetCrossPackageRejected(t *testing.T) {
	packages := newPackages()
	foo := packages.FindOrCreate("foo")
	bar := packages.FindOrCreate("bar")
	sym := foo.Intern("x")
	err := bar.Set(sym, Int(1))
	assert.Error(t, err)
}

func TestPackageSetNilUnbinds(t *testing.T) {
	pkg := newPackage("p", regularPkg)
	sym := pkg.Intern("x")
	require.NoError(t, pkg.Set(sym, Int(5)))
	v, ok := pkg.Get(sym)
	require.True(t, ok)
	assert.Equal(t, Int(5), v)

	require.NoError(t, pkg.Set(sym, Nil))
	_, ok = pkg.Get(sym)
	assert.False(t, ok)
}

func TestImportOnlyExposesExportedSymbols(t *testing.T) {
	lib := newPackage("lib", regularPkg)
	priv := lib.Intern("secret")
	pub := lib.Intern("public")
	pub.SetExported(true)
	require.NoError(t, lib.Set(priv, Int(1)))
	require.NoError(t, lib.Set(pub, Int(2)))

	user := newPackage("user", regularPkg)
	user.Import(lib)

	_, _, ok := user.LookupByName("secret")
	assert.False(t, ok, "non-exported symbols must not be visible through an import")

	_, v, ok := user.LookupByName("public")
	require.True(t, ok)
	assert.Equal(t, Int(2), v)
}

// TestQualifiedLookupDoesNotFallThroughOwnImports exercises the resolution
// of spec section 9's Open Question #1, as decided in SPEC_FULL.md section
// 12: a symbol's home package is fixed at intern time, so a qualified
// reference resolves only there, never through that package's own imports.
func TestQualifiedLookupDoesNotFallThroughOwnImports(t *testing.T) {
	packages := newPackages()
	lib := packages.FindOrCreate("lib")
	x := lib.Intern("x")
	x.SetExported(true)
	require.NoError(t, packages.Core().Set(packages.Core().Intern("x"), Int(999)))

	// lib:x is never bound in lib itself, even though lib imports core
	// (which also has a binding for "x") — Package.Get must not fall
	// through to lib's import chain.
	_, ok := lib.Get(x)
	assert.False(t, ok)
}

func TestDuplicateImportIsNoop(t *testing.T) {
	a := newPackage("a", regularPkg)
	b := newPackage("b", regularPkg)
	a.Import(b)
	a.Import(b)
	assert.Len(t, a.Imports(), 1)
}

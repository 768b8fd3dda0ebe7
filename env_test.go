package lisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentGetSet(t *testing.T) {
	sx, sy := &Symbol{name: "x"}, &Symbol{name: "y"}
	parent := NewEnvironment(nil, []*Symbol{sx}, []Value{Int(1)})
	child := NewEnvironment(parent, []*Symbol{sy}, []Value{Int(2)})

	assert.Equal(t, Int(2), child.Get(0, 0))
	assert.Equal(t, Int(1), child.Get(1, 0))

	child.Set(1, 0, Int(99))
	assert.Equal(t, Int(99), parent.Get(0, 0))
}

// TestSharedEnvironmentVisibleAcrossClosures is the "counter" scenario's
// data-structure half (spec section 5 and section 8, closure capture
// invariant): two frame chains sharing the same node must observe each
// other's mutations.
func TestSharedEnvironmentVisibleAcrossClosures(t *testing.T) {
	sum := &Symbol{name: "sum"}
	shared := NewEnvironment(nil, []*Symbol{sum}, []Value{Int(0)})

	closureA := &Closure{Env: shared}
	closureB := &Closure{Env: shared}

	closureA.Env.Set(0, 0, Int(42))
	assert.Equal(t, Int(42), closureB.Env.Get(0, 0))
}

func TestCodeStoreHandles(t *testing.T) {
	cs := NewCodeStore()
	_, ok := cs.Get(0)
	assert.False(t, ok, "handle 0 is reserved invalid")

	b1 := cs.Register([]Instruction{{Op: OpPushConst, First: Int(1)}}, "b1")
	b2 := cs.Register([]Instruction{{Op: OpPushConst, First: Int(2)}}, "b2")
	require.Equal(t, 1, b1.Handle)
	require.Equal(t, 2, b2.Handle)

	cs.Remove(b1.Handle)
	_, ok = cs.Get(b1.Handle)
	assert.False(t, ok)
	got, ok := cs.Get(b2.Handle)
	require.True(t, ok)
	assert.Equal(t, b2, got, "removing one handle leaves other handles valid")

	assert.Equal(t, []int{2}, cs.Handles())
}

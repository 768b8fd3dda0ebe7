package lisp

import (
	"fmt"
	"io"
)

// Tracer is the single observability seam for both compilation and
// execution (spec section 10's ambient logging story: one small interface
// rather than a logging framework, toggled by the GOLISP_TRACE_COMPILE and
// GOLISP_TRACE_VM environment variables read in context.go).
type Tracer interface {
	OnCompile(form Value, block *CodeBlock)
	OnInstruction(pc int, ins Instruction, stack []Value)
}

type nilTracer struct{}

func (nilTracer) OnCompile(Value, *CodeBlock)             {}
func (nilTracer) OnInstruction(int, Instruction, []Value) {}

// writerTracer renders every trace line to an io.Writer, used when
// GOLISP_TRACE_COMPILE or GOLISP_TRACE_VM is set.
type writerTracer struct {
	w io.Writer
}

// NewWriterTracer builds a Tracer that writes human-readable trace lines to
// w, suitable for os.Stderr during debugging sessions.
func NewWriterTracer(w io.Writer) Tracer {
	return &writerTracer{w: w}
}

func (t *writerTracer) OnCompile(form Value, block *CodeBlock) {
	fmt.Fprintf(t.w, "compile: %s -> block #%d\n", form, block.Handle)
}

func (t *writerTracer) OnInstruction(pc int, ins Instruction, stack []Value) {
	fmt.Fprintf(t.w, "vm: pc=%03d op=%-12s depth=%d\n", pc, ins.Op, len(stack))
}

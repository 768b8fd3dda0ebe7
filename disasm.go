package lisp

import (
	"fmt"
	"sort"

	"github.com/xlab/treeprint"
)

// Disassemble renders one code block as an indented instruction listing
// (spec section 6, debug enumeration surface), one line per instruction,
// with jump targets annotated by the label they were assembled from.
func (ctx *Context) Disassemble(handle int) string {
	block, ok := ctx.CodeStore.Get(handle)
	if !ok {
		return fmt.Sprintf("<invalid code handle %d>", handle)
	}
	root := treeprint.NewWithRoot(blockTitle(block))
	for pc, ins := range block.Instructions {
		root.AddNode(formatInstruction(pc, ins))
	}
	return root.String()
}

// DisassembleAll renders every live block in the code store, for a
// whole-context debug dump.
func (ctx *Context) DisassembleAll() string {
	root := treeprint.New()
	root.SetValue("code store")
	handles := ctx.CodeStore.Handles()
	sort.Ints(handles)
	for _, h := range handles {
		block, _ := ctx.CodeStore.Get(h)
		branch := root.AddBranch(blockTitle(block))
		for pc, ins := range block.Instructions {
			branch.AddNode(formatInstruction(pc, ins))
		}
	}
	return root.String()
}

func blockTitle(block *CodeBlock) string {
	if block.Debug != "" {
		return fmt.Sprintf("#%d (%s)", block.Handle, block.Debug)
	}
	return fmt.Sprintf("#%d", block.Handle)
}

func formatInstruction(pc int, ins Instruction) string {
	switch ins.Op {
	case OpLabel:
		return fmt.Sprintf("%03d: LABEL %s", pc, ins.First.AsString())
	case OpJmpToLabel, OpJmpIfTrue, OpJmpIfFalse:
		return fmt.Sprintf("%03d: %s %s -> %d", pc, ins.Op, ins.First.AsString(), ins.Second.AsInt())
	case OpSaveReturn:
		return fmt.Sprintf("%03d: SAVE_RETURN %s -> %d", pc, ins.First.AsString(), ins.Second.AsInt())
	case OpLocalGet, OpLocalSet:
		return fmt.Sprintf("%03d: %s depth=%d slot=%d", pc, ins.Op, ins.First.AsInt(), ins.Second.AsInt())
	case OpGlobalGet, OpGlobalSet:
		return fmt.Sprintf("%03d: %s %s", pc, ins.Op, ins.First)
	case OpPushConst:
		return fmt.Sprintf("%03d: PUSH_CONST %s", pc, ins.First)
	case OpMakeEnv, OpMakeEnvDot, OpJmpClosure, OpMakeClosure:
		return fmt.Sprintf("%03d: %s %d", pc, ins.Op, ins.First.AsInt())
	case OpCallPrimop:
		return fmt.Sprintf("%03d: CALL_PRIMOP %s", pc, ins.First.AsString())
	default:
		return fmt.Sprintf("%03d: %s", pc, ins.Op)
	}
}

// Package builder accumulates bindings into a dataflow block under
// construction and normalizes finished blocks into A-normal form.
package builder

import (
	"fmt"
	"strconv"

	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// Builder owns the dataflow block being constructed. Bindings are emitted
// in order; EndBlock seals the block with its return expression.
type Builder struct {
	bindings  []*ir.Binding
	nameCount map[string]int
	used      map[string]bool
}

// New creates a Builder with an empty block already begun.
func New() *Builder {
	b := &Builder{}
	b.BeginBlock()
	return b
}

// BeginBlock starts a new dataflow block, discarding any previous state.
func (b *Builder) BeginBlock() {
	b.bindings = nil
	b.nameCount = make(map[string]int)
	b.used = make(map[string]bool)
}

// MarkUsed reserves a name so FreshName never produces it. Callers reserve
// parameter names and the names of bindings emitted with pre-made
// variables.
func (b *Builder) MarkUsed(name string) {
	b.used[name] = true
}

// FreshName returns hint if it is still free in this block, otherwise hint
// with the smallest numeric suffix that makes it unique.
func (b *Builder) FreshName(hint string) string {
	if hint == "" {
		hint = "lv"
	}
	name := hint
	for i := b.nameCount[hint]; ; i++ {
		if i > 0 {
			name = hint + strconv.Itoa(i)
		}
		if !b.used[name] {
			b.nameCount[hint] = i + 1
			b.used[name] = true
			return name
		}
	}
}

// NewVar declares a fresh variable for this block with a uniqued name.
func (b *Builder) NewVar(hint string, typ types.Type, kind ir.VarKind) *ir.VarDecl {
	return ir.NewVarDecl(b.FreshName(hint), typ, kind)
}

// Emit appends a dataflow binding to the block.
func (b *Builder) Emit(binding *ir.Binding) {
	b.bindings = append(b.bindings, binding)
}

// EmitOutput appends an output binding to the block. The binding's
// variable must have output kind.
func (b *Builder) EmitOutput(binding *ir.Binding) {
	if binding.Var.Kind != ir.KindOutput {
		panic(fmt.Sprintf("builder: EmitOutput called with %s variable %s",
			binding.Var.Kind, binding.Var))
	}
	b.bindings = append(b.bindings, binding)
}

// EndBlock seals the block with its return expression and returns it.
func (b *Builder) EndBlock(ret ir.Expr) *ir.DataflowBlock {
	return &ir.DataflowBlock{Bindings: b.bindings, Ret: ret}
}

package builder

import (
	"fmt"

	"github.com/tensir/tensir/internal/ir"
)

// Normalize rewrites a dataflow block into A-normal form: every operand of
// a call, tuple, or projection is a variable reference or a shape literal,
// with non-leaf sub-expressions rebound through fresh intermediate
// variables. Expression nodes shared by identity are rebound once and
// referenced through their binding variable thereafter. Normalize also
// stamps inferred types on bindings whose variable has no declared type.
//
// A new block is returned. Binding variables are shared with the input
// block; an untyped variable receives its inferred type.
func Normalize(block *ir.DataflowBlock) (*ir.DataflowBlock, error) {
	n := &normalizer{
		b:     New(),
		bound: make(map[ir.Expr]*ir.VarDecl),
	}
	for _, binding := range block.Bindings {
		n.b.MarkUsed(binding.Var.Name)
	}

	for _, binding := range block.Bindings {
		value, err := n.normalizeValue(binding.Value)
		if err != nil {
			return nil, err
		}
		if binding.Var.Typ == nil {
			binding.Var.Typ = value.Type()
		}
		n.bound[binding.Value] = binding.Var
		n.b.Emit(&ir.Binding{Var: binding.Var, Value: value})
	}

	ret := block.Ret
	if ret != nil {
		var err error
		ret, err = n.atomize(ret)
		if err != nil {
			return nil, err
		}
	}
	return n.b.EndBlock(ret), nil
}

type normalizer struct {
	b *Builder

	// bound maps expression nodes (by identity) to the variable already
	// bound to them, so shared nodes are emitted once.
	bound map[ir.Expr]*ir.VarDecl
}

// normalizeValue rewrites e so that all of its direct operands are atoms.
// The result is suitable as a binding right-hand side.
func (n *normalizer) normalizeValue(e ir.Expr) (ir.Expr, error) {
	switch e := e.(type) {
	case *ir.Var, *ir.ShapeLit:
		return e, nil

	case *ir.Tuple:
		fields, changed, err := n.atomizeAll(e.Fields)
		if err != nil {
			return nil, err
		}
		if !changed && e.Type() != nil {
			return e, nil
		}
		out := ir.NewTuple(fields...)
		out.Span = e.Span
		return out, nil

	case *ir.TupleGet:
		tup, err := n.atomize(e.Tuple)
		if err != nil {
			return nil, err
		}
		if tup == e.Tuple && e.Type() != nil {
			return e, nil
		}
		out := ir.NewTupleGet(tup, e.Index)
		out.Span = e.Span
		return out, nil

	case *ir.Call:
		args, changed, err := n.atomizeAll(e.Args)
		if err != nil {
			return nil, err
		}
		out := e
		if changed {
			out = &ir.Call{Op: e.Op, Args: args, Attrs: e.Attrs, Typ: e.Typ, Span: e.Span}
		}
		if out.Typ == nil {
			out.Typ = InferCallType(out)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("normalize: unsupported expression %s", e)
	}
}

// atomize reduces e to a variable reference or shape literal, emitting a
// fresh intermediate binding when e is a compound expression.
func (n *normalizer) atomize(e ir.Expr) (ir.Expr, error) {
	switch e.(type) {
	case *ir.Var, *ir.ShapeLit:
		return e, nil
	}
	if decl, ok := n.bound[e]; ok {
		return ir.NewVar(decl), nil
	}
	value, err := n.normalizeValue(e)
	if err != nil {
		return nil, err
	}
	decl := n.b.NewVar("lv", value.Type(), ir.KindIntermediate)
	n.b.Emit(&ir.Binding{Var: decl, Value: value})
	n.bound[e] = decl
	return ir.NewVar(decl), nil
}

func (n *normalizer) atomizeAll(exprs []ir.Expr) ([]ir.Expr, bool, error) {
	out := make([]ir.Expr, len(exprs))
	changed := false
	for i, e := range exprs {
		a, err := n.atomize(e)
		if err != nil {
			return nil, false, err
		}
		if a != e {
			changed = true
		}
		out[i] = a
	}
	return out, changed, nil
}

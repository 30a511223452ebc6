package gradient

import (
	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// reverseWalk iterates the cloned forward bindings in reverse order. For
// each binding x := e with an accumulated adjoint, the adjoint is bound
// and emitted, then back-propagated through e into its inputs. Bindings
// whose variable never received an adjoint contribute nothing to the
// target and are skipped entirely.
func (p *pass) reverseWalk(bindings []*ir.Binding) error {
	for i := len(bindings) - 1; i >= 0; i-- {
		bind := bindings[i]
		x := bind.Var
		adj := p.ensureAdjVar(x)

		acc, ok := p.adjExpr[x]
		if !ok {
			p.log.Debug().Str("var", x.Name).Msg("no adjoint, skipping binding")
			continue
		}

		eff, err := p.bindAndEmit(adj, acc)
		if err != nil {
			return err
		}

		if err := p.propagate(bind, acc, eff); err != nil {
			return err
		}
	}
	return nil
}

// propagate back-propagates acc, the accumulated (and just emitted)
// adjoint of bind.Var, into the inputs of its right-hand side. adj is the
// effective adjoint variable after intern aliasing.
func (p *pass) propagate(bind *ir.Binding, acc ir.Expr, adj *ir.VarDecl) error {
	switch e := bind.Value.(type) {
	case *ir.Tuple:
		for i, f := range e.Fields {
			if err := p.updateExprMap(f, tupleField(acc, i)); err != nil {
				return err
			}
		}
		return nil

	case *ir.TupleGet:
		return p.updateExprMap(e, acc)

	case *ir.Var:
		return p.updateExprMap(e, acc)

	case *ir.Call:
		return p.propagateCall(e, adj)

	default:
		return passErrorf(ErrUnsupportedBinding, e,
			"AD does not support this binding form")
	}
}

// propagateCall consults the primitive gradient registry and distributes
// the partial adjoints over the call's arguments. Arguments must be
// variable references or shape literals (the IR is in A-normal form over
// calls); shape literals and non-tensor variables are non-adjoint leaves.
func (p *pass) propagateCall(call *ir.Call, adj *ir.VarDecl) error {
	fn, ok := Lookup(call.Op)
	if !ok {
		return passErrorf(ErrMissingGradient, call,
			"no gradient registered for operator %q", call.Op)
	}
	partials, err := fn(call, ir.NewVar(adj))
	if err != nil {
		return err
	}
	if len(partials) != len(call.Args) {
		return passErrorf(ErrArityMismatch, call,
			"gradient of %q returned %d partials for %d arguments",
			call.Op, len(partials), len(call.Args))
	}
	for i, arg := range call.Args {
		if partials[i] == nil {
			continue
		}
		switch arg := arg.(type) {
		case *ir.Var:
			if !types.IsNestedTensor(arg.Type()) {
				continue
			}
			if err := p.updateExprMap(arg, partials[i]); err != nil {
				return err
			}
		case *ir.ShapeLit:
			// Non-differentiable leaf.
		default:
			return passErrorf(ErrStructural, arg,
				"call argument is not a variable reference")
		}
	}
	return nil
}

// updateExprMap accumulates increment into the adjoint of base. The
// accumulated expression always has exactly the structural type of the
// base, and tuple-typed adjoints are kept as tuple literals mirroring the
// variable's nesting.
func (p *pass) updateExprMap(base ir.Expr, increment ir.Expr) error {
	switch base := base.(type) {
	case *ir.Var:
		v := base.Decl
		acc, ok := p.adjExpr[v]
		if !ok {
			// First contribution. Rewrite through the intern table so a
			// contribution already bound elsewhere is stored as a
			// variable reference. Tuple literals are kept as literals to
			// preserve the nesting invariant.
			if _, isTuple := increment.(*ir.Tuple); !isTuple {
				if decl, ok := p.intern.lookup(increment); ok {
					increment = ir.NewVar(decl)
				}
			}
			p.adjExpr[v] = increment
			return nil
		}
		sum, err := p.doAdd(acc, increment)
		if err != nil {
			return err
		}
		p.adjExpr[v] = sum
		return nil

	case *ir.Tuple:
		inc, ok := increment.(*ir.Tuple)
		if !ok {
			return passErrorf(ErrStructural, increment,
				"adjoint of a tuple literal must be a tuple literal")
		}
		if len(inc.Fields) != len(base.Fields) {
			return passErrorf(ErrStructural, base,
				"tuple adjoint arity mismatch: %d vs %d",
				len(base.Fields), len(inc.Fields))
		}
		for i := range base.Fields {
			if err := p.updateExprMap(base.Fields[i], inc.Fields[i]); err != nil {
				return err
			}
		}
		return nil

	case *ir.TupleGet:
		tv, ok := base.Tuple.(*ir.Var)
		if !ok {
			return passErrorf(ErrStructural, base,
				"projection base is not a variable reference")
		}
		tt, ok := tv.Type().(*types.TupleType)
		if !ok {
			return passErrorf(ErrStructural, tv,
				"projection base %s is not tuple-typed", tv)
		}
		acc, ok := p.adjExpr[tv.Decl]
		if !ok {
			var err error
			acc, err = p.zeros.buildEmptyNestedTuple(tt)
			if err != nil {
				return err
			}
		}
		tup, ok := acc.(*ir.Tuple)
		if !ok {
			return passErrorf(ErrStructural, acc,
				"tuple-typed adjoint of %s is not a tuple literal", tv)
		}
		if base.Index >= len(tup.Fields) {
			return passErrorf(ErrStructural, base,
				"projection index %d out of range for %d fields",
				base.Index, len(tup.Fields))
		}
		fields := make([]ir.Expr, len(tup.Fields))
		copy(fields, tup.Fields)
		sum, err := p.doAdd(fields[base.Index], increment)
		if err != nil {
			return err
		}
		fields[base.Index] = sum
		p.adjExpr[tv.Decl] = ir.NewTuple(fields...)
		return nil

	default:
		return passErrorf(ErrStructural, base,
			"cannot accumulate an adjoint into this expression form")
	}
}

// doAdd adds two adjoint expressions with structural-zero elimination.
// The accumulator s1 has already been canonicalized by earlier steps; only
// the new contribution s2 is rewritten through the intern table, so
// repeated sub-expressions appear by reference instead of being
// re-embedded.
func (p *pass) doAdd(s1, s2 ir.Expr) (ir.Expr, error) {
	if p.zeros.isZero(s1) {
		return s2, nil
	}
	if p.zeros.isZero(s2) {
		return s1, nil
	}

	t1, ok1 := s1.(*ir.Tuple)
	t2, ok2 := s2.(*ir.Tuple)
	if ok1 && ok2 {
		if len(t1.Fields) != len(t2.Fields) {
			return nil, passErrorf(ErrStructural, s1,
				"tuple addition arity mismatch: %d vs %d",
				len(t1.Fields), len(t2.Fields))
		}
		fields := make([]ir.Expr, len(t1.Fields))
		for i := range t1.Fields {
			sum, err := p.doAdd(t1.Fields[i], t2.Fields[i])
			if err != nil {
				return nil, err
			}
			fields[i] = sum
		}
		return ir.NewTuple(fields...), nil
	}
	if ok1 != ok2 {
		return nil, passErrorf(ErrStructural, s1,
			"cannot add a tuple adjoint to a non-tuple adjoint")
	}

	if decl, ok := p.intern.lookup(s2); ok {
		s2 = ir.NewVar(decl)
	}
	call := ir.NewCall("add", s1, s2)
	call.Typ = s1.Type()
	return call, nil
}

// bindAndEmit materializes an accumulated adjoint as a binding for v. If
// the expression node was already bound, no new binding is emitted and v
// is aliased to the earlier binding's variable for all later lookups; the
// effective variable is returned either way.
func (p *pass) bindAndEmit(v *ir.VarDecl, e ir.Expr) (*ir.VarDecl, error) {
	if decl, ok := p.intern.lookup(e); ok {
		p.log.Debug().Str("adjoint", v.Name).Str("alias", decl.Name).
			Msg("adjoint aliased to interned binding")
		return decl, nil
	}
	p.intern.record(e, v)
	stampType(e, v.Typ)

	bind := &ir.Binding{Var: v, Value: e}
	if v.Kind == ir.KindOutput {
		p.b.EmitOutput(bind)
	} else {
		p.b.Emit(bind)
	}
	p.log.Debug().Str("adjoint", v.Name).Msg("emitted adjoint binding")
	return v, nil
}

// stampType stamps an untyped expression with the type of the variable it
// is being bound to.
func stampType(e ir.Expr, t types.Type) {
	switch e := e.(type) {
	case *ir.Call:
		if e.Typ == nil {
			e.Typ = t
		}
	case *ir.Tuple:
		if e.Typ == nil {
			e.Typ = t
		}
	case *ir.TupleGet:
		if e.Typ == nil {
			e.Typ = t
		}
	}
}

// tupleField projects the i-th field of a tuple-typed adjoint expression:
// directly for tuple literals, through a projection node otherwise.
func tupleField(e ir.Expr, i int) ir.Expr {
	if t, ok := e.(*ir.Tuple); ok {
		return t.Fields[i]
	}
	return ir.NewTupleGet(e, i)
}

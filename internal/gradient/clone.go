package gradient

import (
	"github.com/tensir/tensir/internal/builder"
	"github.com/tensir/tensir/internal/ir"
)

// cloner reproduces a forward function body with fresh variable
// identities, so the adjoint function owns its own variables. Parameters
// are remapped first; bindings are then re-emitted one at a time into the
// builder with no structural change.
type cloner struct {
	b      *builder.Builder
	varMap map[*ir.VarDecl]*ir.VarDecl
}

func newCloner(b *builder.Builder) *cloner {
	return &cloner{b: b, varMap: make(map[*ir.VarDecl]*ir.VarDecl)}
}

// cloneParams creates fresh parameter declarations structurally equal to
// the originals and registers the old-to-new mapping.
func (c *cloner) cloneParams(params []*ir.VarDecl) []*ir.VarDecl {
	cloned := make([]*ir.VarDecl, len(params))
	for i, p := range params {
		np := ir.NewVarDecl(p.Name, p.Typ, p.Kind)
		c.b.MarkUsed(np.Name)
		c.varMap[p] = np
		cloned[i] = np
	}
	return cloned
}

// cloneBlock re-emits every binding of the forward block into the builder
// and returns the cloned bindings together with the remapped return
// expression.
func (c *cloner) cloneBlock(block *ir.DataflowBlock) ([]*ir.Binding, ir.Expr, error) {
	cloned := make([]*ir.Binding, 0, len(block.Bindings))
	for _, bind := range block.Bindings {
		value, err := c.cloneExpr(bind.Value)
		if err != nil {
			return nil, nil, err
		}
		nv := ir.NewVarDecl(bind.Var.Name, bind.Var.Typ, bind.Var.Kind)
		c.b.MarkUsed(nv.Name)
		c.varMap[bind.Var] = nv
		nb := &ir.Binding{Var: nv, Value: value}
		if nb.Output() {
			c.b.EmitOutput(nb)
		} else {
			c.b.Emit(nb)
		}
		cloned = append(cloned, nb)
	}
	ret, err := c.cloneExpr(block.Ret)
	if err != nil {
		return nil, nil, err
	}
	return cloned, ret, nil
}

// cloneExpr copies an expression, remapping variable references through
// varMap. Shape literals are shared: they are immutable and carry no
// variable identity.
func (c *cloner) cloneExpr(e ir.Expr) (ir.Expr, error) {
	switch e := e.(type) {
	case *ir.Var:
		decl, ok := c.varMap[e.Decl]
		if !ok {
			return nil, passErrorf(ErrStructural, e,
				"reference to variable %s bound outside the function", e)
		}
		return ir.NewVar(decl), nil

	case *ir.ShapeLit:
		return e, nil

	case *ir.Tuple:
		fields := make([]ir.Expr, len(e.Fields))
		for i, f := range e.Fields {
			nf, err := c.cloneExpr(f)
			if err != nil {
				return nil, err
			}
			fields[i] = nf
		}
		clone := ir.NewTuple(fields...)
		if clone.Typ == nil {
			clone.Typ = e.Typ
		}
		return clone, nil

	case *ir.TupleGet:
		tup, err := c.cloneExpr(e.Tuple)
		if err != nil {
			return nil, err
		}
		clone := ir.NewTupleGet(tup, e.Index)
		if clone.Typ == nil {
			clone.Typ = e.Typ
		}
		return clone, nil

	case *ir.Call:
		args := make([]ir.Expr, len(e.Args))
		for i, a := range e.Args {
			na, err := c.cloneExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = na
		}
		return &ir.Call{Op: e.Op, Args: args, Attrs: e.Attrs, Typ: e.Typ, Span: e.Span}, nil

	default:
		return nil, passErrorf(ErrUnsupportedBinding, e,
			"AD does not support this expression form")
	}
}

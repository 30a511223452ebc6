package gradient

import (
	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// zeroTracker records which expression nodes are structural zeros.
// Membership is by node identity, not structural equality: two separately
// constructed zeros(...) calls are both zero, and a structurally equal
// expression built elsewhere is not. Structural zeros still participate in
// normal typing and normalization; only doAdd treats them specially.
type zeroTracker struct {
	zeros map[ir.Expr]bool
}

func newZeroTracker() *zeroTracker {
	return &zeroTracker{zeros: make(map[ir.Expr]bool)}
}

func (z *zeroTracker) mark(e ir.Expr) { z.zeros[e] = true }

func (z *zeroTracker) isZero(e ir.Expr) bool { return z.zeros[e] }

// buildEmptyNestedTuple constructs the all-zero adjoint expression for a
// nested tensor type: a tuple literal mirroring the type's nesting whose
// leaves are zeros(shape, dtype) calls. Every node constructed is
// registered as a structural zero. Types whose leaves are not tensors with
// concrete shapes are rejected, surfacing the offending type.
func (z *zeroTracker) buildEmptyNestedTuple(t types.Type) (ir.Expr, error) {
	switch t := t.(type) {
	case *types.TensorType:
		if t.Shape == nil {
			return nil, passErrorf(ErrStructural, t,
				"cannot build a zero adjoint for a tensor with unknown shape")
		}
		leaf := zerosOf(t)
		z.mark(leaf)
		return leaf, nil

	case *types.TupleType:
		fields := make([]ir.Expr, len(t.Fields))
		for i, ft := range t.Fields {
			field, err := z.buildEmptyNestedTuple(ft)
			if err != nil {
				return nil, err
			}
			fields[i] = field
		}
		tuple := ir.NewTuple(fields...)
		z.mark(tuple)
		return tuple, nil

	default:
		return nil, passErrorf(ErrStructural, t,
			"cannot build a zero adjoint for non-tensor type %s", t)
	}
}

// zerosOf builds zeros(shape, dtype) for a concrete tensor type.
func zerosOf(t *types.TensorType) ir.Expr {
	call := ir.NewCall("zeros", ir.NewShapeLit(t.Shape))
	call.Attrs = map[string]string{"dtype": t.DType.String()}
	call.Typ = t
	return call
}

package gradient

import (
	"fmt"

	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// Gradient definitions for the built-in operator vocabulary. Partials for
// broadcasting elementwise operators are funneled through
// collapse_sum_like so each partial collapses back to its argument's
// shape. Operators that create tensors out of nothing (zeros, ones) and
// the backward operators themselves have no gradient and are deliberately
// absent.

func init() {
	Register("add", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{
			collapseSumLike(adj, call.Args[0]),
			collapseSumLike(adj, call.Args[1]),
		}, nil
	})

	Register("subtract", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{
			collapseSumLike(adj, call.Args[0]),
			collapseSumLike(negative(adj), call.Args[1]),
		}, nil
	})

	Register("multiply", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{
			collapseSumLike(multiply(adj, call.Args[1]), call.Args[0]),
			collapseSumLike(multiply(adj, call.Args[0]), call.Args[1]),
		}, nil
	})

	Register("divide", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		num, den := call.Args[0], call.Args[1]
		return []ir.Expr{
			collapseSumLike(divide(adj, den), num),
			collapseSumLike(negative(divide(multiply(adj, num), multiply(den, den))), den),
		}, nil
	})

	Register("negative", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{negative(adj)}, nil
	})

	Register("exp", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		// d/dx exp(x) = exp(x); reuse the forward call node so
		// normalization rebinds it to the forward result variable.
		return []ir.Expr{multiply(adj, call)}, nil
	})

	Register("log", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{divide(adj, call.Args[0])}, nil
	})

	Register("sigmoid", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		ones, err := onesLike(call.Args[0])
		if err != nil {
			return nil, err
		}
		return []ir.Expr{
			multiply(adj, multiply(call, subtract(ones, call))),
		}, nil
	})

	Register("tanh", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		ones, err := onesLike(call.Args[0])
		if err != nil {
			return nil, err
		}
		return []ir.Expr{
			multiply(adj, subtract(ones, multiply(call, call))),
		}, nil
	})

	Register("sum", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		ones, err := onesLike(call.Args[0])
		if err != nil {
			return nil, err
		}
		return []ir.Expr{multiply(adj, ones)}, nil
	})

	Register("reshape", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok || t.Shape == nil {
			return nil, fmt.Errorf("reshape gradient requires a known input shape, got %v", call.Args[0].Type())
		}
		back := ir.NewCall("reshape", adj, ir.NewShapeLit(t.Shape))
		back.Typ = t
		return []ir.Expr{back, nil}, nil
	})

	Register("transpose", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		return []ir.Expr{ir.NewCall("transpose", adj)}, nil
	})

	Register("matmul", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		a, b := call.Args[0], call.Args[1]
		return []ir.Expr{
			ir.NewCall("matmul", adj, ir.NewCall("transpose", b)),
			ir.NewCall("matmul", ir.NewCall("transpose", a), adj),
		}, nil
	})

	Register("conv2d", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		data, weight := call.Args[0], call.Args[1]
		dData := ir.NewCall("conv2d_backward_data", adj, weight)
		dData.Typ = data.Type()
		dWeight := ir.NewCall("conv2d_backward_weight", adj, data)
		dWeight.Typ = weight.Type()
		return []ir.Expr{dData, dWeight}, nil
	})

	Register("max_pool2d", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		back := ir.NewCall("max_pool2d_backward", adj, call.Args[0])
		back.Typ = call.Args[0].Type()
		return []ir.Expr{back}, nil
	})

	Register("softmax_cross_entropy", func(call *ir.Call, adj *ir.Var) ([]ir.Expr, error) {
		logits, labels := call.Args[0], call.Args[1]
		back := ir.NewCall("softmax_cross_entropy_backward", adj, logits, labels)
		back.Typ = logits.Type()
		// Labels carry no gradient.
		return []ir.Expr{back, nil}, nil
	})
}

func collapseSumLike(e, like ir.Expr) ir.Expr {
	call := ir.NewCall("collapse_sum_like", e, like)
	call.Typ = like.Type()
	return call
}

func multiply(a, b ir.Expr) ir.Expr { return ir.NewCall("multiply", a, b) }
func divide(a, b ir.Expr) ir.Expr   { return ir.NewCall("divide", a, b) }
func subtract(a, b ir.Expr) ir.Expr { return ir.NewCall("subtract", a, b) }

func negative(e ir.Expr) ir.Expr {
	call := ir.NewCall("negative", e)
	call.Typ = e.Type()
	return call
}

// onesLike builds ones(shape, dtype) for a tensor-typed expression with a
// known shape.
func onesLike(e ir.Expr) (ir.Expr, error) {
	t, ok := e.Type().(*types.TensorType)
	if !ok || t.Shape == nil {
		return nil, fmt.Errorf("cannot build ones for type %v", e.Type())
	}
	return onesOf(t), nil
}

// onesOf builds ones(shape, dtype) for a concrete tensor type.
func onesOf(t *types.TensorType) ir.Expr {
	call := ir.NewCall("ones", ir.NewShapeLit(t.Shape))
	call.Attrs = map[string]string{"dtype": t.DType.String()}
	call.Typ = t
	return call
}

package builder

import (
	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// InferCallType derives the result type of an operator call from its
// operand types, for the operator vocabulary the IR ships with. Returns
// nil when the type cannot be derived; callers treat nil as "unknown" and
// may stamp a type explicitly instead.
func InferCallType(call *ir.Call) types.Type {
	switch call.Op {
	case "add", "subtract", "multiply", "divide":
		if len(call.Args) != 2 {
			return nil
		}
		return broadcastType(call.Args[0].Type(), call.Args[1].Type())

	case "negative", "exp", "log", "sigmoid", "tanh":
		if len(call.Args) != 1 {
			return nil
		}
		return call.Args[0].Type()

	case "sum":
		// Full reduction to a scalar.
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok {
			return nil
		}
		return types.ScalarType(t.DType)

	case "zeros", "ones":
		shape, ok := call.Args[0].(*ir.ShapeLit)
		if !ok {
			return nil
		}
		dtype, _ := types.DTypeFromString(call.Attrs["dtype"])
		return types.NewTensorType(shape.Dims, dtype)

	case "collapse_sum_like":
		// Result adopts the type of the reference operand.
		if len(call.Args) != 2 {
			return nil
		}
		return call.Args[1].Type()

	case "reshape":
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok {
			return nil
		}
		shape, ok := call.Args[1].(*ir.ShapeLit)
		if !ok {
			return nil
		}
		return types.NewTensorType(shape.Dims, t.DType)

	case "transpose":
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok || t.Shape == nil {
			return nil
		}
		dims := make([]int64, len(t.Shape))
		for i, d := range t.Shape {
			dims[len(dims)-1-i] = d
		}
		return types.NewTensorType(dims, t.DType)

	case "matmul":
		a, aok := call.Args[0].Type().(*types.TensorType)
		b, bok := call.Args[1].Type().(*types.TensorType)
		if !aok || !bok || len(a.Shape) != 2 || len(b.Shape) != 2 {
			return nil
		}
		return types.NewTensorType([]int64{a.Shape[0], b.Shape[1]}, a.DType)

	case "conv2d", "max_pool2d",
		"conv2d_backward_data", "conv2d_backward_weight",
		"max_pool2d_backward", "softmax_cross_entropy_backward":
		// Shape propagation for the convolution family is not modeled;
		// the element type follows the first operand.
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok {
			return nil
		}
		return &types.TensorType{NDim: -1, DType: t.DType}

	case "softmax_cross_entropy":
		t, ok := call.Args[0].Type().(*types.TensorType)
		if !ok {
			return nil
		}
		return types.ScalarType(t.DType)
	}
	return nil
}

// broadcastType computes the elementwise-broadcast result type of two
// tensor types. Dimensions align from the right; a 1 broadcasts against
// any size. Returns nil when either side is not a tensor or the shapes are
// incompatible; when either shape is unknown the result is a tensor of
// unknown rank.
func broadcastType(a, b types.Type) types.Type {
	at, aok := a.(*types.TensorType)
	bt, bok := b.(*types.TensorType)
	if !aok || !bok {
		return nil
	}
	if at.Shape == nil || bt.Shape == nil {
		return &types.TensorType{NDim: -1, DType: at.DType}
	}
	long, short := at.Shape, bt.Shape
	if len(short) > len(long) {
		long, short = short, long
	}
	dims := make([]int64, len(long))
	copy(dims, long)
	for i := 0; i < len(short); i++ {
		li := len(long) - 1 - i
		si := len(short) - 1 - i
		switch {
		case long[li] == short[si] || short[si] == 1:
			// dims[li] already holds the broadcast size.
		case long[li] == 1:
			dims[li] = short[si]
		default:
			return nil
		}
	}
	dtype := at.DType
	if dtype == types.DTypeUnknown {
		dtype = bt.DType
	}
	return types.NewTensorType(dims, dtype)
}

package gradient

import (
	"sort"

	"github.com/tensir/tensir/internal/ir"
)

// GradFunc computes the partial adjoints of an operator call. Given the
// forward call and the (already bound) adjoint of the call's result, it
// returns one partial-adjoint expression per forward argument, in argument
// order. Each partial must have the structural type of its argument. A nil
// partial marks a non-differentiable argument (shape operands, integer
// label tensors); the reverse walk propagates nothing into it.
type GradFunc func(call *ir.Call, outAdjoint *ir.Var) ([]ir.Expr, error)

// registry maps operator names to their gradient functions. It is
// populated by Register calls from init functions and read-only afterward,
// so concurrent passes share it safely.
var registry = map[string]GradFunc{}

// Register installs the gradient function for an operator. Registering the
// same operator twice panics: gradients are wired once, at package
// initialization.
func Register(op string, fn GradFunc) {
	if _, exists := registry[op]; exists {
		panic("gradient: duplicate registration for operator " + op)
	}
	registry[op] = fn
}

// Lookup returns the gradient function registered for op.
func Lookup(op string) (GradFunc, bool) {
	fn, ok := registry[op]
	return fn, ok
}

// RegisteredOps returns the names of all operators with registered
// gradients, sorted.
func RegisteredOps() []string {
	ops := make([]string, 0, len(registry))
	for op := range registry {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

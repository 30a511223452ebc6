package gradient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensir/tensir/internal/builder"
	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/lexer"
	"github.com/tensir/tensir/internal/parser"
	"github.com/tensir/tensir/internal/types"
	"github.com/tensir/tensir/pkg/printer"
)

// parseAndNormalize parses a textual module and normalizes every function,
// as the pass expects its input.
func parseAndNormalize(t *testing.T, src string) *ir.Module {
	t.Helper()
	p := parser.New(lexer.New(src))
	mod, err := p.ParseModule()
	require.NoError(t, err, "parse errors: %v", p.Errors())
	for _, fn := range mod.Functions() {
		block, err := builder.Normalize(fn.Body)
		require.NoError(t, err)
		fn.Body = block
	}
	return mod
}

func printFn(fn *ir.Function) string {
	return printer.New(printer.DefaultStyle).PrintFunction(fn)
}

const sumOfAddSrc = `fn @main(%x: Tensor[(5, 5), float32], %y: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %lv0 = add(%x, %y)
    %lv1 = sum(%lv0)
    return %lv1
  }
}
`

func TestGradientSumOfAdd(t *testing.T) {
	mod := parseAndNormalize(t, sumOfAddSrc)

	out, err := Gradient(mod, "main", []string{"x", "y"})
	require.NoError(t, err)

	adj := out.Function("main_adjoint")
	require.NotNil(t, adj)

	expected := `fn @main_adjoint(%x: Tensor[(5, 5), float32], %y: Tensor[(5, 5), float32]) -> Tuple[Tensor[(), float32], Tuple[Tensor[(5, 5), float32], Tensor[(5, 5), float32]]] {
  block {
    %lv0 = add(%x, %y)
    %lv1 = sum(%lv0)
    %lv1_adjoint = ones(()) {dtype = "float32"}
    %lv = ones((5, 5)) {dtype = "float32"}
    %lv0_adjoint = multiply(%lv1_adjoint, %lv)
    out %x_adjoint = collapse_sum_like(%lv0_adjoint, %x)
    out %y_adjoint = collapse_sum_like(%lv0_adjoint, %y)
    %lv2 = (%x_adjoint, %y_adjoint)
    %lv3 = (%lv1, %lv2)
    return %lv3
  }
}
`
	assert.Equal(t, expected, printFn(adj))
}

func TestGradientReturnTyping(t *testing.T) {
	mod := parseAndNormalize(t, sumOfAddSrc)

	out, err := Gradient(mod, "main", []string{"x", "y"})
	require.NoError(t, err)

	adj := out.Function("main_adjoint")
	tensor := types.NewTensorType([]int64{5, 5}, types.Float32)
	want := types.NewTupleType(
		types.ScalarType(types.Float32),
		types.NewTupleType(tensor, tensor),
	)
	assert.True(t, adj.RetType.Equals(want), "return type = %s", adj.RetType)
	assert.Equal(t, "main_adjoint", adj.Attrs[ir.AttrGlobalSymbol])

	// Parameters are structurally equal to the originals but fresh.
	orig := mod.Function("main")
	require.Len(t, adj.Params, 2)
	for i, param := range adj.Params {
		assert.Equal(t, orig.Params[i].Name, param.Name)
		assert.True(t, param.Typ.Equals(orig.Params[i].Typ))
		assert.NotSame(t, orig.Params[i], param)
	}
}

func TestGradientUnusedInput(t *testing.T) {
	src := `fn @main(%x: Tensor[(5, 5), float32], %y: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %lv0 = sum(%x)
    return %lv0
  }
}
`
	mod := parseAndNormalize(t, src)

	out, err := Gradient(mod, "main", []string{"x", "y"})
	require.NoError(t, err)

	text := printFn(out.Function("main_adjoint"))
	assert.Contains(t, text, `out %y_adjoint = zeros((5, 5)) {dtype = "float32"}`)
	assert.Contains(t, text, "out %x_adjoint = multiply(%lv0_adjoint, %lv)")
}

func TestGradientAliasChain(t *testing.T) {
	src := `fn @main(%x: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %a = %x
    %b = %a
    %lv = sum(%b)
    return %lv
  }
}
`
	mod := parseAndNormalize(t, src)

	out, err := Gradient(mod, "main", []string{"x"})
	require.NoError(t, err)

	text := printFn(out.Function("main_adjoint"))
	// The sum partial is materialized once; the chain collapses to
	// variable aliases through the intern table.
	assert.Equal(t, 1, strings.Count(text, "ones((5, 5))"), "output:\n%s", text)
	assert.Equal(t, 1, strings.Count(text, "multiply("), "output:\n%s", text)
	assert.Contains(t, text, "out %x_adjoint = %a_adjoint")
}

func TestGradientTupleConstructProject(t *testing.T) {
	src := `fn @main(%x: Tensor[(5, 5), float32], %y: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %t = (%x, %y)
    %u = %t.0
    %lv = sum(%u)
    return %lv
  }
}
`
	mod := parseAndNormalize(t, src)

	out, err := Gradient(mod, "main", []string{"x", "y"})
	require.NoError(t, err)

	text := printFn(out.Function("main_adjoint"))
	// The tuple's adjoint starts as an all-zero tuple and is additively
	// updated at index 0, absorbing the zero.
	assert.Contains(t, text, "%t_adjoint = (%u_adjoint, ")
	assert.Contains(t, text, "out %x_adjoint = %u_adjoint")
	assert.Contains(t, text, `out %y_adjoint = zeros((5, 5)) {dtype = "float32"}`)
	// Zero absorption: no add was ever emitted.
	assert.NotContains(t, text, "add(")
}

func TestGradientSharedIntermediate(t *testing.T) {
	src := `fn @main(%x: Tensor[(5, 5), float32], %y: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %lv0 = add(%x, %y)
    %lv1 = add(%lv0, %lv0)
    %lv = sum(%lv1)
    return %lv
  }
}
`
	mod := parseAndNormalize(t, src)

	out, err := Gradient(mod, "main", []string{"x", "y"})
	require.NoError(t, err)

	text := printFn(out.Function("main_adjoint"))
	// Two forward adds plus exactly one accumulation add for the two
	// partials flowing into lv0.
	assert.Equal(t, 3, strings.Count(text, "add("), "output:\n%s", text)
	// The input partials reference the bound lv0_adjoint variable rather
	// than re-embedding its defining expression.
	assert.Contains(t, text, "out %x_adjoint = collapse_sum_like(%lv0_adjoint, %x)")
	assert.Contains(t, text, "out %y_adjoint = collapse_sum_like(%lv0_adjoint, %y)")
}

func TestGradientEmptyRequiresGradSelectsAllInputs(t *testing.T) {
	mod := parseAndNormalize(t, sumOfAddSrc)

	out, err := Gradient(mod, "main", nil)
	require.NoError(t, err)

	adj := out.Function("main_adjoint")
	ret, ok := adj.RetType.(*types.TupleType)
	require.True(t, ok)
	adjTuple, ok := ret.Fields[1].(*types.TupleType)
	require.True(t, ok)
	assert.Len(t, adjTuple.Fields, 2)

	text := printFn(adj)
	assert.Contains(t, text, "out %x_adjoint")
	assert.Contains(t, text, "out %y_adjoint")
}

func TestGradientInputModuleUnchanged(t *testing.T) {
	mod := parseAndNormalize(t, sumOfAddSrc)
	before := printer.New(printer.DefaultStyle).Print(mod)
	origFn := mod.Function("main")

	out, err := Gradient(mod, "main", []string{"x"})
	require.NoError(t, err)

	assert.Equal(t, before, printer.New(printer.DefaultStyle).Print(mod))
	assert.Nil(t, mod.Function("main_adjoint"))
	assert.Same(t, origFn, out.Function("main"), "existing functions are shared, not copied")
	assert.Equal(t, 1, mod.Len())
	assert.Equal(t, 2, out.Len())
}

func TestGradientErrors(t *testing.T) {
	mod := parseAndNormalize(t, sumOfAddSrc)

	tests := []struct {
		name   string
		fn     string
		inputs []string
		kind   ErrorKind
	}{
		{"unknown function", "nope", nil, ErrFunctionNotFound},
		{"not a parameter", "main", []string{"z"}, ErrNotParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Gradient(mod, tt.fn, tt.inputs)
			var perr *PassError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestGradientNonScalarTarget(t *testing.T) {
	src := `fn @main(%x: Tensor[(5, 5), float32]) -> Tensor[(5, 5), float32] {
  block {
    %lv = exp(%x)
    return %lv
  }
}
`
	mod := parseAndNormalize(t, src)

	_, err := Gradient(mod, "main", nil)
	var perr *PassError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrTargetNotScalar, perr.Kind)
}

func TestGradientTargetNotVariable(t *testing.T) {
	x := ir.NewVarDecl("x", types.ScalarType(types.Float32), ir.KindParameter)
	block := &ir.DataflowBlock{Ret: ir.NewTuple(ir.NewVar(x))}
	mod := ir.NewModule()
	mod.Add(ir.NewFunction("f", []*ir.VarDecl{x}, block, types.NewTupleType(types.ScalarType(types.Float32))))

	_, err := Gradient(mod, "f", nil)
	var perr *PassError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrTargetNotVariable, perr.Kind)
}

func TestGradientMissingGradient(t *testing.T) {
	scalar := types.ScalarType(types.Float32)
	x := ir.NewVarDecl("x", scalar, ir.KindParameter)
	lv := ir.NewVarDecl("lv", scalar, ir.KindIntermediate)
	call := ir.NewCall("mystery", ir.NewVar(x))
	call.Typ = scalar
	block := &ir.DataflowBlock{
		Bindings: []*ir.Binding{{Var: lv, Value: call}},
		Ret:      ir.NewVar(lv),
	}
	mod := ir.NewModule()
	mod.Add(ir.NewFunction("f", []*ir.VarDecl{x}, block, scalar))

	_, err := Gradient(mod, "f", nil)
	var perr *PassError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrMissingGradient, perr.Kind)
}

func TestGradientNonDifferentiableInput(t *testing.T) {
	src := `fn @main(%s: Shape, %x: Tensor[(5, 5), float32]) -> Tensor[(), float32] {
  block {
    %lv = sum(%x)
    return %lv
  }
}
`
	mod := parseAndNormalize(t, src)

	_, err := Gradient(mod, "main", []string{"s"})
	var perr *PassError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrNotDifferentiable, perr.Kind)

	// Selecting only the tensor input works.
	out, err := Gradient(mod, "main", []string{"x"})
	require.NoError(t, err)
	require.NotNil(t, out.Function("main_adjoint"))
}

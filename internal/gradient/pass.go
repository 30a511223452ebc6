// Package gradient implements the reverse-mode automatic differentiation
// pass over the tensor IR.
//
// Given a function whose body is a single dataflow block returning a
// scalar tensor, the pass builds a new function that returns the original
// value together with the gradients of that value with respect to a
// designated subset of the inputs. The forward bindings are reproduced
// with fresh variable identities, the bindings are then walked in reverse
// while adjoint expressions accumulate through tuples, projections, and
// operator calls, and finally the input adjoints are collected into the
// return value.
//
// The pass is single-threaded and owns all of its tables for the duration
// of one invocation; the input module is never modified. The primitive
// gradient registry is populated at package initialization and queried
// read-only, so concurrent passes may share it.
package gradient

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tensir/tensir/internal/builder"
	"github.com/tensir/tensir/internal/ir"
	"github.com/tensir/tensir/internal/types"
)

// AdjointSuffix is appended to a function or variable name to form the
// name of its adjoint.
const AdjointSuffix = "_adjoint"

// Option configures a pass invocation.
type Option func(*pass)

// WithLogger attaches a logger for per-binding debug tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(p *pass) {
		p.log = log
	}
}

// pass carries the state of one gradient transformation.
type pass struct {
	b *builder.Builder

	// adjVar binds each differentiated variable to its adjoint variable.
	// One entry per original variable, created lazily; the adjoint's kind
	// mirrors the original's.
	adjVar map[*ir.VarDecl]*ir.VarDecl

	// adjExpr holds the accumulated, not yet bound adjoint expression of
	// each variable. Entries grow monotonically by addition and are
	// consumed by bindAndEmit.
	adjExpr map[*ir.VarDecl]ir.Expr

	// intern maps already-bound expressions to their binding variable so
	// repeated occurrences collapse to a reference.
	intern internTable

	// zeros tracks structural-zero expressions by identity.
	zeros *zeroTracker

	log zerolog.Logger
}

// internTable maps expression nodes, by identity, to the variable each was
// bound to. If intern[e] = v then a binding v := e was emitted earlier in
// the region.
type internTable map[ir.Expr]*ir.VarDecl

func (t internTable) lookup(e ir.Expr) (*ir.VarDecl, bool) {
	decl, ok := t[e]
	return decl, ok
}

func (t internTable) record(e ir.Expr, v *ir.VarDecl) {
	t[e] = v
}

// Gradient transforms the function bound to fnName in mod into a new
// function named fnName+"_adjoint" and returns a module containing both.
//
// requiresGrad names the input parameters whose gradients appear in the
// output, in order; an empty list selects every parameter. The new
// function returns (original_return, (adj_1, ..., adj_k)).
//
// The input module is unchanged: the result is a copy-on-write clone
// sharing every existing function.
func Gradient(mod *ir.Module, fnName string, requiresGrad []string, opts ...Option) (*ir.Module, error) {
	fn := mod.Function(fnName)
	if fn == nil {
		return nil, passErrorf(ErrFunctionNotFound, nil,
			"function %q not found in module", fnName)
	}
	if fn.Body == nil {
		return nil, passErrorf(ErrMissingBody, nil,
			"function %q has no dataflow block body", fnName)
	}

	// Resolve the requires-gradient set against the parameter list.
	selected := fn.Params
	if len(requiresGrad) > 0 {
		selected = make([]*ir.VarDecl, len(requiresGrad))
		for i, name := range requiresGrad {
			param := fn.Param(name)
			if param == nil {
				return nil, passErrorf(ErrNotParameter, nil,
					"requires-gradient input %q is not a parameter of %q", name, fnName)
			}
			selected[i] = param
		}
	}
	for _, param := range selected {
		if !types.IsNestedTensor(param.Typ) {
			return nil, passErrorf(ErrNotDifferentiable, param,
				"parameter %s has non-differentiable type %s", param, param.Typ)
		}
	}

	p := &pass{
		b:       builder.New(),
		adjVar:  make(map[*ir.VarDecl]*ir.VarDecl),
		adjExpr: make(map[*ir.VarDecl]ir.Expr),
		intern:  make(internTable),
		zeros:   newZeroTracker(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().
		Str("pass", "gradient").
		Str("fn", fnName).
		Str("invocation", uuid.NewString()).
		Logger()

	adjointFn, err := p.run(fn, selected)
	if err != nil {
		return nil, err
	}
	return mod.WithFunction(adjointFn), nil
}

// run builds the adjoint function. The forward block is re-emitted with
// fresh identities, the target is seeded, the bindings are walked in
// reverse, and the input adjoints are shaped into the return value.
func (p *pass) run(fn *ir.Function, selected []*ir.VarDecl) (*ir.Function, error) {
	p.b.BeginBlock()

	cl := newCloner(p.b)
	params := cl.cloneParams(fn.Params)
	bindings, ret, err := cl.cloneBlock(fn.Body)
	if err != nil {
		return nil, err
	}

	// The terminator must reference a scalar-tensor variable: the target.
	retVar, ok := ret.(*ir.Var)
	if !ok {
		return nil, passErrorf(ErrTargetNotVariable, fn.Body.Ret,
			"dataflow block terminator is not a variable reference")
	}
	target := retVar.Decl
	targetType, ok := target.Typ.(*types.TensorType)
	if !ok || !targetType.IsScalar() {
		return nil, passErrorf(ErrTargetNotScalar, retVar,
			"gradient target %s must be a scalar tensor, got %s", retVar, target.Typ)
	}

	// Seed d(target)/d(target) = ones(()). The seed is not a structural
	// zero.
	p.adjExpr[target] = onesOf(targetType)
	p.log.Debug().Str("target", target.Name).Msg("seeded target adjoint")

	if err := p.reverseWalk(bindings); err != nil {
		return nil, err
	}

	adjRefs, err := p.finalizeInputs(selected, cl.varMap)
	if err != nil {
		return nil, err
	}

	retExpr := ir.NewTuple(retVar, ir.NewTuple(adjRefs...))
	block, err := builder.Normalize(p.b.EndBlock(retExpr))
	if err != nil {
		return nil, err
	}

	adjTypes := make([]types.Type, len(selected))
	for i, param := range selected {
		adjTypes[i] = param.Typ
	}
	retType := types.NewTupleType(fn.RetType, types.NewTupleType(adjTypes...))

	return ir.NewFunction(fn.Name+AdjointSuffix, params, block, retType), nil
}

// finalizeInputs materializes the adjoint of every selected input.
// Touched inputs are emitted first in input order; inputs whose adjoint
// was never touched receive a default structural-zero binding afterward.
// The returned references follow the input order.
func (p *pass) finalizeInputs(selected []*ir.VarDecl, varMap map[*ir.VarDecl]*ir.VarDecl) ([]ir.Expr, error) {
	refs := make([]ir.Expr, len(selected))
	untouched := make([]int, 0, len(selected))

	for i, orig := range selected {
		param := varMap[orig]
		adj := p.ensureAdjVar(param)
		acc, ok := p.adjExpr[param]
		if !ok {
			untouched = append(untouched, i)
			continue
		}
		eff, err := p.bindAndEmit(adj, acc)
		if err != nil {
			return nil, err
		}
		refs[i] = ir.NewVar(eff)
	}

	for _, i := range untouched {
		param := varMap[selected[i]]
		zero, err := p.zeros.buildEmptyNestedTuple(param.Typ)
		if err != nil {
			return nil, err
		}
		eff, err := p.bindAndEmit(p.ensureAdjVar(param), zero)
		if err != nil {
			return nil, err
		}
		p.log.Debug().Str("param", param.Name).Msg("default zero adjoint for unused input")
		refs[i] = ir.NewVar(eff)
	}
	return refs, nil
}

// ensureAdjVar returns the adjoint variable of v, creating it on first
// use. The adjoint has the same structural type as v, the name
// v.Name+"_adjoint", and mirrors v's scoping kind; parameter adjoints
// escape the block as outputs.
func (p *pass) ensureAdjVar(v *ir.VarDecl) *ir.VarDecl {
	if adj, ok := p.adjVar[v]; ok {
		return adj
	}
	kind := ir.KindIntermediate
	if v.Kind == ir.KindOutput || v.Kind == ir.KindParameter {
		kind = ir.KindOutput
	}
	adj := p.b.NewVar(v.Name+AdjointSuffix, v.Typ, kind)
	p.adjVar[v] = adj
	return adj
}

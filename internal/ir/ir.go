// Package ir defines the expression nodes, bindings, functions, and
// modules of the tensor IR.
//
// A function body is a single dataflow block: a linear sequence of variable
// bindings terminated by a single value expression, free of control flow.
// Expression nodes are immutable once constructed except for type stamping;
// node pointers serve as identities, and passes key tables by pointer.
package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/tensir/tensir/internal/lexer"
	"github.com/tensir/tensir/internal/types"
)

// Node is the base interface for all IR nodes.
type Node interface {
	// String returns a compact representation of the node for debugging
	// and testing.
	String() string

	// Pos returns the node's position in the source text, or the zero
	// position for synthesized nodes.
	Pos() lexer.Position
}

// Expr represents any node that produces a value.
type Expr interface {
	Node

	// Type returns the structural type of the expression, or nil if the
	// type has not been inferred or stamped yet.
	Type() types.Type

	exprNode()
}

// VarKind distinguishes how a variable is scoped.
type VarKind int

const (
	// KindIntermediate variables are visible only within their dataflow
	// block.
	KindIntermediate VarKind = iota

	// KindOutput variables escape the block and become part of the
	// block's result.
	KindOutput

	// KindParameter variables are function inputs.
	KindParameter
)

// String returns a short tag for the kind.
func (k VarKind) String() string {
	switch k {
	case KindIntermediate:
		return "intermediate"
	case KindOutput:
		return "output"
	case KindParameter:
		return "parameter"
	default:
		return "varkind(" + strconv.Itoa(int(k)) + ")"
	}
}

var varIDCounter atomic.Uint64

// VarDecl is the identity of a variable: a unique id, a display name, a
// structural type, and a scoping kind. Two VarDecls with the same name are
// distinct variables; identity is the pointer (and ID).
type VarDecl struct {
	Name string
	Typ  types.Type
	ID   uint64
	Kind VarKind
}

// NewVarDecl creates a fresh variable identity.
func NewVarDecl(name string, typ types.Type, kind VarKind) *VarDecl {
	return &VarDecl{
		ID:   varIDCounter.Add(1),
		Name: name,
		Typ:  typ,
		Kind: kind,
	}
}

// String returns the variable's display name with its sigil.
func (v *VarDecl) String() string { return "%" + v.Name }

// Var is a reference to a variable.
type Var struct {
	Decl *VarDecl
	Span lexer.Position
}

// NewVar creates a reference to decl with no source position.
func NewVar(decl *VarDecl) *Var { return &Var{Decl: decl} }

func (v *Var) exprNode()           {}
func (v *Var) String() string      { return v.Decl.String() }
func (v *Var) Pos() lexer.Position { return v.Span }
func (v *Var) Type() types.Type    { return v.Decl.Typ }

// Tuple is a tuple construction expression.
type Tuple struct {
	Fields []Expr
	Typ    types.Type
	Span   lexer.Position
}

// NewTuple creates a tuple construction from its fields, stamping its type
// when every field is typed.
func NewTuple(fields ...Expr) *Tuple {
	t := &Tuple{Fields: fields}
	fieldTypes := make([]types.Type, len(fields))
	for i, f := range fields {
		if f.Type() == nil {
			return t
		}
		fieldTypes[i] = f.Type()
	}
	t.Typ = &types.TupleType{Fields: fieldTypes}
	return t
}

func (t *Tuple) exprNode()           {}
func (t *Tuple) Pos() lexer.Position { return t.Span }
func (t *Tuple) Type() types.Type    { return t.Typ }

func (t *Tuple) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	for i, f := range t.Fields {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(f.String())
	}
	out.WriteString(")")
	return out.String()
}

// TupleGet projects a field out of a tuple-typed expression.
type TupleGet struct {
	Tuple Expr
	Typ   types.Type
	Index int
	Span  lexer.Position
}

// NewTupleGet creates a projection of field index from tup, stamping its
// type when the tuple's field types are known.
func NewTupleGet(tup Expr, index int) *TupleGet {
	tg := &TupleGet{Tuple: tup, Index: index}
	if tt, ok := tup.Type().(*types.TupleType); ok && index < len(tt.Fields) {
		tg.Typ = tt.Fields[index]
	}
	return tg
}

func (tg *TupleGet) exprNode()           {}
func (tg *TupleGet) Pos() lexer.Position { return tg.Span }
func (tg *TupleGet) Type() types.Type    { return tg.Typ }

func (tg *TupleGet) String() string {
	return tg.Tuple.String() + "." + strconv.Itoa(tg.Index)
}

// Call applies a named operator to argument expressions. Attrs carries
// operator attributes as literal strings (e.g. axis lists); it is nil for
// most calls.
type Call struct {
	Op    string
	Args  []Expr
	Attrs map[string]string
	Typ   types.Type
	Span  lexer.Position
}

// NewCall creates an operator call. The type is stamped later, by the
// builder's normalize step or explicitly by a pass.
func NewCall(op string, args ...Expr) *Call {
	return &Call{Op: op, Args: args}
}

func (c *Call) exprNode()           {}
func (c *Call) Pos() lexer.Position { return c.Span }
func (c *Call) Type() types.Type    { return c.Typ }

func (c *Call) String() string {
	var out bytes.Buffer
	out.WriteString(c.Op)
	out.WriteString("(")
	for i, a := range c.Args {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(a.String())
	}
	out.WriteString(")")
	return out.String()
}

// ShapeLit is a literal shape value, used as the shape operand of
// tensor-creating operators such as zeros and ones.
type ShapeLit struct {
	Dims []int64
	Span lexer.Position
}

// NewShapeLit creates a shape literal.
func NewShapeLit(dims []int64) *ShapeLit {
	return &ShapeLit{Dims: dims}
}

func (s *ShapeLit) exprNode()           {}
func (s *ShapeLit) Pos() lexer.Position { return s.Span }
func (s *ShapeLit) Type() types.Type    { return &types.ShapeType{} }

func (s *ShapeLit) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	for i, d := range s.Dims {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(strconv.FormatInt(d, 10))
	}
	out.WriteString(")")
	return out.String()
}

// Binding associates a variable with the expression that defines it.
// Output bindings escape the dataflow block; all others are intermediates.
type Binding struct {
	Var   *VarDecl
	Value Expr
}

// Output reports whether the binding's variable escapes the block.
func (b *Binding) Output() bool { return b.Var.Kind == KindOutput }

func (b *Binding) String() string {
	prefix := ""
	if b.Output() {
		prefix = "out "
	}
	return fmt.Sprintf("%s%s = %s", prefix, b.Var, b.Value)
}

// DataflowBlock is a linear sequence of bindings terminated by a single
// return expression.
type DataflowBlock struct {
	Bindings []*Binding
	Ret      Expr
	Span     lexer.Position
}

func (d *DataflowBlock) exprNode()           {}
func (d *DataflowBlock) Pos() lexer.Position { return d.Span }

// Type returns the type of the block's return expression.
func (d *DataflowBlock) Type() types.Type {
	if d.Ret == nil {
		return nil
	}
	return d.Ret.Type()
}

func (d *DataflowBlock) String() string {
	var out bytes.Buffer
	out.WriteString("block { ")
	for _, b := range d.Bindings {
		out.WriteString(b.String())
		out.WriteString("; ")
	}
	out.WriteString("return ")
	if d.Ret != nil {
		out.WriteString(d.Ret.String())
	}
	out.WriteString(" }")
	return out.String()
}

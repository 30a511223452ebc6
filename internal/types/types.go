// Package types defines the structural type system for the tensor IR.
//
// A structural type describes the shape of a value flowing through a
// dataflow block: a tensor with (possibly partially known) rank, element
// type and shape, a tuple of further structural types, a shape value, or a
// primitive scalar. Types are compared structurally via Equals.
package types

import (
	"fmt"
	"strings"
)

// DType identifies the element type of a tensor or primitive value.
type DType int

const (
	DTypeUnknown DType = iota
	Float32
	Float64
	Int32
	Int64
	Bool
)

var dtypeNames = map[DType]string{
	DTypeUnknown: "unknown",
	Float32:      "float32",
	Float64:      "float64",
	Int32:        "int32",
	Int64:        "int64",
	Bool:         "bool",
}

// String returns the canonical spelling of the dtype as it appears in the
// textual IR.
func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// DTypeFromString parses a dtype name. The boolean result reports whether
// the name is a known dtype.
func DTypeFromString(name string) (DType, bool) {
	for d, n := range dtypeNames {
		if d != DTypeUnknown && n == name {
			return d, true
		}
	}
	return DTypeUnknown, false
}

// Type is the interface implemented by all structural types.
type Type interface {
	// String returns the textual-IR spelling of the type.
	String() string

	// TypeKind returns a short tag identifying the variant, for
	// diagnostics.
	TypeKind() string

	// Equals reports structural equality with another type.
	Equals(other Type) bool
}

// TensorType describes a tensor value. NDim < 0 means the rank is unknown;
// a nil Shape means the shape is unknown; DTypeUnknown means the element
// type is unknown. A scalar is a tensor of rank zero.
type TensorType struct {
	Shape []int64
	NDim  int
	DType DType
}

// NewTensorType builds a tensor type from a concrete shape.
func NewTensorType(shape []int64, dtype DType) *TensorType {
	return &TensorType{Shape: shape, NDim: len(shape), DType: dtype}
}

// ScalarType builds the rank-zero tensor type used for loss values.
func ScalarType(dtype DType) *TensorType {
	return &TensorType{Shape: []int64{}, NDim: 0, DType: dtype}
}

func (t *TensorType) TypeKind() string { return "TENSOR" }

func (t *TensorType) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	switch {
	case t.Shape != nil:
		sb.WriteString("(")
		for i, dim := range t.Shape {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%d", dim)
		}
		sb.WriteString(")")
	case t.NDim >= 0:
		fmt.Fprintf(&sb, "ndim=%d", t.NDim)
	default:
		sb.WriteString("?")
	}
	sb.WriteString(", ")
	sb.WriteString(t.DType.String())
	sb.WriteString("]")
	return sb.String()
}

func (t *TensorType) Equals(other Type) bool {
	o, ok := other.(*TensorType)
	if !ok {
		return false
	}
	if t.NDim != o.NDim || t.DType != o.DType {
		return false
	}
	if (t.Shape == nil) != (o.Shape == nil) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// IsScalar reports whether the tensor has rank zero.
func (t *TensorType) IsScalar() bool { return t.NDim == 0 }

// TupleType describes a heterogeneous product of structural types. Tuples
// nest arbitrarily.
type TupleType struct {
	Fields []Type
}

// NewTupleType builds a tuple type from its field types.
func NewTupleType(fields ...Type) *TupleType {
	return &TupleType{Fields: fields}
}

func (t *TupleType) TypeKind() string { return "TUPLE" }

func (t *TupleType) String() string {
	var sb strings.Builder
	sb.WriteString("Tuple[")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.String())
	}
	sb.WriteString("]")
	return sb.String()
}

func (t *TupleType) Equals(other Type) bool {
	o, ok := other.(*TupleType)
	if !ok || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i, f := range t.Fields {
		if !f.Equals(o.Fields[i]) {
			return false
		}
	}
	return true
}

// ShapeType describes a shape value. Shape values are not differentiable
// but may appear as operands of shape-consuming operators.
type ShapeType struct{}

func (t *ShapeType) TypeKind() string { return "SHAPE" }
func (t *ShapeType) String() string   { return "Shape" }

func (t *ShapeType) Equals(other Type) bool {
	_, ok := other.(*ShapeType)
	return ok
}

// PrimType describes a primitive scalar value (a bare number, not a
// rank-zero tensor). Primitive values are not differentiable.
type PrimType struct {
	DType DType
}

func (t *PrimType) TypeKind() string { return "PRIM" }
func (t *PrimType) String() string   { return "Prim[" + t.DType.String() + "]" }

func (t *PrimType) Equals(other Type) bool {
	o, ok := other.(*PrimType)
	return ok && t.DType == o.DType
}

// IsNestedTensor reports whether t is a tensor type or a tuple recursively
// composed of nested tensor types. Only nested-tensor-typed values admit
// adjoints.
func IsNestedTensor(t Type) bool {
	switch t := t.(type) {
	case *TensorType:
		return true
	case *TupleType:
		for _, f := range t.Fields {
			if !IsNestedTensor(f) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsScalarTensor reports whether t is a tensor type of rank zero.
func IsScalarTensor(t Type) bool {
	tt, ok := t.(*TensorType)
	return ok && tt.IsScalar()
}

package types

import "testing"

func TestTypeString(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		expected string
	}{
		{"scalar", ScalarType(Float32), "Tensor[(), float32]"},
		{"matrix", NewTensorType([]int64{5, 5}, Float32), "Tensor[(5, 5), float32]"},
		{"vector f64", NewTensorType([]int64{3}, Float64), "Tensor[(3), float64]"},
		{"unknown shape", &TensorType{NDim: 2, DType: Float32}, "Tensor[ndim=2, float32]"},
		{"unknown rank", &TensorType{NDim: -1, DType: Float32}, "Tensor[?, float32]"},
		{"shape", &ShapeType{}, "Shape"},
		{"prim", &PrimType{DType: Int64}, "Prim[int64]"},
		{
			"tuple",
			NewTupleType(NewTensorType([]int64{2}, Float32), &ShapeType{}),
			"Tuple[Tensor[(2), float32], Shape]",
		},
		{
			"nested tuple",
			NewTupleType(NewTupleType(ScalarType(Float32))),
			"Tuple[Tuple[Tensor[(), float32]]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTypeEquals(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Type
		expected bool
	}{
		{"same tensor", NewTensorType([]int64{5, 5}, Float32), NewTensorType([]int64{5, 5}, Float32), true},
		{"different shape", NewTensorType([]int64{5, 5}, Float32), NewTensorType([]int64{5, 4}, Float32), false},
		{"different dtype", NewTensorType([]int64{5}, Float32), NewTensorType([]int64{5}, Float64), false},
		{"known vs unknown shape", NewTensorType([]int64{5}, Float32), &TensorType{NDim: 1, DType: Float32}, false},
		{"scalar vs scalar", ScalarType(Float32), ScalarType(Float32), true},
		{"tensor vs shape", ScalarType(Float32), &ShapeType{}, false},
		{"shape vs shape", &ShapeType{}, &ShapeType{}, true},
		{"prim same", &PrimType{DType: Int32}, &PrimType{DType: Int32}, true},
		{"prim different", &PrimType{DType: Int32}, &PrimType{DType: Int64}, false},
		{
			"tuple same",
			NewTupleType(ScalarType(Float32), NewTensorType([]int64{2}, Float32)),
			NewTupleType(ScalarType(Float32), NewTensorType([]int64{2}, Float32)),
			true,
		},
		{
			"tuple arity",
			NewTupleType(ScalarType(Float32)),
			NewTupleType(ScalarType(Float32), ScalarType(Float32)),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equals(tt.b); got != tt.expected {
				t.Errorf("Equals() = %v, want %v", got, tt.expected)
			}
			if got := tt.b.Equals(tt.a); got != tt.expected {
				t.Errorf("Equals() reversed = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsNestedTensor(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		expected bool
	}{
		{"tensor", NewTensorType([]int64{5}, Float32), true},
		{"scalar", ScalarType(Float32), true},
		{"shape", &ShapeType{}, false},
		{"prim", &PrimType{DType: Float32}, false},
		{"tuple of tensors", NewTupleType(ScalarType(Float32), NewTensorType([]int64{2}, Float32)), true},
		{"tuple with shape", NewTupleType(ScalarType(Float32), &ShapeType{}), false},
		{"empty tuple", NewTupleType(), true},
		{
			"deep nesting",
			NewTupleType(NewTupleType(ScalarType(Float32)), ScalarType(Float32)),
			true,
		},
		{
			"deep nesting with prim",
			NewTupleType(NewTupleType(&PrimType{DType: Float32})),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNestedTensor(tt.typ); got != tt.expected {
				t.Errorf("IsNestedTensor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsScalarTensor(t *testing.T) {
	if !IsScalarTensor(ScalarType(Float32)) {
		t.Error("scalar tensor not recognized")
	}
	if IsScalarTensor(NewTensorType([]int64{1}, Float32)) {
		t.Error("rank-1 tensor reported as scalar")
	}
	if IsScalarTensor(&ShapeType{}) {
		t.Error("shape reported as scalar tensor")
	}
}

func TestDTypeFromString(t *testing.T) {
	for _, name := range []string{"float32", "float64", "int32", "int64", "bool"} {
		d, ok := DTypeFromString(name)
		if !ok {
			t.Fatalf("DTypeFromString(%q) not recognized", name)
		}
		if d.String() != name {
			t.Errorf("round trip %q = %q", name, d.String())
		}
	}
	if _, ok := DTypeFromString("complex64"); ok {
		t.Error("unknown dtype accepted")
	}
	if _, ok := DTypeFromString("unknown"); ok {
		t.Error("the unknown sentinel must not parse")
	}
}

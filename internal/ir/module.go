package ir

import (
	"bytes"
	"fmt"

	"github.com/tensir/tensir/internal/lexer"
	"github.com/tensir/tensir/internal/types"
)

// AttrGlobalSymbol is the function attribute carrying the linkage name of
// a function.
const AttrGlobalSymbol = "global_symbol"

// Function is a named function with a single dataflow block body.
type Function struct {
	Name    string
	Params  []*VarDecl
	Body    *DataflowBlock
	RetType types.Type
	Attrs   map[string]string
	Span    lexer.Position
}

// NewFunction creates a function and stamps its global_symbol attribute
// with the function's name.
func NewFunction(name string, params []*VarDecl, body *DataflowBlock, retType types.Type) *Function {
	return &Function{
		Name:    name,
		Params:  params,
		Body:    body,
		RetType: retType,
		Attrs:   map[string]string{AttrGlobalSymbol: name},
	}
}

// Param returns the parameter with the given name, or nil.
func (f *Function) Param(name string) *VarDecl {
	for _, p := range f.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (f *Function) String() string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "fn @%s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			out.WriteString(", ")
		}
		fmt.Fprintf(&out, "%s: %s", p, p.Typ)
	}
	out.WriteString(")")
	if f.RetType != nil {
		fmt.Fprintf(&out, " -> %s", f.RetType)
	}
	if f.Body != nil {
		out.WriteString(" ")
		out.WriteString(f.Body.String())
	}
	return out.String()
}

// Module is an ordered collection of named functions. Modules are treated
// as immutable by passes: WithFunction returns a new module sharing every
// existing function with the receiver (copy-on-write).
type Module struct {
	names []string
	funcs map[string]*Function
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{funcs: make(map[string]*Function)}
}

// Function returns the function bound to name, or nil.
func (m *Module) Function(name string) *Function {
	return m.funcs[name]
}

// Functions returns the module's functions in insertion order.
func (m *Module) Functions() []*Function {
	fns := make([]*Function, 0, len(m.names))
	for _, name := range m.names {
		fns = append(fns, m.funcs[name])
	}
	return fns
}

// Len returns the number of functions in the module.
func (m *Module) Len() int { return len(m.names) }

// Add binds f under its name, replacing any previous binding. Add mutates
// the receiver and is intended for module construction (parser, tests);
// passes use WithFunction instead.
func (m *Module) Add(f *Function) {
	if _, exists := m.funcs[f.Name]; !exists {
		m.names = append(m.names, f.Name)
	}
	m.funcs[f.Name] = f
}

// WithFunction returns a new module containing every function of the
// receiver plus f. The receiver is not modified; existing functions are
// shared by reference.
func (m *Module) WithFunction(f *Function) *Module {
	clone := &Module{
		names: make([]string, len(m.names)),
		funcs: make(map[string]*Function, len(m.funcs)+1),
	}
	copy(clone.names, m.names)
	for name, fn := range m.funcs {
		clone.funcs[name] = fn
	}
	clone.Add(f)
	return clone
}

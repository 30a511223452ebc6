// Package printer renders IR modules back to their canonical textual
// form. Without ShowTypes the output round-trips through the parser; the
// binding type annotations that ShowTypes adds are not accepted by the
// parser.
package printer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tensir/tensir/internal/ir"
)

// Printer renders modules and functions with a configurable style.
type Printer struct {
	style Style
}

// New creates a Printer with the given style.
func New(style Style) *Printer {
	if style.Indent <= 0 {
		style.Indent = DefaultStyle.Indent
	}
	return &Printer{style: style}
}

// Print renders a whole module, functions separated by blank lines.
func (p *Printer) Print(mod *ir.Module) string {
	var sb strings.Builder
	for i, fn := range mod.Functions() {
		if i > 0 {
			sb.WriteString("\n")
		}
		p.printFunction(&sb, fn)
	}
	return sb.String()
}

// PrintFunction renders a single function.
func (p *Printer) PrintFunction(fn *ir.Function) string {
	var sb strings.Builder
	p.printFunction(&sb, fn)
	return sb.String()
}

func (p *Printer) printFunction(sb *strings.Builder, fn *ir.Function) {
	fmt.Fprintf(sb, "fn @%s(", fn.Name)
	for i, param := range fn.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%%%s: %s", param.Name, param.Typ)
	}
	sb.WriteString(")")
	if fn.RetType != nil {
		fmt.Fprintf(sb, " -> %s", fn.RetType)
	}
	sb.WriteString(" {\n")
	p.printBlock(sb, fn.Body, 1)
	sb.WriteString("}\n")
}

func (p *Printer) printBlock(sb *strings.Builder, block *ir.DataflowBlock, depth int) {
	indent := p.indent(depth)
	inner := p.indent(depth + 1)
	sb.WriteString(indent)
	sb.WriteString("block {\n")
	for _, bind := range block.Bindings {
		sb.WriteString(inner)
		if bind.Output() {
			sb.WriteString("out ")
		}
		sb.WriteString("%")
		sb.WriteString(bind.Var.Name)
		if p.style.ShowTypes && bind.Var.Typ != nil {
			fmt.Fprintf(sb, ": %s", bind.Var.Typ)
		}
		sb.WriteString(" = ")
		p.printExpr(sb, bind.Value)
		sb.WriteString("\n")
	}
	if block.Ret != nil {
		sb.WriteString(inner)
		sb.WriteString("return ")
		p.printExpr(sb, block.Ret)
		sb.WriteString("\n")
	}
	sb.WriteString(indent)
	sb.WriteString("}\n")
}

func (p *Printer) printExpr(sb *strings.Builder, e ir.Expr) {
	switch e := e.(type) {
	case *ir.Var:
		sb.WriteString("%")
		sb.WriteString(e.Decl.Name)

	case *ir.Tuple:
		sb.WriteString("(")
		for i, f := range e.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.printExpr(sb, f)
		}
		sb.WriteString(")")

	case *ir.TupleGet:
		p.printExpr(sb, e.Tuple)
		fmt.Fprintf(sb, ".%d", e.Index)

	case *ir.ShapeLit:
		sb.WriteString("(")
		for i, d := range e.Dims {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%d", d)
		}
		sb.WriteString(")")

	case *ir.Call:
		sb.WriteString(e.Op)
		sb.WriteString("(")
		for i, a := range e.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.printExpr(sb, a)
		}
		sb.WriteString(")")
		p.printAttrs(sb, e.Attrs)

	default:
		// Fall back to the node's debug form.
		sb.WriteString(e.String())
	}
}

// printAttrs renders call attributes in a stable key order.
func (p *Printer) printAttrs(sb *strings.Builder, attrs map[string]string) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString(" {")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s = %q", k, attrs[k])
	}
	sb.WriteString("}")
}

func (p *Printer) indent(depth int) string {
	return strings.Repeat(" ", depth*p.style.Indent)
}

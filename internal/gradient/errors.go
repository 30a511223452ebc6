package gradient

import "fmt"

// ErrorKind classifies a gradient pass failure.
type ErrorKind string

const (
	ErrFunctionNotFound   ErrorKind = "function_not_found"
	ErrNotParameter       ErrorKind = "not_parameter"
	ErrTargetNotVariable  ErrorKind = "target_not_variable"
	ErrTargetNotScalar    ErrorKind = "target_not_scalar"
	ErrMissingBody        ErrorKind = "missing_body"
	ErrUnsupportedBinding ErrorKind = "unsupported_binding"
	ErrMissingGradient    ErrorKind = "missing_gradient"
	ErrArityMismatch      ErrorKind = "arity_mismatch"
	ErrStructural         ErrorKind = "structural"
	ErrNotDifferentiable  ErrorKind = "not_differentiable"
)

// PassError is a fatal gradient pass error. It identifies the offending IR
// node (as its debug string) alongside the classification and message. The
// pass produces no partial results: when a PassError is returned the input
// module is unchanged.
type PassError struct {
	Kind    ErrorKind
	Message string
	Node    string
}

// Error implements the error interface.
func (e *PassError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("gradient: %s", e.Message)
	}
	return fmt.Sprintf("gradient: %s (at %s)", e.Message, e.Node)
}

// passErrorf builds a PassError for the given node; node may be nil.
func passErrorf(kind ErrorKind, node fmt.Stringer, format string, args ...any) *PassError {
	e := &PassError{Kind: kind, Message: fmt.Sprintf(format, args...)}
	if node != nil {
		e.Node = node.String()
	}
	return e
}

package tmpl

import (
	"fmt"

	"github.com/condaforge/rbcore/pkg/span"
)

// Error wraps a template rendering failure with the source span it
// occurred at, so the stage-0/stage-1 evaluators can surface a diagnostic
// that points back at the recipe YAML rather than a bare Go error string.
type Error struct {
	Span span.Span
	Expr string
	Err  error
}

func (e *Error) Error() string {
	if e.Span.Zero() {
		return fmt.Sprintf("%s: %v", e.Expr, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Span, e.Expr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WithSpan attaches a span to an error returned by Render/EvalBool,
// producing an *Error suitable for accumulation alongside stage-0 parse
// errors.
func WithSpan(sp span.Span, expr string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Span: sp, Expr: expr, Err: err}
}

// Package span carries source-location metadata through the recipe pipeline
// so that diagnostics for a rendered value can always point back at the
// original YAML byte range, even after the value has been rendered to a
// concrete Go type.
package span

import "fmt"

// Span is a half-open byte range within a named source file.
type Span struct {
	FileID string
	Start  int
	End    int
}

// Zero reports whether the span carries no location information.
func (s Span) Zero() bool {
	return s.FileID == "" && s.Start == 0 && s.End == 0
}

func (s Span) String() string {
	if s.Zero() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d-%d", s.FileID, s.Start, s.End)
}

// Spanned pairs a value with the span of the source text it was decoded
// from.
type Spanned[T any] struct {
	Value T
	Span  Span
}

// NewSpanned constructs a Spanned value.
func NewSpanned[T any](value T, sp Span) Spanned[T] {
	return Spanned[T]{Value: value, Span: sp}
}

// SpannedString is a scalar that has not yet been classified as literal or
// template; stage-0 parsing promotes it into a Value[string].
type SpannedString struct {
	Raw  string
	Span Span
}

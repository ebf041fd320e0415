// Package recipe implements the stage-0 recipe model: the raw AST produced
// by parsing a recipe YAML document, before any variant has been selected.
// Scalars are not yet concrete values; they are either literal (Concrete)
// or template source text (Template) awaiting stage-1 rendering.
package recipe

import (
	"github.com/condaforge/rbcore/pkg/span"
	"github.com/condaforge/rbcore/pkg/tmpl"
	"gopkg.in/yaml.v3"
)

// ValueKind discriminates the two branches of Value[T].
type ValueKind int

const (
	// ValueConcrete holds a fully decoded T with no `${{ }}` substitution.
	ValueConcrete ValueKind = iota
	// ValueTemplate holds raw source text that must be rendered and
	// re-decoded into T once a variant is selected (stage-1).
	ValueTemplate
)

// Value is a scalar (or small structure) that may or may not require
// template rendering before it has a concrete value of type T.
type Value[T any] struct {
	Kind     ValueKind
	Concrete T
	Template string
	Span     span.Span
}

// NewConcrete wraps an already-concrete value.
func NewConcrete[T any](v T, sp span.Span) Value[T] {
	return Value[T]{Kind: ValueConcrete, Concrete: v, Span: sp}
}

// NewTemplate wraps raw template source awaiting stage-1 rendering.
func NewTemplate[T any](raw string, sp span.Span) Value[T] {
	return Value[T]{Kind: ValueTemplate, Template: raw, Span: sp}
}

// IsTemplate reports whether v still needs stage-1 rendering.
func (v Value[T]) IsTemplate() bool {
	return v.Kind == ValueTemplate
}

// UnmarshalYAML implements yaml.Unmarshaler for generic recursive decode
// sites (nested test/about structs) that don't thread a fileID through;
// Span.FileID is left empty there. Top-level sections use
// decodeValueNode directly to get a populated FileID.
func (v *Value[T]) UnmarshalYAML(node *yaml.Node) error {
	sp := spanFromNode("", node)
	if node.Kind == yaml.ScalarNode && tmpl.HasTemplate(node.Value) {
		v.Kind = ValueTemplate
		v.Template = node.Value
		v.Span = sp
		return nil
	}
	var concrete T
	if err := node.Decode(&concrete); err != nil {
		return err
	}
	v.Kind = ValueConcrete
	v.Concrete = concrete
	v.Span = sp
	return nil
}

package recipe

import (
	"github.com/condaforge/rbcore/pkg/span"
	"gopkg.in/yaml.v3"
)

// ItemKind discriminates the two branches of Item[T].
type ItemKind int

const (
	// ItemPlain wraps a single Value[T].
	ItemPlain ItemKind = iota
	// ItemConditional wraps an if/then/else block that expands to zero or
	// more T during stage-1, once a branch is selected.
	ItemConditional
)

// Item is one entry of a ConditionalList[T]: either a plain value or a
// conditional block. Recipe list fields (requirements, sources, tests, ...)
// are ConditionalList[T] so that `if:`/`then:`/`else:` can appear inline
// alongside plain entries.
type Item[T any] struct {
	Kind  ItemKind
	Value Value[T]
	Cond  *Conditional[T]
}

// Conditional is an `if: <bool expr> then: [...] else: [...]` block. Then
// and Else are themselves ConditionalList[T] so conditionals can nest.
type Conditional[T any] struct {
	If   string
	Then ConditionalList[T]
	Else ConditionalList[T]
	Span span.Span
}

// ConditionalList is the recipe-wide list shape: a flat sequence of Items
// that may mix plain values and conditional blocks.
type ConditionalList[T any] []Item[T]

// PlainItem wraps a concrete value, useful when building a
// ConditionalList[T] programmatically (e.g. in tests).
func PlainItem[T any](v Value[T]) Item[T] {
	return Item[T]{Kind: ItemPlain, Value: v}
}

// ConditionalItem wraps an if/then/else block.
func ConditionalItem[T any](c *Conditional[T]) Item[T] {
	return Item[T]{Kind: ItemConditional, Cond: c}
}

// UnmarshalYAML implements yaml.Unmarshaler for nested recursive decode
// sites; see Value[T].UnmarshalYAML for the FileID caveat.
func (c *ConditionalList[T]) UnmarshalYAML(node *yaml.Node) error {
	list, errs := decodeConditionalList[T](node, "")
	if len(errs) > 0 {
		return errs[0]
	}
	*c = list
	return nil
}

// IncludeExclude selects a base set of T (typically file globs) with an
// include list and an exclude list; exclude always wins on overlap.
type IncludeExclude[T any] struct {
	Include ConditionalList[T]
	Exclude ConditionalList[T]
}

// UnmarshalYAML accepts either a bare sequence (shorthand for "all of
// these are includes") or a mapping with include:/exclude: lists, the same
// shapes decodeIncludeExclude accepts.
func (ie *IncludeExclude[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return ie.Include.UnmarshalYAML(node)
	}
	if n := mapGet(node, "include"); n != nil {
		if err := ie.Include.UnmarshalYAML(n); err != nil {
			return err
		}
	}
	if n := mapGet(node, "exclude"); n != nil {
		return ie.Exclude.UnmarshalYAML(n)
	}
	return nil
}

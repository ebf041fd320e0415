package recipe

import (
	"github.com/condaforge/rbcore/pkg/span"
	"github.com/condaforge/rbcore/pkg/tmpl"
	"gopkg.in/yaml.v3"
)

// spanFromNode approximates a Span from a yaml.Node. yaml.v3 exposes
// Line/Column, not byte offsets, so Start/End here carry line/column
// rather than a byte range; good enough to point a diagnostic at a
// location in the source file, which is all stage-0/stage-1 errors need.
func spanFromNode(fileID string, node *yaml.Node) span.Span {
	if node == nil {
		return span.Span{}
	}
	return span.Span{FileID: fileID, Start: node.Line, End: node.Column}
}

// decodeValueNode is the shared UnmarshalYAML body for Value[T]: any
// scalar string containing a `${{ }}` substitution becomes a Template;
// everything else decodes straight into T as Concrete.
func decodeValueNode[T any](node *yaml.Node, fileID string) (Value[T], error) {
	sp := spanFromNode(fileID, node)
	if node.Kind == yaml.ScalarNode && tmpl.HasTemplate(node.Value) {
		return Value[T]{Kind: ValueTemplate, Template: node.Value, Span: sp}, nil
	}
	var concrete T
	if err := node.Decode(&concrete); err != nil {
		return Value[T]{}, err
	}
	return Value[T]{Kind: ValueConcrete, Concrete: concrete, Span: sp}, nil
}

// UnmarshalYAMLWithFile decodes node into a Value[T] whose span carries
// fileID, since yaml.v3's UnmarshalYAML(node) hook has no room for extra
// context. Nothing in this package calls it: Value[T] fields decoded
// through plain `yaml:` struct tags go through Value[T].UnmarshalYAML,
// which leaves the span's FileID empty.
func UnmarshalYAMLWithFile[T any](node *yaml.Node, fileID string) (Value[T], error) {
	return decodeValueNode[T](node, fileID)
}

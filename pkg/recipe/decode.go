package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeConditionalList walks a YAML sequence node, producing a
// ConditionalList[T]. Each sequence element is either a plain scalar/
// mapping decodable into T, or a mapping with `if`/`then`/`else` keys.
// Accumulates rather than stops at the first error, per the accumulation
// requirement on stage-0 parsing.
func decodeConditionalList[T any](node *yaml.Node, fileID string) (ConditionalList[T], []error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		// A bare scalar/mapping is sugar for a single-element list.
		item, errs := decodeListItem[T](node, fileID)
		if len(errs) > 0 {
			return nil, errs
		}
		return ConditionalList[T]{item}, nil
	}
	var out ConditionalList[T]
	var errs []error
	for _, child := range node.Content {
		item, ierrs := decodeListItem[T](child, fileID)
		errs = append(errs, ierrs...)
		if len(ierrs) == 0 {
			out = append(out, item)
		}
	}
	return out, errs
}

func decodeListItem[T any](node *yaml.Node, fileID string) (Item[T], []error) {
	if isConditionalMapping(node) {
		cond, errs := decodeConditional[T](node, fileID)
		if len(errs) > 0 {
			return Item[T]{}, errs
		}
		return ConditionalItem(cond), nil
	}
	val, err := decodeValueNode[T](node, fileID)
	if err != nil {
		return Item[T]{}, []error{fmt.Errorf("%s: %w", spanFromNode(fileID, node), err)}
	}
	return PlainItem(val), nil
}

func isConditionalMapping(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == "if" {
			return true
		}
	}
	return false
}

func decodeConditional[T any](node *yaml.Node, fileID string) (*Conditional[T], []error) {
	c := &Conditional[T]{Span: spanFromNode(fileID, node)}
	var errs []error
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, valNode := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "if":
			c.If = valNode.Value
		case "then":
			then, ierrs := decodeConditionalList[T](valNode, fileID)
			c.Then = then
			errs = append(errs, ierrs...)
		case "else":
			els, ierrs := decodeConditionalList[T](valNode, fileID)
			c.Else = els
			errs = append(errs, ierrs...)
		default:
			errs = append(errs, fmt.Errorf("%s: unknown key %q in if/then/else block", spanFromNode(fileID, key), key.Value))
		}
	}
	return c, errs
}

// mapGet returns the value node for key in a YAML mapping node, or nil.
func mapGet(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// mapKeys returns the ordered keys of a YAML mapping node.
func mapKeys(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	return keys
}

package tmpl

import (
	"fmt"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// UsedVars is the result of walking an expression's AST for variable
// references, split into the "guarded" set (only reached through a
// `default(...)` filter's first argument) and the "unguarded" set (reached
// any other way). A variable that shows up in both is, by spec, treated as
// unguarded: the default only shields a variable that is otherwise never
// referenced directly.
type UsedVars struct {
	Guarded   map[string]bool
	Unguarded map[string]bool
}

func newUsedVars() *UsedVars {
	return &UsedVars{Guarded: map[string]bool{}, Unguarded: map[string]bool{}}
}

// Exclusive returns the variables that contribute to used_variant: every
// unguarded variable. A variable reached only through a `default(...)`
// filter's first argument is left out.
func (u *UsedVars) Exclusive() []string {
	out := make([]string, 0, len(u.Unguarded))
	for name := range u.Unguarded {
		out = append(out, name)
	}
	return out
}

func (u *UsedVars) merge(o *UsedVars) {
	for k := range o.Guarded {
		u.Guarded[k] = true
	}
	for k := range o.Unguarded {
		u.Unguarded[k] = true
	}
}

// UsedVarsExpr parses a single `${{ ... }}` expression body and returns the
// variables it references, per the default-filter guard rules and the
// special-callable table in special.go.
func UsedVarsExpr(src string) (*UsedVars, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("tmpl: parsing expression %q: %w", src, err)
	}
	uv := newUsedVars()
	walkNode(tree.Node, uv, false)
	return uv, nil
}

// UsedVarsTemplate scans a full template string (literal text interleaved
// with `${{ }}` substitutions) and unions the used variables of every
// embedded expression.
func UsedVarsTemplate(tmplSrc string) (*UsedVars, error) {
	segments, err := splitTemplate(tmplSrc)
	if err != nil {
		return nil, err
	}
	uv := newUsedVars()
	for _, seg := range segments {
		if seg.isExpr {
			sub, err := UsedVarsExpr(seg.text)
			if err != nil {
				return nil, err
			}
			uv.merge(sub)
		}
	}
	return uv, nil
}

// walkNode recurses through the expr AST, recording identifier references.
// guardedFirstArg is true while descending into the first argument of a
// `default(...)` call: that subtree's root identifier is guarded rather
// than unguarded.
func walkNode(node ast.Node, uv *UsedVars, guardedFirstArg bool) {
	switch n := node.(type) {
	case nil:
		return
	case *ast.IdentifierNode:
		if n.Value == "env" {
			return
		}
		if guardedFirstArg {
			uv.Guarded[n.Value] = true
		} else {
			uv.Unguarded[n.Value] = true
		}
	case *ast.MemberNode:
		// a.b / a["b"]: the variable identity lives at the root of the
		// chain; walk it with the same guard state, skip the property.
		walkNode(n.Node, uv, guardedFirstArg)
	case *ast.ChainNode:
		walkNode(n.Node, uv, guardedFirstArg)
	case *ast.UnaryNode:
		walkNode(n.Node, uv, guardedFirstArg)
	case *ast.BinaryNode:
		walkNode(n.Left, uv, guardedFirstArg)
		walkNode(n.Right, uv, guardedFirstArg)
	case *ast.ConditionalNode:
		walkNode(n.Cond, uv, false)
		walkNode(n.Exp1, uv, false)
		walkNode(n.Exp2, uv, false)
	case *ast.SliceNode:
		walkNode(n.Node, uv, false)
		walkNode(n.From, uv, false)
		walkNode(n.To, uv, false)
	case *ast.ArrayNode:
		for _, e := range n.Nodes {
			walkNode(e, uv, false)
		}
	case *ast.MapNode:
		for _, e := range n.Pairs {
			walkNode(e, uv, false)
		}
	case *ast.PairNode:
		walkNode(n.Key, uv, false)
		walkNode(n.Value, uv, false)
	case *ast.CallNode:
		walkCall(n, uv, guardedFirstArg)
	case *ast.BuiltinNode:
		for _, a := range n.Arguments {
			walkNode(a, uv, false)
		}
	case *ast.PointerNode:
		// '#'/'$' inside a predicate closure; no free variable reference.
	case *ast.VariableDeclaratorNode:
		walkNode(n.Value, uv, false)
		walkNode(n.Expr, uv, false)
	case *ast.SequenceNode:
		for _, e := range n.Nodes {
			walkNode(e, uv, false)
		}
	default:
		// Constant/string/integer/float/bool/nil literals: no variables.
	}
}

// walkCall handles an *ast.CallNode. guarded is true when this whole call
// sits inside the first argument of a `default(...)` further up the
// tree — the common case being a multi-filter chain like
// `v | f1 | f2 | default(...)`, which expr desugars to nested CallNodes
// (f2(f1(v))). Per spec.md §4.1, the guard belongs to the *root* variable
// of that chain, so guarded must propagate through every nested call's
// arguments, not just the outermost one's.
func walkCall(n *ast.CallNode, uv *UsedVars, guarded bool) {
	name := calleeName(n.Callee)

	if name == "default" || name == "d" {
		if len(n.Arguments) > 0 {
			walkNode(n.Arguments[0], uv, true)
		}
		for _, a := range n.Arguments[1:] {
			walkNode(a, uv, guarded)
		}
		return
	}

	if specialCallables[name] {
		argIdent := make([]string, len(n.Arguments))
		argLit := make([]bool, len(n.Arguments))
		for i, a := range n.Arguments {
			argIdent[i] = rootIdentifier(a)
			_, argLit[i] = a.(*ast.StringNode)
		}
		for _, key := range expandSpecialCallable(name, argIdent, argLit) {
			uv.Unguarded[key] = true
		}
		// Also walk any non-literal, non-identifier argument expressions
		// (e.g. a concatenation) so nested references aren't dropped.
		for i, a := range n.Arguments {
			if argIdent[i] == "" && !argLit[i] {
				walkNode(a, uv, guarded)
			}
		}
		return
	}

	walkNode(n.Callee, uv, false)
	for _, a := range n.Arguments {
		walkNode(a, uv, guarded)
	}
}

func calleeName(n ast.Node) string {
	if id, ok := n.(*ast.IdentifierNode); ok {
		return id.Value
	}
	return ""
}

// rootIdentifier returns the base variable name of a (possibly chained)
// member-access expression, or "" if node isn't a variable reference at
// all (a literal, a call, a binary expression, ...).
func rootIdentifier(node ast.Node) string {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return n.Value
	case *ast.MemberNode:
		return rootIdentifier(n.Node)
	case *ast.ChainNode:
		return rootIdentifier(n.Node)
	default:
		return ""
	}
}

package stage1

import (
	"fmt"

	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/tmpl"
	"gopkg.in/yaml.v3"
)

// EvaluateValue renders and records a single Value[T] against ec. Concrete
// values pass through unchanged and record nothing. Template values are
// rendered, their used variables recorded, and the rendered string is
// coerced back into T via a YAML scalar decode (so Value[int] and
// Value[bool] round-trip the same way a literal recipe scalar would).
func EvaluateValue[T any](ec *EvaluationContext, v recipe.Value[T]) (T, error) {
	if !v.IsTemplate() {
		return v.Concrete, nil
	}
	uv, err := tmpl.UsedVarsTemplate(v.Template)
	if err != nil {
		var zero T
		return zero, tmpl.WithSpan(v.Span, v.Template, err)
	}
	ec.recordAll(uv.Exclusive())

	rendered, err := tmpl.Render(v.Template, ec.Context)
	if err != nil {
		var zero T
		return zero, tmpl.WithSpan(v.Span, v.Template, err)
	}

	var out T
	if err := yaml.Unmarshal([]byte(rendered), &out); err != nil {
		var zero T
		return zero, fmt.Errorf("%s: coercing rendered value %q: %w", v.Span, rendered, err)
	}
	return out, nil
}

// EvaluateConditionalList expands a ConditionalList[T] against ec: plain
// items evaluate directly, conditional items evaluate their `if` and
// splice in the selected branch's (recursively expanded) items.
func EvaluateConditionalList[T any](ec *EvaluationContext, list recipe.ConditionalList[T]) ([]T, error) {
	var out []T
	for _, item := range list {
		switch item.Kind {
		case recipe.ItemPlain:
			v, err := EvaluateValue(ec, item.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		case recipe.ItemConditional:
			branch, err := selectBranch(ec, item.Cond)
			if err != nil {
				return nil, err
			}
			vs, err := EvaluateConditionalList(ec, branch)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
	}
	return out, nil
}

func selectBranch[T any](ec *EvaluationContext, cond *recipe.Conditional[T]) (recipe.ConditionalList[T], error) {
	uv, err := tmpl.UsedVarsExpr(cond.If)
	if err != nil {
		return nil, tmpl.WithSpan(cond.Span, cond.If, err)
	}
	ec.recordAll(uv.Exclusive())

	ok, err := tmpl.EvalBool(cond.If, ec.Context)
	if err != nil {
		return nil, tmpl.WithSpan(cond.Span, cond.If, err)
	}
	if ok {
		return cond.Then, nil
	}
	return cond.Else, nil
}

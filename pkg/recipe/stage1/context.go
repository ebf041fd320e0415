// Package stage1 evaluates a stage-0 recipe.Recipe against one concrete
// variant, selecting conditional branches, rendering template values, and
// recording every variant key the recipe actually touched (used_variant).
package stage1

import (
	"github.com/condaforge/rbcore/pkg/tmpl"
)

// EvaluationContext carries the variant under evaluation plus everything
// Render/EvalBool need, and accumulates used_variant as evaluation
// proceeds. One EvaluationContext is created per (recipe, variant) pair;
// it is not safe for concurrent use since it mutates Recorded in place.
type EvaluationContext struct {
	Variant  map[string]string
	Context  *tmpl.Context
	Recorded map[string]string
}

// NewEvaluationContext builds an EvaluationContext for a single variant
// combination. extra layers additional context variables (recipe
// `context:` block, platform constants) on top of the variant values
// themselves, matching stage-1's "variant keys plus context block" scope.
func NewEvaluationContext(variant map[string]string, extra map[string]any) *EvaluationContext {
	ctx := tmpl.NewContext()
	for k, v := range variant {
		ctx.Set(k, v)
	}
	for k, v := range extra {
		ctx.Set(k, v)
	}
	return &EvaluationContext{
		Variant:  variant,
		Context:  ctx,
		Recorded: map[string]string{},
	}
}

// record marks name (and its current variant value, if any) as having
// contributed to this evaluation's used_variant.
func (ec *EvaluationContext) record(name string) {
	if v, ok := ec.Variant[name]; ok {
		ec.Recorded[name] = v
	}
}

// recordAll records every name in names.
func (ec *EvaluationContext) recordAll(names []string) {
	for _, n := range names {
		ec.record(n)
	}
}

// UsedVariant returns the subset of the input variant this evaluation
// actually referenced, the value fed into the build-string hash.
func (ec *EvaluationContext) UsedVariant() map[string]string {
	out := make(map[string]string, len(ec.Recorded))
	for k, v := range ec.Recorded {
		out[k] = v
	}
	return out
}

// SetBuildNumber and SetHash inject the two values that are only known
// after the first evaluation pass, for the second pass that renders
// build.string (spec's two-pass build.string evaluation).
func (ec *EvaluationContext) SetBuildNumber(n int) {
	ec.Context.Set("build_number", n)
}

func (ec *EvaluationContext) SetHash(hash string) {
	ec.Context.Set("hash", hash)
}

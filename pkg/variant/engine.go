package variant

import (
	"fmt"

	"github.com/condaforge/rbcore/pkg/recipe"
	"github.com/condaforge/rbcore/pkg/recipe/stage1"
)

// BuildGroup is one entry of Engine.Run's result: a distinct used_variant
// projection plus the fully evaluated output that produced it. Two
// variant combinations that touch the same subset of keys with the same
// values collapse into a single BuildGroup, per spec's dedup requirement.
type BuildGroup struct {
	UsedVariant map[string]string
	// FullVariant is the complete combination this group's representative
	// was evaluated against, not just the used_variant projection.
	// Consumers that need to evaluate additional conditional content
	// against the same point (e.g. pkg/build evaluating conditional
	// `source:` entries) read from here instead of UsedVariant, since a
	// condition may reference a key the recipe's main body never touched.
	FullVariant map[string]string
	Output      *stage1.EvaluatedOutput
	BuildString string
	// Hash is the bare variant hash (no "h" tag, no build number) that
	// fed BuildString, exported to scripts as PKG_HASH.
	Hash string
}

// Run enumerates every combination implied by cfg, evaluates the recipe
// output against each, computes its build-string hash, and groups the
// results by their used_variant projection so that combinations which
// don't actually differ in anything the recipe reads collapse together.
func Run(cfg Config, pkg recipe.PackageSection, build recipe.Build, reqs recipe.Requirements, tests recipe.ConditionalList[recipe.TestType], extraContext map[string]any) ([]BuildGroup, error) {
	combos := cfg.expand()
	seen := map[string]bool{}
	var groups []BuildGroup

	for _, combo := range combos {
		ec := stage1.NewEvaluationContext(map[string]string(combo), extraContext)
		out, err := stage1.EvaluateOutputExceptBuildString(ec, pkg, build, reqs, tests)
		if err != nil {
			return nil, fmt.Errorf("evaluating variant %v: %w", combo, err)
		}
		if out.Skip {
			continue
		}

		// used_variant always carries target_platform when the variant
		// provides one, even if nothing in the recipe body read it.
		used := ec.UsedVariant()
		if tp, ok := combo["target_platform"]; ok {
			used["target_platform"] = tp
		}
		key := canonicalJSONString(used)
		if seen[key] {
			continue
		}
		seen[key] = true

		h := ComputeBuildStringHash(used, out.NoArch == "python")
		buildString, err := stage1.EvaluateBuildString(ec, build, h.Hash)
		if err != nil {
			return nil, fmt.Errorf("evaluating build.string for variant %v: %w", combo, err)
		}
		if buildString == "" {
			buildString = h.Default(out.BuildNumber)
		}

		groups = append(groups, BuildGroup{
			UsedVariant: used,
			FullVariant: map[string]string(combo),
			Output:      out,
			BuildString: buildString,
			Hash:        h.Hash,
		})
	}
	return groups, nil
}

func canonicalJSONString(m map[string]string) string {
	return string(canonicalJSON(m))
}

// UnionStagingOutputs unions every staging output's used_variant into
// each sibling PackageOutput's used_variant. Not called by default (see
// DESIGN.md's "StagingOutput used_variant sharing" decision); provided
// for callers who want the conservative behavior instead.
func UnionStagingOutputs(staging []map[string]string, sibling map[string]string) map[string]string {
	out := make(map[string]string, len(sibling))
	for k, v := range sibling {
		out[k] = v
	}
	for _, s := range staging {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

package stage1

import (
	"github.com/condaforge/rbcore/pkg/recipe"
)

// EvaluatedSource is a rendered, variant-bound recipe.Source: every
// Value[string] field resolved to its concrete string, ready for an
// external.SourceFetcher.
type EvaluatedSource struct {
	URL       string
	Git       string
	Path      string
	SHA256    string
	TargetDir string
	Patches   []string
}

// EvaluateSources expands a ConditionalList[recipe.Source] against ec,
// selecting the matching branch of any conditional entry and rendering
// every field of each surviving entry. This is what lets a recipe's
// `source:` list use `if:`/`then:`/`else:` the same way `requirements:`
// and `tests:` already do.
func EvaluateSources(ec *EvaluationContext, list recipe.ConditionalList[recipe.Source]) ([]EvaluatedSource, error) {
	var out []EvaluatedSource
	for _, item := range list {
		switch item.Kind {
		case recipe.ItemPlain:
			src, err := evaluateSource(ec, item.Value.Concrete)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		case recipe.ItemConditional:
			branch, err := selectBranch(ec, item.Cond)
			if err != nil {
				return nil, err
			}
			rest, err := EvaluateSources(ec, branch)
			if err != nil {
				return nil, err
			}
			out = append(out, rest...)
		}
	}
	return out, nil
}

func evaluateSource(ec *EvaluationContext, s recipe.Source) (EvaluatedSource, error) {
	url, err := EvaluateValue(ec, s.URL)
	if err != nil {
		return EvaluatedSource{}, err
	}
	git, err := EvaluateValue(ec, s.Git)
	if err != nil {
		return EvaluatedSource{}, err
	}
	path, err := EvaluateValue(ec, s.Path)
	if err != nil {
		return EvaluatedSource{}, err
	}
	sha256, err := EvaluateValue(ec, s.SHA256)
	if err != nil {
		return EvaluatedSource{}, err
	}
	targetDir, err := EvaluateValue(ec, s.TargetDir)
	if err != nil {
		return EvaluatedSource{}, err
	}
	patches, err := EvaluateConditionalList(ec, s.Patches)
	if err != nil {
		return EvaluatedSource{}, err
	}
	return EvaluatedSource{
		URL: url, Git: git, Path: path, SHA256: sha256,
		TargetDir: targetDir, Patches: patches,
	}, nil
}

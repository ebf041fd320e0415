package script

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Pipeline is a named, reusable sequence of script steps a recipe can
// invoke via `uses:`, mirroring the teacher's pkg/build/pipeline.go
// embedded pipelines but generalized to conda-recipe build steps instead
// of melange's apk pipeline actions.
type Pipeline struct {
	Name   string
	Inputs map[string]InputSpec
	Steps  []Step
}

// InputSpec describes one named input a pipeline step declares via
// `inputs:`, with an optional default.
type InputSpec struct {
	Default string
	Required bool
}

// Step is one entry of a pipeline's step list: either an inline script
// run (Uses == "") or an invocation of another named pipeline.
type Step struct {
	Name string
	Uses string
	With map[string]string
	Run  string
	If   string
}

// Loader resolves `uses:` references against a registry of named
// pipelines and expands them into a flat step list, detecting cycles via
// a canonicalized-path visited set the way the teacher's pipeline loader
// guards against a pipeline including itself transitively.
type Loader struct {
	registry map[string]*Pipeline
	// Render, when set, is applied to every `with:` value before it is
	// bound into the callee's inputs, so a caller can pass templated
	// arguments evaluated in its own context.
	Render func(value string) (string, error)
}

// NewLoader builds a Loader over pipelines, keyed by name.
func NewLoader(pipelines []*Pipeline) *Loader {
	l := &Loader{registry: map[string]*Pipeline{}}
	for _, p := range pipelines {
		l.registry[p.Name] = p
	}
	return l
}

// ResolveName expands a recipe's `uses: foo::bar` shorthand into the
// registry lookup key "foo/bar", matching the teacher's `::`-to-`/`
// path convention for namespaced pipeline references.
func ResolveName(uses string) string {
	return strings.ReplaceAll(uses, "::", "/")
}

// Expand flattens root's steps into a single ordered list, substituting
// each `uses:` step with the referenced pipeline's own expanded steps
// (with `with:` inputs bound into the child's environment via its
// Inputs contract), and fails if it detects a cycle.
func (l *Loader) Expand(rootName string) ([]ResolvedStep, error) {
	visited := map[string]bool{}
	return l.expand(rootName, nil, visited)
}

func (l *Loader) expand(name string, with map[string]string, visited map[string]bool) ([]ResolvedStep, error) {
	canon := filepath.Clean(name)
	if visited[canon] {
		return nil, fmt.Errorf("script: pipeline cycle detected at %q", name)
	}
	visited[canon] = true
	defer delete(visited, canon)

	p, ok := l.registry[ResolveName(name)]
	if !ok {
		return nil, fmt.Errorf("script: unknown pipeline %q", name)
	}

	bound, err := bindInputs(p, with)
	if err != nil {
		return nil, fmt.Errorf("script: pipeline %q: %w", name, err)
	}

	var out []ResolvedStep
	for _, step := range p.Steps {
		if step.Uses != "" {
			stepWith, err := l.renderWith(step.With)
			if err != nil {
				return nil, fmt.Errorf("script: pipeline %q step %q: %w", name, step.Name, err)
			}
			childWith := mergeWith(bound, stepWith)
			children, err := l.expand(step.Uses, childWith, visited)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
			continue
		}
		out = append(out, ResolvedStep{Name: step.Name, Run: step.Run, If: step.If, With: bound})
	}
	return out, nil
}

// ResolvedStep is a single, fully-flattened build step ready for the
// Executor: no more `uses:` indirection, just a script body plus the
// input bindings it can reference.
type ResolvedStep struct {
	Name string
	Run  string
	If   string
	With map[string]string
}

func (l *Loader) renderWith(with map[string]string) (map[string]string, error) {
	if l.Render == nil || len(with) == 0 {
		return with, nil
	}
	out := make(map[string]string, len(with))
	for k, v := range with {
		rendered, err := l.Render(v)
		if err != nil {
			return nil, fmt.Errorf("rendering with.%s: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}

func bindInputs(p *Pipeline, with map[string]string) (map[string]string, error) {
	out := map[string]string{}
	for name, spec := range p.Inputs {
		if v, ok := with[name]; ok {
			out[name] = v
			continue
		}
		if spec.Required {
			return nil, fmt.Errorf("missing required input %q", name)
		}
		out[name] = spec.Default
	}
	return out, nil
}

func mergeWith(parent map[string]string, child map[string]string) map[string]string {
	out := make(map[string]string, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}

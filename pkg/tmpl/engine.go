package tmpl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// ErrUndefinedVariable is wrapped into the returned error when a template or
// expression references a variable that is neither in the context nor
// shielded by a `default(...)` filter.
type ErrUndefinedVariable struct {
	Name string
}

func (e *ErrUndefinedVariable) Error() string {
	return fmt.Sprintf("tmpl: undefined variable %q", e.Name)
}

// Render expands every `${{ ... }}` substitution in src against ctx,
// concatenating the literal text around them. It fails closed: any
// unguarded variable reference that ctx does not provide is an error,
// matching spec's requirement that rendering never silently substitutes
// empty string for a missing variant key.
func Render(src string, ctx *Context) (string, error) {
	segs, err := splitTemplate(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segs {
		if !seg.isExpr {
			b.WriteString(seg.text)
			continue
		}
		val, err := evalExpr(seg.text, ctx)
		if err != nil {
			return "", fmt.Errorf("tmpl: rendering %q: %w", src, err)
		}
		b.WriteString(stringify(val))
	}
	return b.String(), nil
}

// EvalBool evaluates a bare (non-`${{ }}`-wrapped) boolean expression, as
// used by `if:` conditionals on recipe items.
func EvalBool(src string, ctx *Context) (bool, error) {
	val, err := evalExpr(src, ctx)
	if err != nil {
		return false, fmt.Errorf("tmpl: evaluating condition %q: %w", src, err)
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("tmpl: condition %q did not evaluate to a boolean, got %T", src, val)
	}
	return b, nil
}

func evalExpr(src string, ctx *Context) (any, error) {
	uv, err := UsedVarsExpr(src)
	if err != nil {
		return nil, err
	}
	for _, name := range uv.Exclusive() {
		if isSyntheticVariantKey(name) {
			continue
		}
		if _, ok := ctx.Lookup(name); !ok {
			return nil, &ErrUndefinedVariable{Name: name}
		}
	}

	env := ctx.toExprEnv()
	installBuiltins(env, ctx)

	// Unguarded names were checked above; a default-guarded name may be
	// absent and then evaluates to nil.
	program, err := expr.Compile(src, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling: %w", err)
	}
	return expr.Run(program, env)
}

// isSyntheticVariantKey reports whether name is a key synthesized by the
// special-callable table (special.go) rather than a variable the recipe
// author is expected to have defined in context/variant config directly.
// CONDA_BUILD_SYSROOT and cdt_name fall outside the ordinary variant
// namespace and are resolved by the build configuration, not by Render's
// strict undefined-variable check.
func isSyntheticVariantKey(name string) bool {
	return name == "CONDA_BUILD_SYSROOT" || name == "cdt_name"
}

// installBuiltins registers the Jinja-style functions Render supports as
// plain Go closures in the map env expr evaluates against.
func installBuiltins(env map[string]any, ctx *Context) {
	env["default"] = func(v any, fallback any) any {
		if v == nil {
			return fallback
		}
		return v
	}
	env["d"] = env["default"]
	env["compiler"] = func(lang string) string {
		return compilerSpec(ctx, lang)
	}
	env["stdlib"] = func(lang string) string {
		return stdlibSpec(ctx, lang)
	}
	// pin_subpackage/pin_compatible/match/cdt's real resolution depends on
	// sibling-output metadata and the host/CDT index, which live outside
	// this core (see pkg/external). Render produces a stable placeholder
	// token; nothing in this module rewrites it.
	env["pin_subpackage"] = func(name string, _ ...any) string {
		return "__pin_subpackage__(" + name + ")"
	}
	env["pin_compatible"] = func(name string, _ ...any) string {
		return "__pin_compatible__(" + name + ")"
	}
	env["match"] = func(v any, spec string) string {
		return fmt.Sprintf("%s %s", stringify(v), spec)
	}
	env["cdt"] = func(name string) string {
		return "__cdt__(" + name + ")"
	}
}

func compilerSpec(ctx *Context, lang string) string {
	compilerVal, _ := ctx.Lookup(lang + "_compiler")
	versionVal, _ := ctx.Lookup(lang + "_compiler_version")
	return joinNonEmpty(stringify(compilerVal), stringify(versionVal))
}

func stdlibSpec(ctx *Context, lang string) string {
	stdlibVal, _ := ctx.Lookup(lang + "_stdlib")
	versionVal, _ := ctx.Lookup(lang + "_stdlib_version")
	return joinNonEmpty(stringify(stdlibVal), stringify(versionVal))
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

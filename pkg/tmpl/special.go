package tmpl

// specialCallables lists the Jinja-style functions whose used-variable
// contribution is not "walk the arguments" but a fixed expansion, per
// crates/rattler_build_jinja/src/ast_variables.rs in the original
// implementation this adapter's analysis is grounded on.
var specialCallables = map[string]bool{
	"compiler":       true,
	"stdlib":         true,
	"pin_subpackage": true,
	"pin_compatible": true,
	"match":          true,
	"cdt":            true,
}

// expandSpecialCallable returns the set of variant keys a call to one of
// specialCallables contributes to used_variant, given the already-evaluated
// AST shape of its arguments (argIdent[i] is the root identifier of
// argument i if it is a variable reference, "" if it is a literal or other
// expression).
func expandSpecialCallable(name string, argIdent []string, argIsLiteral []bool) []string {
	switch name {
	case "compiler":
		lang := firstNonEmpty(argIdent)
		if lang == "" {
			return nil
		}
		return []string{lang + "_compiler", lang + "_compiler_version", "CONDA_BUILD_SYSROOT"}
	case "stdlib":
		lang := firstNonEmpty(argIdent)
		if lang == "" {
			return nil
		}
		return []string{lang + "_stdlib", lang + "_stdlib_version", "CONDA_BUILD_SYSROOT"}
	case "pin_subpackage", "pin_compatible":
		if len(argIdent) == 0 || len(argIsLiteral) == 0 || argIsLiteral[0] {
			return nil
		}
		return []string{argIdent[0]}
	case "match":
		var out []string
		for i, id := range argIdent {
			if id != "" && (i >= len(argIsLiteral) || !argIsLiteral[i]) {
				out = append(out, id)
			}
		}
		return out
	case "cdt":
		return []string{"cdt_name"}
	}
	return nil
}

func firstNonEmpty(ss []string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// compilerVariantKeys mirrors expandSpecialCallable's "compiler" case for
// callers (variant engine) that need the key list without an AST, e.g. when
// validating a variant config's zip_keys groupings against known compiler
// families.
func compilerVariantKeys(lang string) []string {
	return []string{lang + "_compiler", lang + "_compiler_version", "CONDA_BUILD_SYSROOT"}
}

// stdlibVariantKeys mirrors expandSpecialCallable's "stdlib" case.
func stdlibVariantKeys(lang string) []string {
	return []string{lang + "_stdlib", lang + "_stdlib_version", "CONDA_BUILD_SYSROOT"}
}

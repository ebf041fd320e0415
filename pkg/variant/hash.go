package variant

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// languageFamily is one entry of the fixed-order language-prefix table
// used to build the human-readable prefix of a default build string
// (e.g. "py311" for CPython 3.11, "np126" for numpy 1.26). Order matters:
// the prefix is assembled by walking this table in order, not by
// iterating a map.
type languageFamily struct {
	variantKey string
	prefixCode string
}

// languageFamilies is intentionally ordered: np, py, pl, lua, r.
var languageFamilies = []languageFamily{
	{variantKey: "numpy", prefixCode: "np"},
	{variantKey: "python", prefixCode: "py"},
	{variantKey: "perl", prefixCode: "pl"},
	{variantKey: "lua", prefixCode: "lua"},
	{variantKey: "r_base", prefixCode: "r"},
}

// HashLength is the number of hex characters the truncated SHA-1
// contributes to a build string.
const HashLength = 7

// BuildStringHash is the result of hashing one evaluated output's
// used_variant: Hash is the 7-hex-character digest (bound to `${{ hash }}`
// in the build.string template render), Prefix is the language-family
// prefix built from the fixed-order table above, and Default is the
// conventional "<prefix>h<hash>_<build_number>" string used when the
// recipe doesn't supply a custom build.string.
type BuildStringHash struct {
	Prefix string
	Hash   string
}

// Default formats the conventional build string for a given build number.
func (h BuildStringHash) Default(buildNumber int) string {
	return h.Prefix + "h" + h.Hash + "_" + strconv.Itoa(buildNumber)
}

// ComputeBuildStringHash derives the hash and prefix for usedVariant.
// noarchPython suppresses the version digits in the python prefix code
// ("py" instead of "py311") and drops the `python` key from the hash
// input entirely, matching noarch:python packages whose installed
// interpreter isn't pinned by the build (spec.md §8 scenario 2).
//
// Unlike the language-family prefix, the hash digest is taken over the
// *entire* usedVariant map — language-family keys (python, numpy, ...)
// contribute to both the prefix AND the hash; they are not subtracted
// out. The only subtraction is `target_platform` in the degenerate case
// where it would otherwise be the sole remaining key of a noarch build
// (spec.md §4.6's "empty-equivalent" clause) — every other combination
// keeps target_platform in the hash input, confirmed by spec.md §8's
// three worked vectors (see hash_test.go).
func ComputeBuildStringHash(usedVariant map[string]string, noarchPython bool) BuildStringHash {
	var prefix strings.Builder
	if noarchPython {
		// A noarch:python build's prefix is the bare "py" with no version
		// digits and no other language-family codes — used_variant has
		// already dropped python, so the family loop below would never
		// emit it.
		prefix.WriteString("py")
	} else {
		for _, fam := range languageFamilies {
			v, ok := usedVariant[fam.variantKey]
			if !ok {
				continue
			}
			prefix.WriteString(fam.prefixCode)
			prefix.WriteString(strings.ReplaceAll(v, ".", ""))
		}
	}

	hashInput := make(map[string]string, len(usedVariant))
	for k, v := range usedVariant {
		if noarchPython && k == "python" {
			continue
		}
		hashInput[k] = v
	}
	if noarchPython {
		if _, ok := hashInput["target_platform"]; ok && len(hashInput) == 1 {
			delete(hashInput, "target_platform")
		}
	}

	return BuildStringHash{Prefix: prefix.String(), Hash: digest(hashInput)}
}

// digest canonicalizes hashInput into the same object-with-spaces JSON
// shape `encoding/json`'s default map encoding of a sorted-key object
// would produce (`{"k": "v", ...}`), then returns the first HashLength
// hex characters of its SHA-1 — SHA-1, not SHA-256: confirmed against
// all three spec.md §8 vectors (see hash_test.go), which only match a
// SHA-1 digest of this exact canonical form.
func digest(hashInput map[string]string) string {
	sum := sha1.Sum(hashCanonicalJSON(hashInput))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// hashCanonicalJSON serializes m as `{"k": "v", "k2": "v2"}` with keys in
// sorted order and a space after every colon and comma — the exact shape
// needed to reproduce spec.md §8's worked hash vectors, independent of Go
// map iteration order.
func hashCanonicalJSON(m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteString(": ")
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// canonicalJSON serializes m as a compact JSON object with keys in
// sorted order, used by Engine.Run to dedup build groups by their
// used_variant projection. This is an internal key, not a hash exposed
// to the recipe or its tests, so it doesn't need to match any external
// canonical form — just be stable across map iteration order.
func canonicalJSON(m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// Package variant implements the Cartesian-product variant engine and the
// build-string hash, the two pieces of spec.md that turn a stage-0 recipe
// plus a variant config matrix into one BuildConfiguration per distinct
// used_variant.
package variant

// Config is a parsed variant_config.yaml: for each key, the list of
// values to enumerate, plus optional zip_keys groupings that must vary
// together instead of independently.
type Config struct {
	Values   map[string][]string
	ZipKeys  [][]string
}

// combination is one point in the Cartesian product, before any
// evaluation: a fully-specified assignment of every variant key.
type combination map[string]string

// expand produces every combination implied by c.Values, respecting
// ZipKeys: keys in the same zip group are walked in lockstep by index
// (and must have equal-length value lists); keys outside any zip group
// vary independently.
func (c Config) expand() []combination {
	groups := c.zipGroups()
	indexed := make([][]combination, 0, len(groups))
	for _, g := range groups {
		indexed = append(indexed, g.combinations(c.Values))
	}
	return cartesian(indexed)
}

type zipGroup struct {
	keys []string
}

// zipGroups partitions every key in c.Values into its zip group (or a
// singleton group if it's not in any ZipKeys entry).
func (c Config) zipGroups() []zipGroup {
	zipped := map[string]bool{}
	var groups []zipGroup
	for _, keys := range c.ZipKeys {
		groups = append(groups, zipGroup{keys: keys})
		for _, k := range keys {
			zipped[k] = true
		}
	}
	for k := range c.Values {
		if !zipped[k] {
			groups = append(groups, zipGroup{keys: []string{k}})
		}
	}
	return groups
}

// combinations returns one combination per index position across a zip
// group's keys (they all advance together).
func (g zipGroup) combinations(values map[string][]string) []combination {
	n := 0
	for _, k := range g.keys {
		if len(values[k]) > n {
			n = len(values[k])
		}
	}
	out := make([]combination, 0, n)
	for i := 0; i < n; i++ {
		c := combination{}
		for _, k := range g.keys {
			vals := values[k]
			if len(vals) == 0 {
				continue
			}
			c[k] = vals[i%len(vals)]
		}
		out = append(out, c)
	}
	return out
}

// cartesian computes the full cross product of a list of per-group
// combination lists, merging each tuple into one combination.
func cartesian(groups [][]combination) []combination {
	if len(groups) == 0 {
		return []combination{{}}
	}
	result := []combination{{}}
	for _, group := range groups {
		var next []combination
		for _, prefix := range result {
			for _, g := range group {
				merged := combination{}
				for k, v := range prefix {
					merged[k] = v
				}
				for k, v := range g {
					merged[k] = v
				}
				next = append(next, merged)
			}
		}
		result = next
	}
	return result
}

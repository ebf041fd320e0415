package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Expand_IndependentKeysCrossProduct(t *testing.T) {
	cfg := Config{Values: map[string][]string{
		"python": {"3.10", "3.11"},
		"target_platform": {"linux-64"},
	}}
	combos := cfg.expand()
	assert.Len(t, combos, 2)
}

func TestConfig_Expand_ZipKeysWalkInLockstep(t *testing.T) {
	cfg := Config{
		Values: map[string][]string{
			"python": {"3.10", "3.11"},
			"numpy":  {"1.23", "1.26"},
		},
		ZipKeys: [][]string{{"python", "numpy"}},
	}
	combos := cfg.expand()
	assert.Len(t, combos, 2)
	for _, c := range combos {
		if c["python"] == "3.10" {
			assert.Equal(t, "1.23", c["numpy"])
		}
		if c["python"] == "3.11" {
			assert.Equal(t, "1.26", c["numpy"])
		}
	}
}

package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `--- a/foo.py
+++ b/foo.py
@@ -1,4 +1,4 @@
 def greet():
-    print("hello")
+    print("hello world")
     return None

`

func TestParseUnifiedDiff_ParsesHeaderAndHunk(t *testing.T) {
	p, err := ParseUnifiedDiff(sampleDiff)
	require.NoError(t, err)
	require.Len(t, p.Hunks, 1)
	assert.Equal(t, 1, p.Hunks[0].OldStart)
	assert.Equal(t, 4, p.Hunks[0].OldLines)
}

func TestApply_ExactPositionMatch(t *testing.T) {
	src := "def greet():\n    print(\"hello\")\n    return None\n\n"
	p, err := ParseUnifiedDiff(sampleDiff)
	require.NoError(t, err)

	out, stats, err := Apply(src, p, ApplyConfig{Fuzzy: DefaultFuzzyConfig()})
	require.NoError(t, err)
	assert.Contains(t, out, `print("hello world")`)
	assert.Equal(t, 1, stats.HunksApplied)
	assert.Equal(t, 1, stats.LinesAdded)
	assert.Equal(t, 1, stats.LinesDeleted)
}

func TestApply_DriftedLinePositionStillMatchesViaZigZagSearch(t *testing.T) {
	src := "# extra leading comment\n# another one\ndef greet():\n    print(\"hello\")\n    return None\n\n"
	p, err := ParseUnifiedDiff(sampleDiff)
	require.NoError(t, err)

	out, _, err := Apply(src, p, ApplyConfig{Fuzzy: DefaultFuzzyConfig()})
	require.NoError(t, err)
	assert.Contains(t, out, `print("hello world")`)
}

// TestApply_BogusTargetOffsetStillAppliesAtRealPosition covers a hunk
// whose declared new-side start is absurdly large: the search base is
// clamped into range and the zig-zag scan still finds the real match, so
// the hunk applies instead of chasing the declared offset.
func TestApply_BogusTargetOffsetStillAppliesAtRealPosition(t *testing.T) {
	diff := `--- a/big.txt
+++ b/big.txt
@@ -10,4 +1000000,4 @@
 def greet():
-    print("hello")
+    print("hello world")
     return None

`
	src := strings.Repeat("filler line\n", 9) +
		"def greet():\n    print(\"hello\")\n    return None\n\n"
	p, err := ParseUnifiedDiff(diff)
	require.NoError(t, err)

	out, stats, err := Apply(src, p, ApplyConfig{Fuzzy: DefaultFuzzyConfig()})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HunksApplied)
	assert.Contains(t, out, `print("hello world")`)
	assert.NotContains(t, out, `print("hello")`+"\n")
	assert.Equal(t, strings.Count(src, "filler line"), strings.Count(out, "filler line"))
}

func TestApply_FuzzyContextToleratesModifiedCommentLine(t *testing.T) {
	diff := `--- a/foo.py
+++ b/foo.py
@@ -1,3 +1,3 @@
 # a comment line that will drift slightly
-old_value = 1
+new_value = 1
 trailing
`
	src := "# a comment line that has drifted slightly\nold_value = 1\ntrailing\n"
	p, err := ParseUnifiedDiff(diff)
	require.NoError(t, err)

	out, _, err := Apply(src, p, ApplyConfig{Fuzzy: DefaultFuzzyConfig()})
	require.NoError(t, err)
	assert.Contains(t, out, "new_value = 1")
}

package patch

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// LineEndHandling controls how Apply normalizes line endings in the
// patched output, mirroring rattler-build's diffy crate.
type LineEndHandling int

const (
	// LineEndPreserve keeps whatever line ending each original line had.
	LineEndPreserve LineEndHandling = iota
	// LineEndStrict is accepted but handled like LineEndPreserve: Apply
	// does not compare the patch's line endings with the source's and
	// never fails on a mismatch.
	LineEndStrict
	// LineEndForceLF normalizes every output line to LF.
	LineEndForceLF
	// LineEndForceCRLF normalizes every output line to CRLF.
	LineEndForceCRLF
)

// FuzzyConfig tunes how loosely Apply compares context/removed lines to
// the source once a hunk's recorded position doesn't match literally.
type FuzzyConfig struct {
	// MaxFuzz is the maximum number of leading/trailing context lines a
	// hunk is allowed to drop when the literal match fails.
	MaxFuzz int
	// SimilarityThreshold is the minimum Levenshtein ratio (0..1) for two
	// lines to be considered a fuzzy match once literal comparison fails.
	SimilarityThreshold float64
}

// DefaultFuzzyConfig matches the default fuzz tolerance of the diffy
// applier this package mirrors.
func DefaultFuzzyConfig() FuzzyConfig {
	return FuzzyConfig{MaxFuzz: 2, SimilarityThreshold: 0.8}
}

// ApplyConfig bundles the two applier knobs.
type ApplyConfig struct {
	LineEndHandling LineEndHandling
	Fuzzy           FuzzyConfig
}

// ApplyStats reports what Apply actually did, for logging/diagnostics.
type ApplyStats struct {
	LinesAdded    int
	LinesDeleted  int
	LinesContext  int
	HunksApplied  int
}

// ApplyError is returned when a hunk cannot be located within the
// configured fuzz tolerance.
type ApplyError struct {
	HunkIndex int
	Reason    string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch: hunk %d: %s", e.HunkIndex, e.Reason)
}

// Apply applies p to src (split into lines by Apply itself), returning the
// patched text. Each hunk is located independently: Apply starts from the
// hunk's recorded NewStart (clamped into range), scans outward across the
// whole file in an interleaved zig-zag (pos, pos-1, pos+1, pos-2, pos+2,
// ...), and only once the literal scan finds nothing retries at
// progressively fuzzier levels (dropping up to Fuzzy.MaxFuzz
// leading/trailing context lines, with Levenshtein-ratio line comparison
// as the per-line fallback). Because the start position is clamped, a
// hunk declaring an absurd target offset costs the same file-length-bound
// scan as any other hunk instead of walking toward the declared offset.
func Apply(src string, p *Patch, cfg ApplyConfig) (string, ApplyStats, error) {
	lines, endings := splitKeepEndings(src)
	var stats ApplyStats

	// Hunks apply in order; each one shifts subsequent line numbers by
	// its own (added - removed) delta.
	shift := 0
	for idx, h := range p.Hunks {
		pos, fuzz, err := locateHunk(lines, h, shift, cfg.Fuzzy)
		if err != nil {
			return "", stats, &ApplyError{HunkIndex: idx, Reason: err.Error()}
		}
		newLines, delta, hstats := applyHunkAt(lines, h, pos, fuzz)
		lines = newLines
		shift += delta
		stats.LinesAdded += hstats.LinesAdded
		stats.LinesDeleted += hstats.LinesDeleted
		stats.LinesContext += hstats.LinesContext
		stats.HunksApplied++
	}

	return joinWithEndings(lines, endings, cfg.LineEndHandling), stats, nil
}

// locateHunk finds the 0-based line index in lines where h's context
// begins. The search base is the hunk's recorded new-side start (adjusted
// by the running shift and clamped into range); from there it scans the
// entire file in an interleaved zig-zag (pos, pos-1, pos+1, pos-2,
// pos+2, ...). A full pass at fuzz level 0 runs before any context lines
// are dropped, so a full-context match anywhere in the file wins over a
// nearer reduced-context one.
func locateHunk(lines []string, h Hunk, shift int, fz FuzzyConfig) (pos int, fuzz int, err error) {
	base := h.NewStart - 1 + shift
	if base < 0 {
		base = 0
	}
	if base > len(lines) {
		base = len(lines)
	}

	for f := 0; f <= fz.MaxFuzz; f++ {
		for offset := 0; offset <= len(lines); offset++ {
			for _, sign := range []int{-1, 1} {
				if offset == 0 && sign == 1 {
					continue
				}
				candidate := base + sign*offset
				if candidate < 0 || candidate > len(lines) {
					continue
				}
				if matchesAt(lines, h, candidate, f, fz) {
					return candidate, f, nil
				}
			}
		}
	}
	return 0, 0, fmt.Errorf("no match within fuzz %d", fz.MaxFuzz)
}

// matchesAt reports whether h's "old" side (context + removed lines)
// matches lines starting at pos. At fuzz 0 every line must match
// literally; at higher levels up to fuzz leading and trailing context
// lines are dropped from comparison and fuzzy (Levenshtein ratio)
// comparison is allowed for the rest.
func matchesAt(lines []string, h Hunk, pos int, fuzz int, fz FuzzyConfig) bool {
	trimmed := trimFuzzyEdges(h, fuzz)
	if pos+len(trimmed) > len(lines) {
		return false
	}
	for i, want := range trimmed {
		got := lines[pos+i]
		if want == got {
			continue
		}
		if fuzz == 0 || similarity(want, got) < fz.SimilarityThreshold {
			return false
		}
	}
	return true
}

// oldSideLines extracts the lines a hunk expects to find in the source:
// context lines plus removed lines, in order.
func oldSideLines(h Hunk) []string {
	var out []string
	for _, l := range h.Body {
		if l.Kind == LineContext || l.Kind == LineRemove {
			out = append(out, l.Text)
		}
	}
	return out
}

// trimFuzzyEdges returns h's old-side line list with up to fuzz lines
// dropped from its start and end, skipping only leading/trailing *context*
// lines (removed lines always participate in the match, since they are
// the evidence the hunk targets the right text). It trims exactly what
// applyHunkAt's trimBodyFuzzyEdges trims.
func trimFuzzyEdges(h Hunk, fuzz int) []string {
	return oldSideLines(Hunk{Body: trimBodyFuzzyEdges(h.Body, fuzz)})
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// applyHunkAt splices h's body into lines at pos, returning the new line
// slice, the net line-count delta it introduced, and stats for this hunk
// alone.
func applyHunkAt(lines []string, h Hunk, pos int, fuzz int) ([]string, int, ApplyStats) {
	var stats ApplyStats
	var replacement []string
	consumed := 0

	body := h.Body
	// Drop the same leading/trailing context the match tolerated, so the
	// splice length lines up with what matchesAt actually verified.
	body = trimBodyFuzzyEdges(body, fuzz)

	for _, l := range body {
		switch l.Kind {
		case LineContext:
			replacement = append(replacement, l.Text)
			consumed++
			stats.LinesContext++
		case LineRemove:
			consumed++
			stats.LinesDeleted++
		case LineAdd:
			replacement = append(replacement, l.Text)
			stats.LinesAdded++
		}
	}

	out := make([]string, 0, len(lines)-consumed+len(replacement))
	out = append(out, lines[:pos]...)
	out = append(out, replacement...)
	out = append(out, lines[pos+consumed:]...)

	delta := len(replacement) - consumed
	return out, delta, stats
}

func trimBodyFuzzyEdges(body []Line, fuzz int) []Line {
	start, end := 0, len(body)
	for f := 0; f < fuzz && start < end && body[start].Kind == LineContext; f++ {
		start++
	}
	for f := 0; f < fuzz && end > start && body[end-1].Kind == LineContext; f++ {
		end--
	}
	return body[start:end]
}

func splitKeepEndings(src string) (lines []string, endings []string) {
	i := 0
	for i < len(src) {
		j := strings.IndexByte(src[i:], '\n')
		if j < 0 {
			lines = append(lines, src[i:])
			endings = append(endings, "")
			break
		}
		j += i
		if j > i && src[j-1] == '\r' {
			lines = append(lines, src[i:j-1])
			endings = append(endings, "\r\n")
		} else {
			lines = append(lines, src[i:j])
			endings = append(endings, "\n")
		}
		i = j + 1
	}
	return lines, endings
}

func joinWithEndings(lines []string, endings []string, handling LineEndHandling) string {
	var b strings.Builder
	for i, l := range lines {
		b.WriteString(l)
		if i == len(lines)-1 && (i >= len(endings) || endings[i] == "") {
			continue
		}
		ending := "\n"
		if i < len(endings) {
			ending = endings[i]
			if ending == "" {
				ending = "\n"
			}
		}
		switch handling {
		case LineEndForceLF:
			ending = "\n"
		case LineEndForceCRLF:
			ending = "\r\n"
		}
		b.WriteString(ending)
	}
	return b.String()
}

// Package highlights pre-ranks continuous transcript windows before the LLM
// picks the single one that becomes the short.
package highlights

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/vshorts/internal/types"
)

var (
	reNum  = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reHook = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember|how\s+to|do\s+this)\b`)
)

// BuildWindows produces every continuous segment-aligned window between
// minDur and maxDur, scored for pre-ranking. The LLM sees only the best of
// these, so scoring just has to keep the prompt small, not be right.
func BuildWindows(tr types.Transcript, minDur, maxDur time.Duration) []types.Candidate {
	if minDur <= 0 {
		minDur = 5 * time.Second
	}
	if maxDur <= 0 || maxDur < minDur {
		return nil
	}

	segs := tr.Segments
	var out []types.Candidate
	for i := 0; i < len(segs); i++ {
		start := dur(segs[i].Start)
		var parts []string
		for j := i; j < len(segs); j++ {
			end := dur(segs[j].End)
			if end-start > maxDur {
				break
			}
			if t := strings.TrimSpace(segs[j].Text); t != "" {
				parts = append(parts, t)
			}
			if end-start < minDur {
				continue
			}
			text := strings.Join(parts, " ")
			if text == "" {
				continue
			}
			out = append(out, types.Candidate{
				Start: start,
				End:   end,
				Text:  text,
				Score: Score(text),
			})
		}
	}
	return out
}

// Top keeps the n best-scored windows, returned in timeline order.
func Top(cands []types.Candidate, n int) []types.Candidate {
	if n <= 0 || len(cands) == 0 {
		return nil
	}
	ranked := make([]types.Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Start < ranked[j].Start })
	return ranked
}

// Score is a cheap deterministic heuristic: concrete numbers and hook phrases
// up, rambling length down.
func Score(text string) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	lower := strings.ToLower(t)

	s := float64(len(reNum.FindAllStringIndex(t, -1))) * 0.4
	s += float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	s += float64(strings.Count(t, "?")) * 0.7
	s += float64(strings.Count(t, "!")) * 0.3
	s -= 0.0006 * float64(len([]rune(t)))

	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }

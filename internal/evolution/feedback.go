package evolution

import "strings"

// jaccardImplicitThreshold is the token-overlap ratio above which two
// consecutive user turns are treated as the same request restated —
// evidence the previous turn didn't satisfy the user even though they
// never gave explicit negative feedback.
const jaccardImplicitThreshold = 0.5

// DetectImplicitCorrection reports whether current reads as an implicit
// correction of previous: the user repeating most of the same words
// right after the agent's response, rather than moving on to something
// new. Grounded on the teacher's spiral detector, which flags an LLM
// repeating itself across turns by word-frequency similarity; here the
// same token-overlap idea is applied to the user's side of the
// conversation instead, and simplified to Jaccard since only a yes/no
// verdict is needed rather than a similarity score.
func DetectImplicitCorrection(previous, current string) bool {
	prev := tokenSet(previous)
	cur := tokenSet(current)
	if len(prev) == 0 || len(cur) == 0 {
		return false
	}
	return jaccardSimilarity(prev, cur) >= jaccardImplicitThreshold
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 1 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Combined similarity weights. Word overlap dominates because transcription
// noise perturbs characters more than whole words.
const (
	levenshteinWeight = 0.4
	jaccardWeight     = 0.6
)

// CombinedSimilarity scores two texts in [0,1] as a weighted blend of
// character-level edit similarity and word-level Jaccard overlap. It is
// reflexive (CombinedSimilarity(a,a)==1 for non-empty a) and symmetric.
func CombinedSimilarity(a, b string) float64 {
	return levenshteinWeight*levenshteinSimilarity(a, b) + jaccardWeight*wordJaccard(a, b)
}

// levenshteinSimilarity is (maxLen - editDistance) / maxLen over the raw
// strings. Two empty strings are identical.
func levenshteinSimilarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

// wordJaccard is the Jaccard index over normalized token sets.
func wordJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

// tokenSet lowercases, strips punctuation, and splits on whitespace.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range normalizeTokens(s) {
		set[tok] = struct{}{}
	}
	return set
}

func normalizeTokens(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, s)
	return strings.Fields(cleaned)
}

// longestCommonSubstring returns the longest contiguous substring shared by a
// and b together with its starting rune offsets in each. Ties resolve to the
// earliest occurrence in a.
func longestCommonSubstring(a, b string) (common string, aStart, bStart int) {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return "", 0, 0
	}

	// Rolling single-row DP: row[j] is the length of the common suffix of
	// ra[:i+1] and rb[:j+1].
	row := make([]int, len(rb)+1)
	best, bestA, bestB := 0, 0, 0
	for i := 1; i <= len(ra); i++ {
		prevDiag := 0
		for j := 1; j <= len(rb); j++ {
			cur := row[j]
			if ra[i-1] == rb[j-1] {
				row[j] = prevDiag + 1
				if row[j] > best {
					best = row[j]
					bestA = i - best
					bestB = j - best
				}
			} else {
				row[j] = 0
			}
			prevDiag = cur
		}
	}

	if best == 0 {
		return "", 0, 0
	}
	return string(ra[bestA : bestA+best]), bestA, bestB
}

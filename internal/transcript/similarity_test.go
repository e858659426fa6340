package transcript

import (
	"math"
	"testing"
)

func TestCombinedSimilarity_Reflexive(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"a",
		"the patient has a fever",
		"Blood pressure 120 over 80.",
	} {
		if got := CombinedSimilarity(s, s); math.Abs(got-1) > 1e-9 {
			t.Errorf("CombinedSimilarity(%q, same) = %v, want 1", s, got)
		}
	}
}

func TestCombinedSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"the patient has a fever", "patient has a fever and cough"},
		{"short", "a considerably longer and different sentence"},
		{"", "nonempty"},
	}
	for _, p := range pairs {
		ab := CombinedSimilarity(p[0], p[1])
		ba := CombinedSimilarity(p[1], p[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("CombinedSimilarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
	}
}

func TestCombinedSimilarity_Bounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
	}{
		{"", ""},
		{"abc", "xyz"},
		{"patient", "patient"},
		{"one two three", "four five six"},
	}
	for _, c := range cases {
		got := CombinedSimilarity(c.a, c.b)
		if got < 0 || got > 1 {
			t.Errorf("CombinedSimilarity(%q, %q) = %v, want within [0,1]", c.a, c.b, got)
		}
	}
}

func TestWordJaccard_IgnoresCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	if got := wordJaccard("The patient, has a fever!", "the patient has a fever"); math.Abs(got-1) > 1e-9 {
		t.Errorf("wordJaccard = %v, want 1 after normalization", got)
	}
}

func TestLongestCommonSubstring(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b       string
		common     string
		aStart     int
		bStart     int
	}{
		{"the patient has a fever", "patient has a fever and cough", "patient has a fever", 4, 0},
		{"abc", "xyz", "", 0, 0},
		{"", "anything", "", 0, 0},
		{"overlap", "overlap", "overlap", 0, 0},
	}
	for _, c := range cases {
		common, aStart, bStart := longestCommonSubstring(c.a, c.b)
		if common != c.common || aStart != c.aStart || bStart != c.bStart {
			t.Errorf("longestCommonSubstring(%q, %q) = (%q, %d, %d), want (%q, %d, %d)",
				c.a, c.b, common, aStart, bStart, c.common, c.aStart, c.bStart)
		}
	}
}

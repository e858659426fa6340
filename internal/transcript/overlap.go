// Package transcript reconciles overlapping transcription segments into a
// single coherent transcript.
//
// The capture pipeline prepends each audio chunk with the tail of its
// predecessor so transcription context spans batch boundaries. The price is
// that adjacent chunks transcribe the shared audio twice, producing textual
// near-duplicates. Processor detects those duplicates with combined
// string-similarity metrics and merges them, preferring the higher-confidence
// rendering and splicing around the common span where possible.
package transcript

import (
	"strings"
	"time"

	"github.com/nxtwrld/medscribe/pkg/stt"
)

const (
	defaultOverlapThreshold = 0.7
	defaultMergeThreshold   = 0.8

	// Confidence model constants.
	lcsBonusWeight       = 0.2
	timestampBonus       = 0.1
	timestampWindow      = 5 * time.Second
	confidenceBonusScale = 0.2
	vocabTermBonus       = 0.05
	vocabBonusCap        = 0.15
	timeoutPenalty       = 0.1

	// mergeRecommended additionally requires the overlap confidence to clear
	// this floor.
	recommendConfidenceFloor = 0.7

	// duplicateSimilarity is the pairwise similarity at which two texts in a
	// merge group are treated as renderings of the same audio.
	duplicateSimilarity = 0.8

	// spliceMinLCSRatio is the minimum LCS length, relative to the shorter
	// text, for splice-merging instead of concatenation.
	spliceMinLCSRatio = 0.3
)

// medicalVocabulary biases overlap confidence toward consultation-typical
// terms: two fragments sharing domain vocabulary are more likely to be the
// same utterance than generic small talk.
var medicalVocabulary = []string{
	"patient", "doctor", "symptom", "symptoms", "diagnosis", "treatment",
	"medication", "prescription", "dose", "dosage", "allergy", "allergies",
	"fever", "cough", "pain", "headache", "nausea", "dizziness", "fatigue",
	"infection", "inflammation", "chronic", "acute", "blood", "pressure",
	"heart", "chest", "abdomen", "breathing", "temperature", "pulse",
	"injury", "fracture", "swelling", "rash", "tablet", "injection",
}

// Config tunes overlap detection and merging. Zero values take defaults.
type Config struct {
	// OverlapThreshold is the combined similarity at which an adjacent pair
	// is declared overlapping. Default: 0.7.
	OverlapThreshold float64

	// MergeThreshold is the combined similarity required (together with a
	// confidence above 0.7) to recommend merging. Default: 0.8.
	MergeThreshold float64

	// Vocabulary overrides the domain term list used for the confidence
	// bonus. Default: a medical consultation vocabulary.
	Vocabulary []string
}

func (c Config) withDefaults() Config {
	if c.OverlapThreshold <= 0 {
		c.OverlapThreshold = defaultOverlapThreshold
	}
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = defaultMergeThreshold
	}
	if c.Vocabulary == nil {
		c.Vocabulary = medicalVocabulary
	}
	return c
}

// Overlap describes one detected textual overlap between adjacent segments.
type Overlap struct {
	// AIndex and BIndex are the positions of the pair in the input slice.
	AIndex, BIndex int

	// Similarity is the combined string similarity of the pair.
	Similarity float64

	// Common is the longest common substring of the pair, i.e. the likely
	// doubly-transcribed span.
	Common string

	// Confidence estimates how likely the pair really is an overlap
	// artifact, in [0,1].
	Confidence float64

	// MergeRecommended reports that the pair clears both the merge
	// similarity threshold and the confidence floor.
	MergeRecommended bool
}

// Stats summarises a merge pass for observability.
type Stats struct {
	// TotalSegments is the input segment count.
	TotalSegments int

	// MergedSegments is the number of segments absorbed into another during
	// merging.
	MergedSegments int

	// DuplicatesRemoved is the number of text pairs collapsed as pure
	// duplicates.
	DuplicatesRemoved int

	// AverageConfidence is the mean confidence of the output segments.
	AverageConfidence float64
}

// Merged is the consolidated output of a merge pass.
type Merged struct {
	// Text is the full reconciled transcript.
	Text string

	// Confidence is the length-weighted confidence over the output.
	Confidence float64

	// Segments are the surviving segments, merged where recommended.
	Segments []stt.Segment

	// Overlaps are the detections the merge was based on.
	Overlaps []Overlap

	// Stats carries the merge diagnostics.
	Stats Stats
}

// Processor detects and merges overlap artifacts. Stateless and safe for
// concurrent use.
type Processor struct {
	cfg   Config
	vocab map[string]struct{}
}

// NewProcessor creates a Processor with the given tuning.
func NewProcessor(cfg Config) *Processor {
	cfg = cfg.withDefaults()
	vocab := make(map[string]struct{}, len(cfg.Vocabulary))
	for _, term := range cfg.Vocabulary {
		vocab[strings.ToLower(term)] = struct{}{}
	}
	return &Processor{cfg: cfg, vocab: vocab}
}

// DetectOverlaps compares each adjacent segment pair and reports pairs whose
// combined similarity clears the overlap threshold. Empty or whitespace-only
// segments are skipped and never counted as overlaps.
func (p *Processor) DetectOverlaps(segments []stt.Segment) []Overlap {
	var overlaps []Overlap
	for i := 0; i+1 < len(segments); i++ {
		a, b := segments[i], segments[i+1]
		if a.Empty() || b.Empty() {
			continue
		}

		sim := CombinedSimilarity(a.Text, b.Text)
		if sim < p.cfg.OverlapThreshold {
			continue
		}

		common, _, _ := longestCommonSubstring(a.Text, b.Text)
		conf := p.overlapConfidence(a, b, sim, common)
		overlaps = append(overlaps, Overlap{
			AIndex:           i,
			BIndex:           i + 1,
			Similarity:       sim,
			Common:           common,
			Confidence:       conf,
			MergeRecommended: sim >= p.cfg.MergeThreshold && conf > recommendConfidenceFloor,
		})
	}
	return overlaps
}

// overlapConfidence scores how likely a detected pair is a genuine overlap
// artifact: the base similarity plus bonuses for a long shared span, temporal
// proximity, transcription confidence, and shared domain vocabulary, minus a
// penalty when either side came from stuck-speech recovery.
func (p *Processor) overlapConfidence(a, b stt.Segment, sim float64, common string) float64 {
	conf := sim

	shorter := min(len([]rune(a.Text)), len([]rune(b.Text)))
	if shorter > 0 {
		conf += float64(len([]rune(common))) / float64(shorter) * lcsBonusWeight
	}

	if gap := a.Timestamp.Sub(b.Timestamp).Abs(); gap <= timestampWindow {
		conf += timestampBonus
	}

	avg := (a.Confidence + b.Confidence) / 2
	conf += (avg - 0.5) * confidenceBonusScale

	conf += min(float64(p.sharedVocab(a.Text, b.Text))*vocabTermBonus, vocabBonusCap)

	if a.TimeoutForced || b.TimeoutForced {
		conf -= timeoutPenalty
	}

	return min(max(conf, 0), 1)
}

// sharedVocab counts domain terms present in both texts.
func (p *Processor) sharedVocab(a, b string) int {
	at := tokenSet(a)
	bt := tokenSet(b)
	n := 0
	for term := range p.vocab {
		if _, ok := at[term]; !ok {
			continue
		}
		if _, ok := bt[term]; ok {
			n++
		}
	}
	return n
}

// MergeSegments runs detection and merges every run of segments linked by
// recommended overlaps. Segments not involved in a recommended overlap pass
// through unchanged, in order.
func (p *Processor) MergeSegments(segments []stt.Segment) Merged {
	overlaps := p.DetectOverlaps(segments)

	// Adjacent-pair links make merge groups simple runs: linked[i] means
	// segments i and i+1 belong to the same group.
	linked := make([]bool, max(len(segments)-1, 0))
	for _, o := range overlaps {
		if o.MergeRecommended {
			linked[o.AIndex] = true
		}
	}

	out := Merged{Overlaps: overlaps}
	out.Stats.TotalSegments = len(segments)

	for start := 0; start < len(segments); {
		end := start
		for end < len(linked) && linked[end] {
			end++
		}
		group := segments[start : end+1]
		if len(group) == 1 {
			out.Segments = append(out.Segments, group[0])
		} else {
			merged, dups := p.mergeGroup(group)
			out.Segments = append(out.Segments, merged)
			out.Stats.MergedSegments += len(group) - 1
			out.Stats.DuplicatesRemoved += dups
		}
		start = end + 1
	}

	texts := make([]string, 0, len(out.Segments))
	var confSum, weightSum float64
	for _, s := range out.Segments {
		texts = append(texts, s.Text)
		out.Stats.AverageConfidence += s.Confidence
		w := float64(len(s.Text))
		confSum += s.Confidence * w
		weightSum += w
	}
	if n := len(out.Segments); n > 0 {
		out.Stats.AverageConfidence /= float64(n)
	}
	out.Text = strings.Join(texts, " ")
	if weightSum > 0 {
		out.Confidence = confSum / weightSum
	}
	return out
}

// mergeGroup folds a run of linked segments into one, using the
// highest-confidence member as the base. Returns the merged segment and the
// number of pure duplicates collapsed along the way.
func (p *Processor) mergeGroup(group []stt.Segment) (stt.Segment, int) {
	baseIdx := 0
	for i, s := range group {
		if s.Confidence > group[baseIdx].Confidence {
			baseIdx = i
		}
	}
	base := group[baseIdx]

	text := base.Text
	dups := 0
	for i, s := range group {
		if i == baseIdx {
			continue
		}
		var wasDup bool
		text, wasDup = mergeTexts(text, s.Text)
		if wasDup {
			dups++
		}
	}

	// Length-weighted average confidence, capped at the best member.
	var confSum, weightSum, maxConf float64
	earliest := group[0].Timestamp
	forced := false
	for _, s := range group {
		w := float64(len(s.Text))
		confSum += s.Confidence * w
		weightSum += w
		maxConf = max(maxConf, s.Confidence)
		if s.Timestamp.Before(earliest) {
			earliest = s.Timestamp
		}
		forced = forced || s.TimeoutForced
	}
	conf := maxConf
	if weightSum > 0 {
		conf = min(confSum/weightSum, maxConf)
	}

	merged := base
	merged.Text = text
	merged.Confidence = conf
	merged.Timestamp = earliest
	merged.ChunkSequence = group[0].ChunkSequence
	merged.TimeoutForced = forced
	return merged, dups
}

// mergeTexts combines two renderings of (partially) shared audio. Reports
// whether b was collapsed as a pure duplicate of a.
func mergeTexts(a, b string) (string, bool) {
	if CombinedSimilarity(a, b) >= duplicateSimilarity {
		// Same text twice; keep the longer rendering.
		if len(b) > len(a) {
			return b, true
		}
		return a, true
	}

	common, aStart, bStart := longestCommonSubstring(a, b)
	ra := []rune(a)
	rb := []rune(b)
	shorter := min(len(ra), len(rb))
	if shorter > 0 && float64(len([]rune(common))) >= spliceMinLCSRatio*float64(shorter) {
		// Splice around the shared span: base prefix, the common span, then
		// whichever suffix carries more content.
		aSuffix := string(ra[aStart+len([]rune(common)):])
		bSuffix := string(rb[bStart+len([]rune(common)):])
		suffix := aSuffix
		if len(bSuffix) > len(aSuffix) {
			suffix = bSuffix
		}
		return string(ra[:aStart]) + common + suffix, false
	}

	return a + " " + b, false
}

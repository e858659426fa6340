package audio

import "math"

// defaultSilenceRMS is the RMS level below which a frame is flagged silent.
// 0.009 on the normalised scale corresponds to roughly 300/32768 in 16-bit
// PCM units, near-silence for consultation-room recordings.
const defaultSilenceRMS = 0.009

// Extractor converts raw PCM frames into per-frame signal features.
type Extractor interface {
	Extract(frame Frame) Features
}

// RMSExtractor is the default Extractor. It computes energy as the mean
// squared amplitude, volume as the mean absolute amplitude, and flags a frame
// silent when its RMS level falls below the configured threshold.
//
// The zero value is not usable; construct with NewRMSExtractor. An
// RMSExtractor is read-only after construction and safe for concurrent use.
type RMSExtractor struct {
	silenceRMS float64
}

var _ Extractor = (*RMSExtractor)(nil)

// ExtractorOption configures an RMSExtractor.
type ExtractorOption func(*RMSExtractor)

// WithSilenceRMS sets the RMS level below which frames are flagged silent.
// Default: 0.009.
func WithSilenceRMS(threshold float64) ExtractorOption {
	return func(e *RMSExtractor) {
		e.silenceRMS = threshold
	}
}

// NewRMSExtractor returns an RMSExtractor configured with the supplied options.
func NewRMSExtractor(opts ...ExtractorOption) *RMSExtractor {
	e := &RMSExtractor{silenceRMS: defaultSilenceRMS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract computes the signal summary for one frame.
func (e *RMSExtractor) Extract(frame Frame) Features {
	var sumSq, sumAbs float64
	for _, s := range frame.Samples {
		v := float64(s)
		sumSq += v * v
		sumAbs += math.Abs(v)
	}

	n := float64(len(frame.Samples))
	feat := Features{Timestamp: frame.Timestamp}
	if n == 0 {
		feat.Silence = true
		return feat
	}

	feat.Energy = sumSq / n
	feat.Volume = sumAbs / n
	feat.Silence = math.Sqrt(feat.Energy) < e.silenceRMS
	return feat
}

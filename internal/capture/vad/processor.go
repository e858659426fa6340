// Package vad implements frame-level voice activity detection with
// hysteresis and stuck-speech detection.
//
// The Processor consumes per-frame signal features (energy, volume, silence
// flag) and runs a speech/silence state machine: a frame counts as speech
// when at least two of the three criteria agree, speech starts only after a
// run of consecutive speech frames, and ends only after both a minimum
// utterance duration and a run of consecutive silence frames. The majority
// vote avoids single-criterion false triggers; the hysteresis avoids flapping
// on breath pauses.
//
// Independently of the hysteresis, a stall.Detector watches for segments
// that never end — either by raw duration or by energy-pattern anomalies —
// and forces the stop decision when one is found.
//
// A Processor is not safe for concurrent use; the capture session serializes
// access to it.
package vad

import (
	"math"
	"sort"
	"time"

	"github.com/nxtwrld/medscribe/internal/capture/stall"
	"github.com/nxtwrld/medscribe/internal/ringbuf"
	"github.com/nxtwrld/medscribe/pkg/audio"
)

// frameInterval is the nominal feature-frame spacing the hysteresis frame
// counts are derived from.
const frameInterval = 100 * time.Millisecond

const (
	// maxStartFrames caps the consecutive-speech-frame requirement so that
	// long MinSpeechDuration settings do not delay capture start.
	maxStartFrames = 3

	// maxStopFrames caps the consecutive-silence-frame requirement.
	maxStopFrames = 10

	// recentWindow is the number of trailing energy samples treated as
	// "recent" for the SNR estimate.
	recentWindow = 5

	// patternWindow is the number of trailing energy samples examined by the
	// stuck-speech pattern heuristics.
	patternWindow = 10
)

// Decision is the per-frame output of the Processor. It is a value returned
// per call and not retained.
type Decision struct {
	// Speaking reports whether the state machine currently considers the
	// stream to be inside a speech segment, after applying this frame.
	Speaking bool

	// Confidence estimates how speech-like the current signal is, in [0,1].
	Confidence float64

	// StartCapture is true exactly on the frame where a speech segment
	// opens; the consumer should begin accumulating samples.
	StartCapture bool

	// EndCapture is true exactly on the frame where a speech segment
	// closes, naturally or by timeout.
	EndCapture bool

	// Timeout is true when the segment was force-closed as stuck.
	Timeout bool

	// TimeoutReason identifies the heuristic that fired when Timeout is set.
	TimeoutReason stall.Reason

	// EnergyLevel is the frame's energy as observed.
	EnergyLevel float64

	// EnergyVariance is the variance over the recent pattern window.
	EnergyVariance float64
}

// Thresholds is a read-only suggestion derived from recent signal history;
// see Processor.AdaptiveThresholds.
type Thresholds struct {
	// Silence is the suggested silence RMS level (25th percentile energy).
	Silence float64

	// Energy is the suggested speech-vote energy threshold (50th percentile).
	Energy float64

	// Speech is the suggested volume threshold (75th percentile energy).
	Speech float64
}

// Processor is the hysteresis-based speech/silence state machine.
type Processor struct {
	cfg Config

	speaking      bool
	speechStart   time.Time
	consecSpeech  int
	consecSilence int

	history  *ringbuf.Ring[float64]
	detector *stall.Detector
}

// NewProcessor creates a Processor. Zero-value config fields are replaced
// with balanced defaults.
func NewProcessor(cfg Config) *Processor {
	p := &Processor{}
	p.init(cfg.withDefaults())
	return p
}

// init (re)builds all state from cfg. Reset and UpdateConfig funnel through
// here so that post-Reset state is identical to post-construction state.
func (p *Processor) init(cfg Config) {
	p.cfg = cfg
	p.speaking = false
	p.speechStart = time.Time{}
	p.consecSpeech = 0
	p.consecSilence = 0
	p.history = ringbuf.New[float64](cfg.HistoryCapacity)
	p.detector = stall.New(stall.Config{
		MaxActiveDuration: cfg.MaxSpeechDuration,
		GracePeriod:       cfg.TimeoutGracePeriod,
		WindowSize:        patternWindow,
		EnergyFloor:       cfg.TimeoutEnergyThreshold,
		VarianceFloor:     cfg.TimeoutVarianceThreshold,
		HistoryCapacity:   cfg.HistoryCapacity,
	})
}

// Reset reinitializes all state fields identically to construction.
func (p *Processor) Reset() {
	p.init(p.cfg)
}

// UpdateConfig merges the non-nil override fields into the current
// configuration. Detection state is preserved; only thresholds change.
func (p *Processor) UpdateConfig(o Overrides) {
	p.cfg = o.apply(p.cfg)
	p.detector.Retune(stall.Config{
		MaxActiveDuration: p.cfg.MaxSpeechDuration,
		GracePeriod:       p.cfg.TimeoutGracePeriod,
		WindowSize:        patternWindow,
		EnergyFloor:       p.cfg.TimeoutEnergyThreshold,
		VarianceFloor:     p.cfg.TimeoutVarianceThreshold,
		HistoryCapacity:   p.cfg.HistoryCapacity,
	})
}

// Config returns the active configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Speaking reports whether the processor is currently inside a speech segment.
func (p *Processor) Speaking() bool {
	return p.speaking
}

// startFrames returns the consecutive-speech-frame requirement:
// min(ceil(MinSpeechDuration/100ms), 3).
func (p *Processor) startFrames() int {
	n := int((p.cfg.MinSpeechDuration + frameInterval - 1) / frameInterval)
	if n < 1 {
		n = 1
	}
	if n > maxStartFrames {
		n = maxStartFrames
	}
	return n
}

// stopFrames returns the consecutive-silence-frame requirement:
// min(ceil(MaxSilenceDuration/100ms), 10).
func (p *Processor) stopFrames() int {
	n := int((p.cfg.MaxSilenceDuration + frameInterval - 1) / frameInterval)
	if n < 1 {
		n = 1
	}
	if n > maxStopFrames {
		n = maxStopFrames
	}
	return n
}

// ProcessFrame consumes one frame's features and returns the detection
// decision for it.
func (p *Processor) ProcessFrame(f audio.Features) Decision {
	p.history.Push(f.Energy)
	p.detector.Observe(f.Energy)

	speechFrame := p.isSpeechFrame(f)
	if speechFrame {
		p.consecSpeech++
		p.consecSilence = 0
	} else {
		p.consecSilence++
		p.consecSpeech = 0
	}

	_, variance := p.detector.WindowStats()
	d := Decision{
		Speaking:       p.speaking,
		Confidence:     p.confidence(f),
		EnergyLevel:    f.Energy,
		EnergyVariance: variance,
	}

	if !p.speaking {
		if p.consecSpeech >= p.startFrames() {
			p.speaking = true
			p.speechStart = f.Timestamp
			p.detector.Reset()
			d.Speaking = true
			d.StartCapture = true
		}
		return d
	}

	speechFor := f.Timestamp.Sub(p.speechStart)

	// Stuck-speech timeout overrides the hysteresis entirely.
	if reason := p.detector.Check(speechFor); reason != stall.ReasonNone {
		p.closeSegment()
		d.Speaking = false
		d.EndCapture = true
		d.Timeout = true
		d.TimeoutReason = reason
		return d
	}

	// Natural end: minimum utterance length served AND enough trailing
	// silence observed.
	if speechFor >= p.cfg.MinSpeechDuration && p.consecSilence >= p.stopFrames() {
		p.closeSegment()
		d.Speaking = false
		d.EndCapture = true
	}
	return d
}

func (p *Processor) closeSegment() {
	p.speaking = false
	p.speechStart = time.Time{}
	p.consecSpeech = 0
	p.consecSilence = 0
}

// isSpeechFrame applies the 2-of-3 majority vote: energy above threshold,
// volume above threshold, and the extractor not flagging silence.
func (p *Processor) isSpeechFrame(f audio.Features) bool {
	votes := 0
	if f.Energy > p.cfg.EnergyThreshold {
		votes++
	}
	if f.Volume > p.cfg.SpeechThreshold {
		votes++
	}
	if !f.Silence {
		votes++
	}
	return votes >= 2
}

// confidence estimates how speech-like the frame is: a weighted sum of the
// recent-vs-historical energy ratio (SNR estimate, weight 0.4), the energy
// ratio against its threshold (0.3), and the volume ratio against its
// threshold (0.3). Each term is clamped to [0,1] before weighting.
func (p *Processor) confidence(f audio.Features) float64 {
	const eps = 1e-10

	recent := p.history.Last(recentWindow)
	var recentMean float64
	for _, e := range recent {
		recentMean += e
	}
	if len(recent) > 0 {
		recentMean /= float64(len(recent))
	}

	all := p.history.Slice()
	var histMean float64
	for _, e := range all {
		histMean += e
	}
	if len(all) > 0 {
		histMean /= float64(len(all))
	}

	// Speech typically carries several times the energy of the rolling
	// background; a 4x ratio maps to full SNR score.
	snr := clamp01(recentMean / (histMean*4 + eps))
	energyRatio := clamp01(f.Energy / (p.cfg.EnergyThreshold * 10))
	volumeRatio := clamp01(f.Volume / (p.cfg.SpeechThreshold * 10))

	return 0.4*snr + 0.3*energyRatio + 0.3*volumeRatio
}

// AdaptiveThresholds derives suggested thresholds from percentile statistics
// of the recent energy history: the 25th percentile approximates the noise
// floor, the 50th a conservative speech-vote energy level, and the 75th a
// volume gate. The suggestion is read-only — it is never applied
// automatically. Returns false when too little history has accumulated.
func (p *Processor) AdaptiveThresholds() (Thresholds, bool) {
	samples := p.history.Slice()
	if len(samples) < patternWindow {
		return Thresholds{}, false
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	return Thresholds{
		Silence: math.Sqrt(percentile(sorted, 0.25)),
		Energy:  percentile(sorted, 0.50),
		Speech:  percentile(sorted, 0.75),
	}, true
}

// percentile returns the pth (0..1) percentile of sorted via nearest-rank.
func percentile(sorted []float64, pth float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(pth * float64(len(sorted)-1))
	return sorted[idx]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

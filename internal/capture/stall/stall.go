// Package stall detects stuck speech activity from an energy sample stream.
//
// The central type is Detector, a windowed heuristic that decides whether an
// ongoing speech segment should be force-closed. It serves two consumers at
// different sampling granularities: the VAD observes it per audio frame
// (~100 ms), the capture session per utterance push. Both share the same
// three heuristics:
//
//   - duration: the segment has simply run longer than the hard cap.
//   - energy pattern: the recent mean energy dropped below a floor — the VAD
//     believes someone is speaking but the signal has gone quiet.
//   - variance pattern: the recent energy is non-trivial but essentially
//     unchanging (e.g., line hum or a feedback tone holding the VAD open).
//
// A Detector is not safe for concurrent use; each consumer owns its own
// instance and serializes access.
package stall

import (
	"time"

	"github.com/nxtwrld/medscribe/internal/ringbuf"
)

// Reason identifies which heuristic declared the activity stuck.
type Reason int

const (
	// ReasonNone means the activity is healthy.
	ReasonNone Reason = iota

	// ReasonDuration means the segment exceeded the maximum active duration.
	ReasonDuration

	// ReasonEnergyPattern means recent mean energy fell below the floor.
	ReasonEnergyPattern

	// ReasonVariancePattern means recent energy is sustained but unchanging.
	ReasonVariancePattern
)

// String returns the wire/log name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDuration:
		return "duration"
	case ReasonEnergyPattern:
		return "energy_pattern"
	case ReasonVariancePattern:
		return "variance_pattern"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a Detector. All values are empirically chosen
// defaults, not invariants; zero-value fields are replaced at construction.
type Config struct {
	// MaxActiveDuration is the hard cap on a single speech segment.
	// Default: 30s.
	MaxActiveDuration time.Duration

	// GracePeriod suppresses the pattern heuristics until the segment has
	// been active this long, so short utterances are never flagged.
	// Default: 5s.
	GracePeriod time.Duration

	// WindowSize is the number of recent energy samples examined by the
	// pattern heuristics. Default: 10.
	WindowSize int

	// EnergyFloor is the mean-energy level below which an "active" segment
	// is considered silent. Default: 0.001.
	EnergyFloor float64

	// VarianceFloor is the energy-variance level below which a sustained
	// signal is considered unchanging. Default: 0.0001.
	VarianceFloor float64

	// MinMeanEnergy gates the variance heuristic: variance only indicates a
	// stuck signal when the mean energy is non-trivial. Default: 0.0005.
	MinMeanEnergy float64

	// HistoryCapacity bounds the retained energy history. Default: 50.
	HistoryCapacity int
}

// withDefaults returns cfg with zero-value fields replaced.
func (c Config) withDefaults() Config {
	if c.MaxActiveDuration <= 0 {
		c.MaxActiveDuration = 30 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	if c.EnergyFloor <= 0 {
		c.EnergyFloor = 0.001
	}
	if c.VarianceFloor <= 0 {
		c.VarianceFloor = 0.0001
	}
	if c.MinMeanEnergy <= 0 {
		c.MinMeanEnergy = 0.0005
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = 50
	}
	return c
}

// Detector accumulates energy samples for one activity stream and reports
// whether the stream looks stuck.
type Detector struct {
	cfg     Config
	history *ringbuf.Ring[float64]
}

// New creates a Detector with the supplied configuration. Zero-value config
// fields are replaced with defaults.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:     cfg,
		history: ringbuf.New[float64](cfg.HistoryCapacity),
	}
}

// Observe records one energy sample.
func (d *Detector) Observe(energy float64) {
	d.history.Push(energy)
}

// Check evaluates the heuristics for a segment that has been active for
// activeFor. It returns ReasonNone while the segment looks healthy.
//
// The duration heuristic applies unconditionally. The pattern heuristics
// require the grace period to have elapsed and a full sample window to be
// available, so a detector that has seen too few samples never fires on
// patterns alone.
func (d *Detector) Check(activeFor time.Duration) Reason {
	if activeFor > d.cfg.MaxActiveDuration {
		return ReasonDuration
	}
	if activeFor < d.cfg.GracePeriod {
		return ReasonNone
	}

	window := d.history.Last(d.cfg.WindowSize)
	if len(window) < d.cfg.WindowSize {
		return ReasonNone
	}

	mean, variance := meanVariance(window)
	if mean < d.cfg.EnergyFloor {
		return ReasonEnergyPattern
	}
	if variance < d.cfg.VarianceFloor && mean > d.cfg.MinMeanEnergy {
		return ReasonVariancePattern
	}
	return ReasonNone
}

// Retune replaces the detector's thresholds while keeping the accumulated
// energy history, so a mid-segment configuration change does not blind the
// pattern heuristics. Zero-value config fields are replaced with defaults.
func (d *Detector) Retune(cfg Config) {
	cfg = cfg.withDefaults()
	if cfg.HistoryCapacity != d.cfg.HistoryCapacity {
		old := d.history.Slice()
		d.history = ringbuf.New[float64](cfg.HistoryCapacity)
		for _, e := range old {
			d.history.Push(e)
		}
	}
	d.cfg = cfg
}

// Reset discards the accumulated energy history, e.g., when a new speech
// segment starts.
func (d *Detector) Reset() {
	d.history.Reset()
}

// WindowStats returns the mean and variance of the current sample window.
// Exposed for observability; the values match what Check evaluates.
func (d *Detector) WindowStats() (mean, variance float64) {
	window := d.history.Last(d.cfg.WindowSize)
	if len(window) == 0 {
		return 0, 0
	}
	return meanVariance(window)
}

func meanVariance(samples []float64) (mean, variance float64) {
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return mean, variance
}

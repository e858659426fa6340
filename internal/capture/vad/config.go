package vad

import "time"

// Config holds the tunable thresholds for a Processor. All values are
// empirically chosen defaults; zero-value fields are replaced at
// construction with the balanced defaults below.
type Config struct {
	// EnergyThreshold is the mean-squared-amplitude level above which a
	// frame counts toward the speech vote. Default: 0.01.
	EnergyThreshold float64

	// SpeechThreshold is the mean-absolute-amplitude (volume) level above
	// which a frame counts toward the speech vote. Default: 0.02.
	SpeechThreshold float64

	// SilenceThreshold is the RMS level treated as silence when deriving
	// adaptive thresholds and configuring feature extraction. Default: 0.005.
	SilenceThreshold float64

	// MinSpeechDuration is the minimum utterance length. Speech may not end
	// before it has elapsed, and the start hysteresis is derived from it.
	// Default: 300ms.
	MinSpeechDuration time.Duration

	// MaxSilenceDuration is how much trailing silence ends an utterance; the
	// stop hysteresis frame count is derived from it. Default: 800ms.
	MaxSilenceDuration time.Duration

	// MaxSpeechDuration is the hard cap after which a speech segment is
	// force-closed as stuck. Default: 30s.
	MaxSpeechDuration time.Duration

	// TimeoutGracePeriod suppresses the energy/variance stuck heuristics for
	// the first part of every segment. Default: 5s.
	TimeoutGracePeriod time.Duration

	// TimeoutEnergyThreshold is the recent-mean-energy floor below which an
	// open segment is considered stuck. Default: 0.001.
	TimeoutEnergyThreshold float64

	// TimeoutVarianceThreshold is the recent-energy-variance floor below
	// which a sustained signal is considered stuck. Default: 0.0001.
	TimeoutVarianceThreshold float64

	// HistoryCapacity bounds the rolling energy history. Default: 50.
	HistoryCapacity int
}

// withDefaults returns c with zero-value fields replaced.
func (c Config) withDefaults() Config {
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 0.01
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 0.02
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 0.005
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = 300 * time.Millisecond
	}
	if c.MaxSilenceDuration <= 0 {
		c.MaxSilenceDuration = 800 * time.Millisecond
	}
	if c.MaxSpeechDuration <= 0 {
		c.MaxSpeechDuration = 30 * time.Second
	}
	if c.TimeoutGracePeriod <= 0 {
		c.TimeoutGracePeriod = 5 * time.Second
	}
	if c.TimeoutEnergyThreshold <= 0 {
		c.TimeoutEnergyThreshold = 0.001
	}
	if c.TimeoutVarianceThreshold <= 0 {
		c.TimeoutVarianceThreshold = 0.0001
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = 50
	}
	return c
}

// Overrides is a partial Config for UpdateConfig. Nil fields keep their
// current values.
type Overrides struct {
	EnergyThreshold          *float64
	SpeechThreshold          *float64
	SilenceThreshold         *float64
	MinSpeechDuration        *time.Duration
	MaxSilenceDuration       *time.Duration
	MaxSpeechDuration        *time.Duration
	TimeoutGracePeriod       *time.Duration
	TimeoutEnergyThreshold   *float64
	TimeoutVarianceThreshold *float64
}

// apply merges o into c and returns the result.
func (o Overrides) apply(c Config) Config {
	if o.EnergyThreshold != nil {
		c.EnergyThreshold = *o.EnergyThreshold
	}
	if o.SpeechThreshold != nil {
		c.SpeechThreshold = *o.SpeechThreshold
	}
	if o.SilenceThreshold != nil {
		c.SilenceThreshold = *o.SilenceThreshold
	}
	if o.MinSpeechDuration != nil {
		c.MinSpeechDuration = *o.MinSpeechDuration
	}
	if o.MaxSilenceDuration != nil {
		c.MaxSilenceDuration = *o.MaxSilenceDuration
	}
	if o.MaxSpeechDuration != nil {
		c.MaxSpeechDuration = *o.MaxSpeechDuration
	}
	if o.TimeoutGracePeriod != nil {
		c.TimeoutGracePeriod = *o.TimeoutGracePeriod
	}
	if o.TimeoutEnergyThreshold != nil {
		c.TimeoutEnergyThreshold = *o.TimeoutEnergyThreshold
	}
	if o.TimeoutVarianceThreshold != nil {
		c.TimeoutVarianceThreshold = *o.TimeoutVarianceThreshold
	}
	return c
}

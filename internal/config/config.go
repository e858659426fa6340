// Package config provides the configuration schema, loader, presets, and file
// watcher for the medscribe capture service.
package config

import "log/slog"

// LogLevel controls log verbosity for the medscribe server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Preset names a bundled tuning profile for capture and overlap processing.
type Preset string

const (
	// PresetSensitive triggers on quiet speech and merges aggressively.
	PresetSensitive Preset = "sensitive"

	// PresetBalanced is the default profile.
	PresetBalanced Preset = "balanced"

	// PresetConservative requires louder, longer speech and merges only
	// near-certain duplicates.
	PresetConservative Preset = "conservative"

	// PresetMedical tolerates the long pauses of dictated consultation notes.
	PresetMedical Preset = "medical"

	// PresetTimeoutOptimized shortens the stuck-speech and batch windows for
	// flaky capture devices.
	PresetTimeoutOptimized Preset = "timeout-optimized"
)

// IsValid reports whether p is a recognised preset name.
func (p Preset) IsValid() bool {
	switch p {
	case PresetSensitive, PresetBalanced, PresetConservative, PresetMedical, PresetTimeoutOptimized:
		return true
	}
	return false
}

// Config is the root configuration structure for medscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	STT     STTConfig     `yaml:"stt"`
	Capture CaptureConfig `yaml:"capture"`
	Overlap OverlapConfig `yaml:"overlap"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health endpoint listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// STTConfig selects and configures the transcription backend.
type STTConfig struct {
	// Name selects the provider implementation ("deepgram", "whisper",
	// "mock").
	Name string `yaml:"name"`

	// APIKey is the authentication key for hosted providers.
	APIKey string `yaml:"api_key"`

	// ServerURL overrides the provider's default endpoint. For whisper this
	// is the whisper-server base URL (e.g., "http://localhost:8080").
	ServerURL string `yaml:"server_url"`

	// Model selects a specific model within the provider (e.g.,
	// "nova-3-medical", "base.en").
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language (e.g., "en", "de-DE").
	Language string `yaml:"language"`

	// Keywords lists vocabulary hints with their boost intensity, for
	// providers that support keyword boosting.
	Keywords []KeywordConfig `yaml:"keywords"`
}

// KeywordConfig is one recognition vocabulary hint.
type KeywordConfig struct {
	Keyword string  `yaml:"keyword"`
	Boost   float64 `yaml:"boost"`
}

// CaptureConfig tunes the VAD and the chunking pipeline. Zero values fall
// back to the active preset (or balanced defaults when no preset is named).
type CaptureConfig struct {
	// Preset selects a bundled tuning profile applied before the explicit
	// fields below; explicit non-zero fields win.
	Preset Preset `yaml:"preset"`

	// BatchDurationMs is the wall-clock batch flush cadence.
	BatchDurationMs int `yaml:"batch_duration_ms"`

	// MaxSpeechDurationMs is the stuck-speech timeout.
	MaxSpeechDurationMs int `yaml:"max_speech_duration_ms"`

	// OverlapDurationMs is the context-preservation tail carried across
	// batch boundaries.
	OverlapDurationMs int `yaml:"overlap_duration_ms"`

	// EnergyThreshold, SpeechThreshold, and SilenceThreshold are the VAD
	// decision levels over mean-square frame energy.
	EnergyThreshold  float64 `yaml:"energy_threshold"`
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// MinSpeechDurationMs and MaxSilenceDurationMs bound the start/stop
	// hysteresis.
	MinSpeechDurationMs  int `yaml:"min_speech_duration_ms"`
	MaxSilenceDurationMs int `yaml:"max_silence_duration_ms"`
}

// OverlapConfig tunes transcript overlap detection and merging.
type OverlapConfig struct {
	// OverlapThreshold is the combined similarity at which adjacent segments
	// are considered overlapping.
	OverlapThreshold float64 `yaml:"overlap_threshold"`

	// MergeThreshold is the combined similarity required to recommend a
	// merge.
	MergeThreshold float64 `yaml:"merge_threshold"`
}

// presetProfiles maps each preset name to the capture/overlap values it
// bundles. Balanced doubles as the fallback for unset fields.
var presetProfiles = map[Preset]struct {
	capture CaptureConfig
	overlap OverlapConfig
}{
	PresetBalanced: {
		capture: CaptureConfig{
			BatchDurationMs:      30000,
			MaxSpeechDurationMs:  30000,
			OverlapDurationMs:    5000,
			EnergyThreshold:      0.01,
			SpeechThreshold:      0.02,
			SilenceThreshold:     0.005,
			MinSpeechDurationMs:  300,
			MaxSilenceDurationMs: 800,
		},
		overlap: OverlapConfig{OverlapThreshold: 0.7, MergeThreshold: 0.8},
	},
	PresetSensitive: {
		capture: CaptureConfig{
			BatchDurationMs:      30000,
			MaxSpeechDurationMs:  30000,
			OverlapDurationMs:    5000,
			EnergyThreshold:      0.005,
			SpeechThreshold:      0.01,
			SilenceThreshold:     0.003,
			MinSpeechDurationMs:  200,
			MaxSilenceDurationMs: 600,
		},
		overlap: OverlapConfig{OverlapThreshold: 0.5, MergeThreshold: 0.55},
	},
	PresetConservative: {
		capture: CaptureConfig{
			BatchDurationMs:      30000,
			MaxSpeechDurationMs:  30000,
			OverlapDurationMs:    5000,
			EnergyThreshold:      0.02,
			SpeechThreshold:      0.04,
			SilenceThreshold:     0.008,
			MinSpeechDurationMs:  500,
			MaxSilenceDurationMs: 1000,
		},
		overlap: OverlapConfig{OverlapThreshold: 0.8, MergeThreshold: 0.85},
	},
	PresetMedical: {
		capture: CaptureConfig{
			BatchDurationMs:      30000,
			MaxSpeechDurationMs:  30000,
			OverlapDurationMs:    5000,
			EnergyThreshold:      0.01,
			SpeechThreshold:      0.02,
			SilenceThreshold:     0.005,
			MinSpeechDurationMs:  300,
			// Dictated notes pause mid-sentence; give them room.
			MaxSilenceDurationMs: 1200,
		},
		overlap: OverlapConfig{OverlapThreshold: 0.65, MergeThreshold: 0.75},
	},
	PresetTimeoutOptimized: {
		capture: CaptureConfig{
			BatchDurationMs:      20000,
			MaxSpeechDurationMs:  15000,
			OverlapDurationMs:    3000,
			EnergyThreshold:      0.01,
			SpeechThreshold:      0.02,
			SilenceThreshold:     0.005,
			MinSpeechDurationMs:  300,
			MaxSilenceDurationMs: 800,
		},
		overlap: OverlapConfig{OverlapThreshold: 0.7, MergeThreshold: 0.8},
	},
}

// ApplyPresets resolves the named preset (balanced when unset) and fills
// every zero field in Capture and Overlap from it. Explicit values in the
// file always win over the preset.
func (c *Config) ApplyPresets() {
	preset := c.Capture.Preset
	if preset == "" {
		preset = PresetBalanced
	}
	profile, ok := presetProfiles[preset]
	if !ok {
		profile = presetProfiles[PresetBalanced]
	}

	cc := &c.Capture
	if cc.BatchDurationMs == 0 {
		cc.BatchDurationMs = profile.capture.BatchDurationMs
	}
	if cc.MaxSpeechDurationMs == 0 {
		cc.MaxSpeechDurationMs = profile.capture.MaxSpeechDurationMs
	}
	if cc.OverlapDurationMs == 0 {
		cc.OverlapDurationMs = profile.capture.OverlapDurationMs
	}
	if cc.EnergyThreshold == 0 {
		cc.EnergyThreshold = profile.capture.EnergyThreshold
	}
	if cc.SpeechThreshold == 0 {
		cc.SpeechThreshold = profile.capture.SpeechThreshold
	}
	if cc.SilenceThreshold == 0 {
		cc.SilenceThreshold = profile.capture.SilenceThreshold
	}
	if cc.MinSpeechDurationMs == 0 {
		cc.MinSpeechDurationMs = profile.capture.MinSpeechDurationMs
	}
	if cc.MaxSilenceDurationMs == 0 {
		cc.MaxSilenceDurationMs = profile.capture.MaxSilenceDurationMs
	}

	if c.Overlap.OverlapThreshold == 0 {
		c.Overlap.OverlapThreshold = profile.overlap.OverlapThreshold
	}
	if c.Overlap.MergeThreshold == 0 {
		c.Overlap.MergeThreshold = profile.overlap.MergeThreshold
	}
}

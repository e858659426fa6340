package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the provider names the service can construct.
// [Validate] warns about unrecognised names rather than failing, so a build
// with an out-of-tree provider still loads.
var ValidSTTProviders = []string{"deepgram", "whisper", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with presets applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies the preset fallbacks,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyPresets()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if name := cfg.STT.Name; name != "" && !slices.Contains(ValidSTTProviders, name) {
		slog.Warn("unknown stt provider name — may be a typo or third-party provider",
			"name", name,
			"known", ValidSTTProviders,
		)
	}
	switch cfg.STT.Name {
	case "deepgram":
		if cfg.STT.APIKey == "" {
			errs = append(errs, errors.New("stt.api_key is required for the deepgram provider"))
		}
	case "whisper":
		if cfg.STT.ServerURL == "" {
			errs = append(errs, errors.New("stt.server_url is required for the whisper provider"))
		}
	}
	for i, kw := range cfg.STT.Keywords {
		if kw.Keyword == "" {
			errs = append(errs, fmt.Errorf("stt.keywords[%d].keyword is required", i))
		}
	}

	cc := cfg.Capture
	if cc.Preset != "" && !cc.Preset.IsValid() {
		errs = append(errs, fmt.Errorf("capture.preset %q is invalid; valid values: sensitive, balanced, conservative, medical, timeout-optimized", cc.Preset))
	}
	for _, d := range []struct {
		name string
		ms   int
	}{
		{"capture.batch_duration_ms", cc.BatchDurationMs},
		{"capture.max_speech_duration_ms", cc.MaxSpeechDurationMs},
		{"capture.overlap_duration_ms", cc.OverlapDurationMs},
		{"capture.min_speech_duration_ms", cc.MinSpeechDurationMs},
		{"capture.max_silence_duration_ms", cc.MaxSilenceDurationMs},
	} {
		if d.ms < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", d.name, d.ms))
		}
	}
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"capture.energy_threshold", cc.EnergyThreshold},
		{"capture.speech_threshold", cc.SpeechThreshold},
		{"capture.silence_threshold", cc.SilenceThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("%s %.4f is out of range [0, 1]", th.name, th.v))
		}
	}
	if cc.OverlapDurationMs > 0 && cc.BatchDurationMs > 0 && cc.OverlapDurationMs >= cc.BatchDurationMs {
		errs = append(errs, fmt.Errorf("capture.overlap_duration_ms (%d) must be shorter than capture.batch_duration_ms (%d)", cc.OverlapDurationMs, cc.BatchDurationMs))
	}

	for _, th := range []struct {
		name string
		v    float64
	}{
		{"overlap.overlap_threshold", cfg.Overlap.OverlapThreshold},
		{"overlap.merge_threshold", cfg.Overlap.MergeThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("%s %.4f is out of range [0, 1]", th.name, th.v))
		}
	}

	return errors.Join(errs...)
}

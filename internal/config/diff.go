package config

// ConfigDiff describes what changed between two loaded configs.
// Only changes that can be applied without a restart are broken out:
// capture thresholds feed the live VAD via session overrides, and the log
// level swaps the slog handler level.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CaptureChanged is true when any VAD threshold or hysteresis duration
	// changed. Batch/overlap window changes are deliberately excluded; they
	// take effect on the next session start.
	CaptureChanged bool
	NewCapture     CaptureConfig

	// OverlapChanged is true when the transcript merge tuning changed.
	OverlapChanged bool
	NewOverlap     OverlapConfig

	// STTChanged is true when the transcription backend selection or its
	// credentials changed. Applying this requires a new provider, so the
	// watcher only reports it.
	STTChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if captureTuningChanged(old.Capture, new.Capture) {
		d.CaptureChanged = true
		d.NewCapture = new.Capture
	}

	if old.Overlap != new.Overlap {
		d.OverlapChanged = true
		d.NewOverlap = new.Overlap
	}

	if sttChanged(old.STT, new.STT) {
		d.STTChanged = true
	}

	return d
}

// captureTuningChanged compares only the hot-reloadable capture fields.
func captureTuningChanged(old, new CaptureConfig) bool {
	return old.EnergyThreshold != new.EnergyThreshold ||
		old.SpeechThreshold != new.SpeechThreshold ||
		old.SilenceThreshold != new.SilenceThreshold ||
		old.MinSpeechDurationMs != new.MinSpeechDurationMs ||
		old.MaxSilenceDurationMs != new.MaxSilenceDurationMs ||
		old.MaxSpeechDurationMs != new.MaxSpeechDurationMs
}

func sttChanged(old, new STTConfig) bool {
	if old.Name != new.Name || old.APIKey != new.APIKey ||
		old.ServerURL != new.ServerURL || old.Model != new.Model ||
		old.Language != new.Language {
		return true
	}
	if len(old.Keywords) != len(new.Keywords) {
		return true
	}
	for i := range old.Keywords {
		if old.Keywords[i] != new.Keywords[i] {
			return true
		}
	}
	return false
}

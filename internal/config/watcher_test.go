package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nxtwrld/medscribe/internal/config"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "medscribe.yaml")
	writeConfigFile(t, path, "capture:\n  preset: sensitive\n")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Capture.Preset; got != config.PresetSensitive {
		t.Errorf("Current().Capture.Preset = %q, want sensitive", got)
	}
}

func TestWatcher_InitialLoadFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "medscribe.yaml")
	writeConfigFile(t, path, "server:\n  log_level: loud\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher accepted an invalid config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "medscribe.yaml")
	writeConfigFile(t, path, "capture:\n  speech_threshold: 0.02\n")

	var mu sync.Mutex
	var gotNew *config.Config
	onChange := func(_, new *config.Config) {
		mu.Lock()
		gotNew = new
		mu.Unlock()
	}

	w, err := config.NewWatcher(path, onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate the mtime comparison by rewriting with different content.
	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, "capture:\n  speech_threshold: 0.04\n")

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := gotNew != nil
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never reported the change")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew.Capture.SpeechThreshold != 0.04 {
		t.Errorf("reloaded SpeechThreshold = %v, want 0.04", gotNew.Capture.SpeechThreshold)
	}
	if w.Current().Capture.SpeechThreshold != 0.04 {
		t.Errorf("Current() not updated after reload")
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "medscribe.yaml")
	writeConfigFile(t, path, "capture:\n  speech_threshold: 0.02\n")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, "capture:\n  speech_threshold: 7.0\n")
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Capture.SpeechThreshold; got != 0.02 {
		t.Errorf("Current().Capture.SpeechThreshold = %v, want the last valid 0.02", got)
	}
}

// Package audio defines the PCM frame and signal-feature types flowing
// through the capture pipeline, plus the conversions needed at its edges
// (float32 ⇄ 16-bit PCM, WAV encoding for batch transcription uploads).
//
// The pipeline operates on mono float32 PCM with samples normalised to
// [-1.0, 1.0]. Frames are the atomic unit of transport: captured from an
// input source, summarised into Features, gated by VAD, and accumulated into
// utterance chunks.
package audio

import (
	"context"
	"time"
)

// DefaultSampleRate is the sample rate the capture pipeline is tuned for.
const DefaultSampleRate = 16000

// Frame represents a single frame of mono float32 PCM audio.
type Frame struct {
	// Samples holds normalised PCM samples in [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Timestamp marks when this frame was captured.
	Timestamp time.Time
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Features is the per-frame signal summary consumed by the VAD.
type Features struct {
	// Energy is the mean squared amplitude of the frame.
	Energy float64

	// Volume is the mean absolute amplitude of the frame.
	Volume float64

	// Silence reports whether the frame's RMS level fell below the
	// extractor's silence threshold.
	Silence bool

	// Timestamp is carried over from the source frame.
	Timestamp time.Time
}

// Source is an audio input device or stream delivering PCM frames. The
// microphone platform behind it is an external collaborator; implementations
// wrap whatever capture mechanism the host provides.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins capture. The returned channel emits frames until the
	// source is closed or ctx is cancelled, then closes. Returns an error
	// when the underlying device cannot be acquired.
	Start(ctx context.Context) (<-chan Frame, error)

	// Close releases the capture device. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram or a local
// Whisper server) behind a uniform chunk-oriented interface: the capture
// pipeline hands over one finished audio chunk at a time and receives the
// transcribed Segment values for it. Segments carry their originating chunk's
// provenance so the downstream overlap reconciliation can reason about batch
// boundaries and forced flushes.
//
// Implementations must be safe for concurrent use; the pipeline may have
// several chunks in flight at once.
package stt

import (
	"context"
	"strings"
	"time"
)

// Segment is one transcribed piece of a chunk.
type Segment struct {
	// ID uniquely identifies the segment within a session.
	ID string

	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Start and End are offsets within the originating chunk, when the
	// provider reports word timing. Zero otherwise.
	Start, End time.Duration

	// Timestamp is the wall-clock time the originating chunk was flushed.
	Timestamp time.Time

	// ChunkSequence is the originating chunk's monotonic sequence number.
	ChunkSequence uint64

	// TimeoutForced reports that the originating chunk came from stuck-speech
	// recovery; such segments are treated with reduced confidence downstream.
	TimeoutForced bool

	// Words contains per-word detail when available (Deepgram). May be nil.
	Words []WordDetail
}

// Empty reports whether the segment carries no usable text.
func (s Segment) Empty() bool {
	return strings.TrimSpace(s.Text) == ""
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint that increases recognition probability
// for uncommon terms such as drug names or anatomical vocabulary.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "metoprolol").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Request is one finished audio chunk to transcribe, with its provenance.
type Request struct {
	// Samples is mono float32 PCM in [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "de-DE"). An empty string uses the provider default.
	Language string

	// Keywords is the vocabulary hint list. Providers without keyword
	// support ignore it.
	Keywords []KeywordBoost

	// Sequence, Timestamp, and TimeoutForced are copied from the chunk
	// metadata onto every resulting Segment.
	Sequence      uint64
	Timestamp     time.Time
	TimeoutForced bool
}

// Duration returns the play time of the request audio.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Provider is the abstraction over any STT backend.
//
// Transcribe blocks until the backend has produced its result for the given
// chunk or ctx is cancelled. A nil segment slice with a nil error means the
// backend heard nothing usable.
type Provider interface {
	// Name identifies the backend for logging and metrics ("deepgram",
	// "whisper", "mock").
	Name() string

	// Transcribe submits one chunk and returns its segments in order.
	Transcribe(ctx context.Context, req Request) ([]Segment, error)
}

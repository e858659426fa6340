package capture

import "time"

// ChunkMetadata describes one emitted audio chunk.
type ChunkMetadata struct {
	// Sequence is the monotonic chunk number within a session, starting at 1
	// and reset only on a fresh Start.
	Sequence uint64

	// Timestamp is when the chunk was flushed.
	Timestamp time.Time

	// TimeoutForced reports that the chunk was produced by stuck-speech
	// recovery rather than a natural batch flush.
	TimeoutForced bool

	// OverlapDuration is the length of the previous chunk's tail that was
	// prepended to this chunk for transcription continuity.
	OverlapDuration time.Duration

	// EnergyLevel is the mean energy (mean squared amplitude) of the
	// chunk's samples.
	EnergyLevel float64
}

// Chunk is one batch of utterance audio ready for transcription, with the
// previous chunk's overlap tail already prepended.
type Chunk struct {
	// Samples is mono float32 PCM in [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Metadata describes the chunk's position and provenance.
	Metadata ChunkMetadata
}

// Duration returns the play time of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

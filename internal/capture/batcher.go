package capture

import (
	"sync"
	"time"

	"github.com/nxtwrld/medscribe/internal/clock"
	"github.com/nxtwrld/medscribe/internal/ringbuf"
)

// maxOverlapSeeds bounds how many prior chunk tails are retained. Only the
// most recent seed is prepended; older ones are kept briefly for diagnostic
// replay and evicted FIFO.
const maxOverlapSeeds = 3

// batcher accumulates finished utterances into wall-clock-bounded batches and
// maintains the audio overlap tail across batch boundaries.
//
// A rescheduled timer guarantees the batch is flushed even when no further
// speech arrives. The timer is cleared and re-armed on every push using the
// remaining time to the original window, never a fresh full window.
//
// All methods are safe for concurrent use.
type batcher struct {
	clk        clock.Clock
	batchDur   time.Duration
	overlapDur time.Duration
	rate       int
	emit       func(Chunk)

	mu         sync.Mutex
	pending    [][]float32
	batchStart time.Time
	timer      clock.Timer
	seeds      *ringbuf.Ring[[]float32]
	seq        uint64
}

func newBatcher(clk clock.Clock, batchDur, overlapDur time.Duration, rate int, emit func(Chunk)) *batcher {
	return &batcher{
		clk:        clk,
		batchDur:   batchDur,
		overlapDur: overlapDur,
		rate:       rate,
		emit:       emit,
		seeds:      ringbuf.New[[]float32](maxOverlapSeeds),
	}
}

// Push adds one finished utterance to the current batch. When forced is set
// (stuck-speech recovery), the batch is flushed immediately, bypassing the
// batch window; the emitted chunk carries TimeoutForced metadata.
func (b *batcher) Push(samples []float32, forced bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, samples)
	now := b.clk.Now()
	if b.batchStart.IsZero() {
		b.batchStart = now
	}

	if forced {
		b.flushLocked(true)
		return
	}

	remaining := b.batchDur - now.Sub(b.batchStart)
	if remaining <= 0 {
		b.flushLocked(false)
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = b.clk.AfterFunc(remaining, b.onTimer)
}

func (b *batcher) onTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(false)
}

// Flush forces any pending batch out, e.g., on session stop.
func (b *batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(false)
}

// Reset cancels the batch timer and clears all pending audio, the overlap
// seeds, and the sequence counter. Unflushed audio is dropped, so callers
// must Flush first; Reset exists for the fresh-start path.
func (b *batcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
	b.batchStart = time.Time{}
	b.seeds.Reset()
	b.seq = 0
}

// PendingSamples reports how many samples are currently buffered. Used by
// observability and tests.
func (b *batcher) PendingSamples() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, u := range b.pending {
		n += len(u)
	}
	return n
}

// flushLocked merges the pending utterances, prepends the previous chunk's
// overlap tail, records this chunk's own tail as the next seed, and emits the
// result. No-op when nothing is pending.
func (b *batcher) flushLocked(forced bool) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}

	var own []float32
	for _, u := range b.pending {
		own = append(own, u...)
	}
	b.pending = nil
	b.batchStart = time.Time{}

	// Prepend the most recent seed for continuity across the batch boundary.
	var seed []float32
	if n := b.seeds.Len(); n > 0 {
		seed = b.seeds.At(n - 1)
	}
	samples := make([]float32, 0, len(seed)+len(own))
	samples = append(samples, seed...)
	samples = append(samples, own...)

	// This chunk's own tail becomes the seed for the next emission.
	overlapSamples := int(b.overlapDur.Seconds() * float64(b.rate))
	tail := own
	if len(tail) > overlapSamples {
		tail = tail[len(tail)-overlapSamples:]
	}
	b.seeds.Push(append([]float32(nil), tail...))

	b.seq++
	b.emit(Chunk{
		Samples:    samples,
		SampleRate: b.rate,
		Metadata: ChunkMetadata{
			Sequence:        b.seq,
			Timestamp:       b.clk.Now(),
			TimeoutForced:   forced,
			OverlapDuration: time.Duration(len(seed)) * time.Second / time.Duration(b.rate),
			EnergyLevel:     meanEnergy(samples),
		},
	})
}

// meanEnergy returns the mean squared amplitude of samples.
func meanEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return sum / float64(len(samples))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nxtwrld/medscribe/pkg/audio"
)

// frameDuration is the slice length the reader emits; the VAD is tuned for
// 100ms frames.
const frameDuration = 100 * time.Millisecond

// pcmSource adapts a raw s16le mono byte stream (stdin or a file) to
// [audio.Source]. Device acquisition itself stays outside the service; anything
// that can produce raw PCM on a pipe (arecord, sox, ffmpeg) can feed it.
type pcmSource struct {
	r          io.ReadCloser
	sampleRate int

	mu     sync.Mutex
	closed bool
}

var _ audio.Source = (*pcmSource)(nil)

// newPCMSource opens path, or wraps stdin when path is "-".
func newPCMSource(path string, sampleRate int) (*pcmSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if path == "-" {
		return &pcmSource{r: os.Stdin, sampleRate: sampleRate}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &pcmSource{r: f, sampleRate: sampleRate}, nil
}

// Start begins reading frames. The channel closes when the stream ends, the
// source is closed, or ctx is cancelled. A read blocked on a quiet pipe
// cannot be interrupted, so cancellation closes the frame channel right away
// and leaves the reader parked until its pending read returns or the process
// exits.
func (s *pcmSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("pcm source already closed")
	}

	frameBytes := int(frameDuration.Seconds()*float64(s.sampleRate)) * 2
	reads := make(chan []byte)
	out := make(chan audio.Frame)

	// Blocking reader, decoupled from the frame channel so shutdown never
	// waits on bytes that may never arrive.
	go func() {
		defer close(reads)
		for {
			buf := make([]byte, frameBytes)
			n, err := io.ReadFull(s.r, buf)
			if n > 0 {
				n -= n % 2 // never split a sample
				select {
				case reads <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-reads:
				if !ok {
					return
				}
				f := audio.Frame{
					Samples:    audio.PCM16ToFloat32(b),
					SampleRate: s.sampleRate,
					Timestamp:  time.Now(),
				}
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying stream. Safe to call more than once; stdin is
// never closed.
func (s *pcmSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.r == os.Stdin {
		return nil
	}
	return s.r.Close()
}

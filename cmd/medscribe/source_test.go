package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/nxtwrld/medscribe/pkg/audio"
)

// s16le encodes n constant samples as signed little-endian PCM bytes.
func s16le(n int, v int16) []byte {
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func TestPCMSource_SlicesStreamIntoFrames(t *testing.T) {
	t.Parallel()

	// 2.5 frames at 16kHz: two full 1600-sample frames and an 800-sample tail.
	data := s16le(4000, 16384)
	s := &pcmSource{r: io.NopCloser(bytes.NewReader(data)), sampleRate: 16000}

	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []audio.Frame
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				if len(got) != 3 {
					t.Fatalf("received %d frames, want 3", len(got))
				}
				wantLens := []int{1600, 1600, 800}
				for i, f := range got {
					if len(f.Samples) != wantLens[i] {
						t.Errorf("frame %d has %d samples, want %d", i, len(f.Samples), wantLens[i])
					}
					if f.SampleRate != 16000 {
						t.Errorf("frame %d sample rate = %d, want 16000", i, f.SampleRate)
					}
					if f.Samples[0] != 0.5 {
						t.Errorf("frame %d sample value = %v, want 0.5", i, f.Samples[0])
					}
				}
				return
			}
			got = append(got, f)
		case <-deadline:
			t.Fatalf("frames channel not closed after EOF (have %d frames)", len(got))
		}
	}
}

func TestPCMSource_CancelClosesFramesDuringBlockedRead(t *testing.T) {
	t.Parallel()

	// A pipe with no writer stands in for an idle stdin: the read never
	// returns, yet cancellation must still end the frame stream.
	pr, pw := io.Pipe()
	defer pw.Close()
	s := &pcmSource{r: pr, sampleRate: 16000}

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancel()
	select {
	case _, ok := <-frames:
		if ok {
			t.Fatal("received a frame from a silent pipe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frames channel not closed after cancellation")
	}
}

func TestPCMSource_CloseIsIdempotentAndBlocksRestart(t *testing.T) {
	t.Parallel()

	s := &pcmSource{r: io.NopCloser(bytes.NewReader(nil)), sampleRate: 16000}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned %v, want nil", err)
	}
	if _, err := s.Start(context.Background()); err == nil {
		t.Error("Start after Close succeeded, want error")
	}
}

func TestNewPCMSource_RejectsInvalidRate(t *testing.T) {
	t.Parallel()

	if _, err := newPCMSource("-", 0); err == nil {
		t.Error("newPCMSource accepted a zero sample rate")
	}
}

// Package mock provides a test double for the stt.Provider interface.
//
// Pre-populate Results with the segment batches the consumer should receive
// (consumed FIFO, one batch per Transcribe call), then inspect Calls to
// verify which chunks were submitted.
package mock

import (
	"context"
	"sync"

	"github.com/nxtwrld/medscribe/pkg/stt"
)

// Call records a single invocation of Provider.Transcribe.
type Call struct {
	// Req is the request passed to Transcribe. Samples are not copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned one batch per Transcribe call, FIFO. When the
	// queue is exhausted, Transcribe echoes a single segment derived from
	// the request so pipelines keep flowing without scripting.
	Results [][]stt.Segment

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every Transcribe invocation in order.
	Calls []Call
}

var _ stt.Provider = (*Provider)(nil)

// Name identifies the backend.
func (p *Provider) Name() string { return "mock" }

// Transcribe records the call and returns the next scripted batch.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) ([]stt.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Results) > 0 {
		batch := p.Results[0]
		p.Results = p.Results[1:]
		for i := range batch {
			batch[i].ChunkSequence = req.Sequence
			batch[i].Timestamp = req.Timestamp
			batch[i].TimeoutForced = req.TimeoutForced
		}
		return batch, nil
	}
	return []stt.Segment{{
		Text:          "mock transcription",
		Confidence:    0.9,
		Timestamp:     req.Timestamp,
		ChunkSequence: req.Sequence,
		TimeoutForced: req.TimeoutForced,
	}}, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls and scripted results. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Results = nil
}

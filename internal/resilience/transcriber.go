package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nxtwrld/medscribe/pkg/stt"
)

// ErrAllBackendsFailed is returned when every backend in a [Transcriber]
// fails or has an open circuit breaker.
var ErrAllBackendsFailed = errors.New("all transcription backends failed")

// TranscriberConfig configures the per-backend circuit breaker created for
// each provider in a [Transcriber].
type TranscriberConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs a provider with its dedicated circuit breaker.
type backend struct {
	provider stt.Provider
	breaker  *CircuitBreaker
}

// Transcriber implements [stt.Provider] with automatic failover across one or
// more transcription backends. Each backend has its own circuit breaker, so a
// chunk never waits on a backend that is known to be down.
//
// Backends are tried in registration order; registration must finish before
// the first Transcribe call.
type Transcriber struct {
	backends []backend
	cfg      TranscriberConfig
}

var _ stt.Provider = (*Transcriber)(nil)

// NewTranscriber creates a [Transcriber] with primary as the preferred
// backend.
func NewTranscriber(primary stt.Provider, cfg TranscriberConfig) *Transcriber {
	t := &Transcriber{cfg: cfg}
	t.add(primary)
	return t
}

// AddFallback registers an additional backend, tried after the ones already
// registered.
func (t *Transcriber) AddFallback(p stt.Provider) {
	t.add(p)
}

func (t *Transcriber) add(p stt.Provider) {
	cbCfg := t.cfg.CircuitBreaker
	cbCfg.Name = p.Name()
	t.backends = append(t.backends, backend{
		provider: p,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Name identifies the composed backend chain, e.g. "deepgram+whisper".
func (t *Transcriber) Name() string {
	names := make([]string, 0, len(t.backends))
	for _, b := range t.backends {
		names = append(names, b.provider.Name())
	}
	return strings.Join(names, "+")
}

// Transcribe submits the request to the first healthy backend. Backends with
// an open breaker are skipped; on failure the next one is tried. Returns
// [ErrAllBackendsFailed] wrapping the last error when none succeeds.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	var lastErr error
	for i := range t.backends {
		b := &t.backends[i]
		var segs []stt.Segment
		err := b.breaker.Execute(func() error {
			var innerErr error
			segs, innerErr = b.provider.Transcribe(ctx, req)
			return innerErr
		})
		if err == nil {
			return segs, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping transcription backend (circuit open)",
				"backend", b.provider.Name())
		} else {
			slog.Warn("transcription backend failed, trying next",
				"backend", b.provider.Name(),
				"sequence", req.Sequence,
				"error", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

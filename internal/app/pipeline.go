// Package app wires the capture session, the speech-to-text provider, and
// the transcript overlap merger into one consultation-scoped pipeline.
//
// A Pipeline owns exactly one capture.Session. Audio chunks flow from the
// session through the configured stt.Provider; the resulting segments are
// accumulated and re-merged after every chunk so Transcript() always reflects
// the best current reconciliation. Transcription failures are non-fatal: the
// chunk is dropped, the error is counted, and capture continues.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nxtwrld/medscribe/internal/capture"
	"github.com/nxtwrld/medscribe/internal/capture/vad"
	"github.com/nxtwrld/medscribe/internal/clock"
	"github.com/nxtwrld/medscribe/internal/config"
	"github.com/nxtwrld/medscribe/internal/health"
	"github.com/nxtwrld/medscribe/internal/observe"
	"github.com/nxtwrld/medscribe/internal/resilience"
	"github.com/nxtwrld/medscribe/internal/transcript"
	"github.com/nxtwrld/medscribe/pkg/audio"
	"github.com/nxtwrld/medscribe/pkg/stt"
)

// sttFailureThreshold is the consecutive-failure count at which the stt
// readiness check starts reporting unhealthy.
const sttFailureThreshold = 3

// Option customises a Pipeline, mainly so tests can inject doubles.
type Option func(*Pipeline)

// WithProvider overrides the provider built from the config.
func WithProvider(p stt.Provider) Option {
	return func(pl *Pipeline) { pl.provider = p }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithClock overrides the wall clock. Tests inject a fake.
func WithClock(c clock.Clock) Option {
	return func(pl *Pipeline) { pl.clk = c }
}

// WithLogLevel attaches the level var the pipeline adjusts on config reload.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(pl *Pipeline) { pl.logLevel = lv }
}

// Pipeline is the consultation-scoped orchestrator. Construct with New, run
// with Run, and end with Stop. All exported methods are safe for concurrent
// use.
type Pipeline struct {
	id       string
	cfg      *config.Config
	session  *capture.Session
	provider stt.Provider
	merger   *transcript.Processor
	metrics  *observe.Metrics
	clk      clock.Clock
	logLevel *slog.LevelVar

	quit     chan struct{}
	stopOnce sync.Once
	stopErr  error

	mu       sync.Mutex
	segments []stt.Segment
	merged   transcript.Merged
	sttFails int
}

// New builds a Pipeline from cfg around the given audio source.
func New(cfg *config.Config, src audio.Source, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if src == nil {
		return nil, errors.New("app: audio source is required")
	}

	p := &Pipeline{
		id:   uuid.NewString(),
		cfg:  cfg,
		clk:  clock.System(),
		quit: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	// ── 1. Speech-to-text provider ──────────────────────────────────────
	if p.provider == nil {
		prov, err := newProvider(cfg.STT)
		if err != nil {
			return nil, fmt.Errorf("app: build stt provider: %w", err)
		}
		// Config-built backends get a circuit breaker so a down backend is
		// skipped instead of delaying every chunk.
		p.provider = resilience.NewTranscriber(prov, resilience.TranscriberConfig{})
	}

	// ── 2. Metrics ──────────────────────────────────────────────────────
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	// ── 3. Capture session ──────────────────────────────────────────────
	sess, err := capture.NewSession(captureConfig(cfg.Capture, src, p.clk, p.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: build capture session: %w", err)
	}
	p.session = sess

	// ── 4. Transcript merger ────────────────────────────────────────────
	p.merger = transcript.NewProcessor(transcript.Config{
		OverlapThreshold: cfg.Overlap.OverlapThreshold,
		MergeThreshold:   cfg.Overlap.MergeThreshold,
		Vocabulary:       vocabulary(cfg.STT.Keywords),
	})

	slog.Info("pipeline constructed",
		"pipeline_id", p.id,
		"provider", p.provider.Name(),
		"preset", string(cfg.Capture.Preset),
	)
	return p, nil
}

// ID returns the pipeline's unique identifier.
func (p *Pipeline) ID() string { return p.id }

// captureConfig translates the file-level capture settings into the session
// configuration.
func captureConfig(cc config.CaptureConfig, src audio.Source, clk clock.Clock, m *observe.Metrics) capture.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return capture.Config{
		Source:            src,
		Clock:             clk,
		Metrics:           m,
		BatchDuration:     ms(cc.BatchDurationMs),
		OverlapDuration:   ms(cc.OverlapDurationMs),
		MaxSpeechDuration: ms(cc.MaxSpeechDurationMs),
		VAD: vad.Config{
			EnergyThreshold:    cc.EnergyThreshold,
			SpeechThreshold:    cc.SpeechThreshold,
			SilenceThreshold:   cc.SilenceThreshold,
			MinSpeechDuration:  ms(cc.MinSpeechDurationMs),
			MaxSilenceDuration: ms(cc.MaxSilenceDurationMs),
			MaxSpeechDuration:  ms(cc.MaxSpeechDurationMs),
		},
	}
}

// vocabulary augments the built-in domain terms with the configured keyword
// hints. Passing nil keeps the merger's default list.
func vocabulary(keywords []config.KeywordConfig) []string {
	if len(keywords) == 0 {
		return nil
	}
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		terms = append(terms, k.Keyword)
	}
	return terms
}

// Run starts capture and processes events and chunks until ctx is cancelled
// or Stop is called. Cancellation triggers a graceful Stop, so the final
// batch flush still flows through transcription before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.session.Start(ctx); err != nil {
		return err
	}
	p.metrics.ActiveSessions.Add(ctx, 1)
	defer p.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	// The loops run against a non-cancellable context: shutdown is signalled
	// via quit after the session has flushed, and the drained work (final
	// transcription) must outlive the cancellation that caused it.
	bg := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return p.Stop()
		case <-p.quit:
			return nil
		}
	})
	g.Go(func() error { p.eventLoop(bg); return nil })
	g.Go(func() error { p.chunkLoop(bg); return nil })
	return g.Wait()
}

// eventLoop consumes session events for logging and metrics.
func (p *Pipeline) eventLoop(ctx context.Context) {
	events := p.session.Events()
	for {
		select {
		case <-p.quit:
			// Account for the events emitted during the final flush.
			for {
				select {
				case ev := <-events:
					p.handleEvent(ctx, ev)
				default:
					return
				}
			}
		case ev := <-events:
			p.handleEvent(ctx, ev)
		}
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, ev capture.Event) {
	switch ev.Type {
	case capture.EventSpeechStart:
		slog.Debug("speech started", "pipeline_id", p.id)
	case capture.EventSpeechEnd:
		p.metrics.RecordUtterance(ctx, "natural")
	case capture.EventSpeechEndTimeout:
		p.metrics.RecordUtterance(ctx, "timeout")
		p.metrics.RecordTimeoutRecovery(ctx, ev.Reason.String())
		slog.Warn("utterance force-closed",
			"pipeline_id", p.id,
			"reason", ev.Reason.String(),
		)
	case capture.EventStateChange:
		slog.Debug("session state change",
			"pipeline_id", p.id,
			"from", ev.From.String(),
			"to", ev.To.String(),
		)
	case capture.EventError:
		slog.Error("capture error", "pipeline_id", p.id, "err", ev.Err)
	}
}

// chunkLoop consumes finished audio chunks and transcribes them. On quit it
// drains whatever the final flush left in the buffer before returning.
func (p *Pipeline) chunkLoop(ctx context.Context) {
	chunks := p.session.Chunks()
	for {
		select {
		case <-p.quit:
			for {
				select {
				case c := <-chunks:
					p.handleChunk(ctx, c)
				default:
					return
				}
			}
		case c := <-chunks:
			p.handleChunk(ctx, c)
		}
	}
}

// handleChunk transcribes one chunk and folds its segments into the running
// transcript. Provider failures are counted and logged but never stop the
// pipeline.
func (p *Pipeline) handleChunk(ctx context.Context, c capture.Chunk) {
	p.metrics.RecordChunk(ctx, c.Metadata.TimeoutForced, c.Duration().Seconds())

	req := stt.Request{
		Samples:       c.Samples,
		SampleRate:    c.SampleRate,
		Language:      p.cfg.STT.Language,
		Keywords:      keywordBoosts(p.cfg.STT.Keywords),
		Sequence:      c.Metadata.Sequence,
		Timestamp:     c.Metadata.Timestamp,
		TimeoutForced: c.Metadata.TimeoutForced,
	}

	start := p.clk.Now()
	segs, err := p.provider.Transcribe(ctx, req)
	p.metrics.RecordSTT(ctx, p.provider.Name(), p.clk.Now().Sub(start).Seconds(), err)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.sttFails++
		slog.Error("transcription failed",
			"pipeline_id", p.id,
			"provider", p.provider.Name(),
			"sequence", c.Metadata.Sequence,
			"consecutive_failures", p.sttFails,
			"err", err,
		)
		return
	}
	p.sttFails = 0

	prevLen := len(p.segments)
	prevStats := p.merged.Stats
	p.segments = append(p.segments, segs...)

	merged := p.merger.MergeSegments(p.segments)
	p.merged = merged
	p.recordMergeDelta(ctx, merged, prevLen, prevStats)

	slog.Info("chunk transcribed",
		"pipeline_id", p.id,
		"sequence", c.Metadata.Sequence,
		"segments", len(segs),
		"forced", c.Metadata.TimeoutForced,
		"transcript_segments", len(merged.Segments),
	)
}

// recordMergeDelta records only what this pass added over the previous merge:
// MergeSegments recomputes over the whole history, so counters must not
// re-count earlier passes. Similarities are recorded for pairs that involve a
// newly appended segment.
func (p *Pipeline) recordMergeDelta(ctx context.Context, m transcript.Merged, prevLen int, prev transcript.Stats) {
	merged := m.Stats.MergedSegments - prev.MergedSegments
	dups := m.Stats.DuplicatesRemoved - prev.DuplicatesRemoved
	if merged < 0 {
		merged = 0
	}
	if dups < 0 {
		dups = 0
	}

	var sims []float64
	for _, ov := range m.Overlaps {
		if ov.BIndex >= prevLen {
			sims = append(sims, ov.Similarity)
		}
	}
	p.metrics.RecordMergePass(ctx, merged, dups, sims)
}

// keywordBoosts converts the config keyword list to the provider form.
func keywordBoosts(keywords []config.KeywordConfig) []stt.KeywordBoost {
	if len(keywords) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, stt.KeywordBoost{Keyword: k.Keyword, Boost: k.Boost})
	}
	return out
}

// Transcript returns the latest reconciled transcript.
func (p *Pipeline) Transcript() transcript.Merged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.merged
}

// Segments returns a copy of all raw segments received so far.
func (p *Pipeline) Segments() []stt.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// ClearBuffer flushes pending batched audio without stopping capture.
func (p *Pipeline) ClearBuffer() {
	p.session.ClearBuffer()
}

// Stop ends capture, lets the final flush drain through transcription, and
// shuts the processing loops down. Idempotent.
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() {
		// Stop pushes the final flush into the chunk buffer before
		// returning, so closing quit afterwards lets chunkLoop drain it.
		p.stopErr = p.session.Stop()
		close(p.quit)
	})
	return p.stopErr
}

// ApplyConfig reacts to a configuration reload. VAD thresholds and the log
// level take effect immediately; batch and overlap windows apply to the next
// session, and provider changes require a restart.
func (p *Pipeline) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && p.logLevel != nil {
		p.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level updated", "level", string(d.NewLogLevel))
	}
	if d.CaptureChanged {
		cc := d.NewCapture
		ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
		o := vad.Overrides{}
		if cc.EnergyThreshold > 0 {
			o.EnergyThreshold = &cc.EnergyThreshold
		}
		if cc.SpeechThreshold > 0 {
			o.SpeechThreshold = &cc.SpeechThreshold
		}
		if cc.SilenceThreshold > 0 {
			o.SilenceThreshold = &cc.SilenceThreshold
		}
		if cc.MinSpeechDurationMs > 0 {
			v := ms(cc.MinSpeechDurationMs)
			o.MinSpeechDuration = &v
		}
		if cc.MaxSilenceDurationMs > 0 {
			v := ms(cc.MaxSilenceDurationMs)
			o.MaxSilenceDuration = &v
		}
		if cc.MaxSpeechDurationMs > 0 {
			v := ms(cc.MaxSpeechDurationMs)
			o.MaxSpeechDuration = &v
		}
		p.session.UpdateVAD(o)
		slog.Info("vad tuning updated", "pipeline_id", p.id)
	}
	if d.OverlapChanged {
		p.mu.Lock()
		p.merger = transcript.NewProcessor(transcript.Config{
			OverlapThreshold: d.NewOverlap.OverlapThreshold,
			MergeThreshold:   d.NewOverlap.MergeThreshold,
			Vocabulary:       vocabulary(p.cfg.STT.Keywords),
		})
		p.mu.Unlock()
		slog.Info("overlap thresholds updated",
			"overlap_threshold", d.NewOverlap.OverlapThreshold,
			"merge_threshold", d.NewOverlap.MergeThreshold,
		)
	}
	if d.STTChanged {
		slog.Warn("stt configuration changed; restart required to apply")
	}
}

// Checkers returns the readiness checks for the pipeline.
func (p *Pipeline) Checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "capture",
			Check: func(context.Context) error {
				if st := p.session.State(); st == capture.StateError {
					return errors.New("capture session in error state")
				}
				return nil
			},
		},
		{
			Name: "stt",
			Check: func(context.Context) error {
				p.mu.Lock()
				fails := p.sttFails
				p.mu.Unlock()
				if fails >= sttFailureThreshold {
					return fmt.Errorf("%d consecutive transcription failures", fails)
				}
				return nil
			},
		},
	}
}

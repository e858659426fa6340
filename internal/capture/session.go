// Package capture turns a raw PCM frame stream into well-formed,
// continuity-preserving audio chunks for transcription.
//
// The central type is Session: it owns the VAD, accumulates VAD-bounded
// utterances into wall-clock-bounded batches, maintains an audio overlap tail
// across batch boundaries, and self-heals when the VAD gets stuck in speech.
// Two independently-armed timers run against the session state: the
// batch-flush timer (re-armed on every utterance push with the remaining
// window time) and the stuck-speech timer (armed at speech start, disarmed at
// natural speech end).
//
// A Session emits typed events on Events() for observability and finished
// chunks on Chunks() for the downstream transcription step. The session never
// awaits transcription; chunk delivery is fire-and-forget from its
// perspective. Chunk delivery is never dropped — consumers must drain
// Chunks(). Events are best-effort and may be dropped when the consumer lags.
//
// All exported methods are safe for concurrent use.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nxtwrld/medscribe/internal/capture/stall"
	"github.com/nxtwrld/medscribe/internal/capture/vad"
	"github.com/nxtwrld/medscribe/internal/clock"
	"github.com/nxtwrld/medscribe/internal/observe"
	"github.com/nxtwrld/medscribe/pkg/audio"
)

// ErrSourceClosed is reported when the audio source stops delivering frames
// while the session is still running.
var ErrSourceClosed = errors.New("capture: audio source closed unexpectedly")

const (
	defaultBatchDuration     = 30 * time.Second
	defaultOverlapDuration   = 5 * time.Second
	defaultMaxSpeechDuration = 30 * time.Second
	defaultEventBuffer       = 64
	defaultChunkBuffer       = 16

	// placeholderDuration is the length of the near-silent buffer synthesized
	// when stuck-speech recovery fires with no accumulated audio.
	placeholderDuration = 100 * time.Millisecond

	// placeholderAmplitude keeps the synthetic buffer non-zero so downstream
	// energy statistics stay finite, while remaining inaudible.
	placeholderAmplitude = 0.0001
)

// Config holds the dependencies and tuning for a Session. Zero-value
// durations and sizes are replaced with defaults.
type Config struct {
	// Source delivers the raw PCM frames. Required.
	Source audio.Source

	// Extractor summarises frames into VAD features. Default: an
	// audio.RMSExtractor whose silence gate follows VAD.SilenceThreshold,
	// including updates via UpdateVAD.
	Extractor audio.Extractor

	// Metrics records per-frame and per-chunk instrumentation. Nil disables
	// recording.
	Metrics *observe.Metrics

	// VAD configures the speech/silence state machine.
	VAD vad.Config

	// BatchDuration is the wall-clock batch window. Default: 30s.
	BatchDuration time.Duration

	// OverlapDuration is the context-preservation tail prepended across
	// batch boundaries. Default: 5s.
	OverlapDuration time.Duration

	// MaxSpeechDuration is the chunk-level stuck-speech timeout, armed at
	// speech start. Default: 30s.
	MaxSpeechDuration time.Duration

	// SampleRate of the incoming PCM. Default: audio.DefaultSampleRate.
	SampleRate int

	// Clock supplies time and timers; tests inject a fake. Default: system.
	Clock clock.Clock

	// EventBuffer and ChunkBuffer size the outbound channels.
	EventBuffer int
	ChunkBuffer int
}

func (c Config) withDefaults() Config {
	if c.BatchDuration <= 0 {
		c.BatchDuration = defaultBatchDuration
	}
	if c.OverlapDuration <= 0 {
		c.OverlapDuration = defaultOverlapDuration
	}
	if c.MaxSpeechDuration <= 0 {
		c.MaxSpeechDuration = defaultMaxSpeechDuration
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.ChunkBuffer <= 0 {
		c.ChunkBuffer = defaultChunkBuffer
	}
	return c
}

// Session is the session-scoped capture orchestrator. Construct with
// NewSession; a host owns exactly one Session per consultation and passes it
// by reference to consumers.
type Session struct {
	cfg Config
	clk clock.Clock

	mu            sync.Mutex
	state         State
	vad           *vad.Processor
	extractor     audio.Extractor
	ownExtractor  bool
	batch         *batcher
	chunkStall    *stall.Detector
	utterance     []float32
	speechStartAt time.Time
	stuckTimer    clock.Timer
	cancelSource  context.CancelFunc
	frameDone     chan struct{}

	events chan Event
	chunks chan Chunk
}

// NewSession creates a Session in StateReady.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("capture: Config.Source is required")
	}
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:    cfg,
		clk:    cfg.Clock,
		state:  StateReady,
		vad:    vad.NewProcessor(cfg.VAD),
		events: make(chan Event, cfg.EventBuffer),
		chunks: make(chan Chunk, cfg.ChunkBuffer),
		chunkStall: stall.New(stall.Config{
			MaxActiveDuration: cfg.MaxSpeechDuration,
		}),
	}
	// The default extractor's silence gate tracks the VAD configuration so
	// the configured SilenceThreshold actually reaches the speech vote.
	s.extractor = cfg.Extractor
	if s.extractor == nil {
		s.ownExtractor = true
		s.extractor = audio.NewRMSExtractor(audio.WithSilenceRMS(s.vad.Config().SilenceThreshold))
	}
	s.batch = newBatcher(cfg.Clock, cfg.BatchDuration, cfg.OverlapDuration, cfg.SampleRate, s.sendChunk)
	return s, nil
}

// Events returns the observability event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Chunks returns the finished audio chunk stream.
func (s *Session) Chunks() <-chan Chunk {
	return s.chunks
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpdateVAD merges partial VAD threshold overrides into the live processor.
// A changed SilenceThreshold also retunes the session-owned extractor;
// injected extractors are left alone.
func (s *Session) UpdateVAD(o vad.Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vad.UpdateConfig(o)
	if s.ownExtractor && o.SilenceThreshold != nil {
		s.extractor = audio.NewRMSExtractor(audio.WithSilenceRMS(s.vad.Config().SilenceThreshold))
	}
}

// Start acquires the audio source and begins capture. Calling Start while a
// session is already active is a no-op returning nil. On acquisition failure
// the session transitions to StateError and the error is both returned and
// emitted as an EventError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateListening, StateSpeaking:
		return nil
	case StateStopping:
		return fmt.Errorf("capture: session is stopping")
	}

	srcCtx, cancel := context.WithCancel(ctx)
	frames, err := s.cfg.Source.Start(srcCtx)
	if err != nil {
		cancel()
		s.setStateLocked(StateError)
		err = fmt.Errorf("capture: acquire source: %w", err)
		s.emitLocked(Event{Type: EventError, Time: s.clk.Now(), Err: err})
		return err
	}
	s.cancelSource = cancel

	// Fresh session: sequence counter, VAD state, energy histories, and
	// overlap seeds all restart.
	s.batch.Reset()
	s.vad.Reset()
	s.chunkStall.Reset()
	s.utterance = nil
	s.frameDone = make(chan struct{})

	s.setStateLocked(StateListening)
	s.emitLocked(Event{Type: EventRecordingStarted, Time: s.clk.Now()})

	go s.frameLoop(frames)
	return nil
}

// frameLoop drains the source channel until it closes.
func (s *Session) frameLoop(frames <-chan audio.Frame) {
	defer close(s.frameDone)
	for f := range frames {
		s.processFrame(f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopping || s.state == StateStopped {
		return // expected during shutdown
	}
	s.disarmStuckLocked()
	s.setStateLocked(StateError)
	s.emitLocked(Event{Type: EventError, Time: s.clk.Now(), Err: ErrSourceClosed})
}

// processFrame runs one frame through feature extraction, VAD, and the
// utterance/batch machinery.
func (s *Session) processFrame(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateListening && s.state != StateSpeaking {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordFrame(context.Background())
	}

	feat := s.extractor.Extract(f)
	d := s.vad.ProcessFrame(feat)

	// A speech-start while already Speaking cannot occur (the VAD is
	// hysteretic), but the state guard keeps the transition explicit.
	if d.StartCapture && s.state == StateListening {
		s.setStateLocked(StateSpeaking)
		s.emitLocked(Event{Type: EventSpeechStart, Time: s.clk.Now()})
		s.speechStartAt = s.clk.Now()
		s.utterance = nil
		s.stuckTimer = s.clk.AfterFunc(s.cfg.MaxSpeechDuration, s.onStuckTimeout)
	}

	if s.state == StateSpeaking {
		s.utterance = append(s.utterance, f.Samples...)
	}

	if d.EndCapture && s.state == StateSpeaking {
		s.disarmStuckLocked()
		samples := s.utterance
		s.utterance = nil
		s.chunkStall.Observe(meanEnergy(samples))

		s.setStateLocked(StateListening)
		if d.Timeout {
			slog.Debug("speech force-closed by VAD timeout", "reason", d.TimeoutReason.String())
			s.emitLocked(Event{Type: EventSpeechEndTimeout, Time: s.clk.Now(), Reason: d.TimeoutReason})
		} else {
			s.emitLocked(Event{Type: EventSpeechEnd, Time: s.clk.Now()})
		}
		s.batch.Push(samples, d.Timeout)
	}
}

// onStuckTimeout fires when speech has not ended naturally within
// MaxSpeechDuration of its start. It force-closes the utterance, runs the
// audio through the same chunk/overlap pipeline with an immediate flush, and
// returns the session to Listening. Non-fatal by design of the recovery path:
// downstream transcription is still invoked so context is not silently lost.
func (s *Session) onStuckTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSpeaking {
		return // disarmed concurrently with a natural speech end
	}

	elapsed := s.clk.Now().Sub(s.speechStartAt)
	reason := s.chunkStall.Check(elapsed)
	if reason == stall.ReasonNone {
		reason = stall.ReasonDuration
	}

	samples := s.utterance
	s.utterance = nil
	if len(samples) == 0 {
		// The source wedged mid-utterance: synthesize a short near-silent
		// placeholder so the pipeline still advances.
		samples = syntheticPlaceholder(s.cfg.SampleRate)
	}

	s.vad.Reset()
	s.stuckTimer = nil
	s.setStateLocked(StateListening)
	s.emitLocked(Event{Type: EventSpeechEndTimeout, Time: s.clk.Now(), Reason: reason})
	slog.Warn("stuck speech recovered",
		"reason", reason.String(),
		"speech_duration", elapsed,
		"samples", len(samples),
	)
	s.batch.Push(samples, true)
}

// Stop flushes any remaining buffered audio, cancels both timers, releases
// the audio source, and resets the sequence counter, energy history, and
// overlap seeds — in that order. The flush precedes the release so the last
// utterance is never silently dropped. Stop is idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()

	switch s.state {
	case StateReady, StateStopped, StateStopping:
		s.mu.Unlock()
		return nil
	}

	s.setStateLocked(StateStopping)
	s.disarmStuckLocked()

	// Close an in-flight utterance so its samples make the final flush.
	if samples := s.utterance; len(samples) > 0 {
		s.utterance = nil
		s.emitLocked(Event{Type: EventSpeechEnd, Time: s.clk.Now()})
		s.batch.Push(samples, false)
	}
	s.batch.Flush()

	// Release the capture device only after the flush.
	if s.cancelSource != nil {
		s.cancelSource()
		s.cancelSource = nil
	}
	err := s.cfg.Source.Close()

	s.batch.Reset()
	s.vad.Reset()
	s.chunkStall.Reset()

	s.setStateLocked(StateStopped)
	s.emitLocked(Event{Type: EventRecordingStopped, Time: s.clk.Now()})
	frameDone := s.frameDone
	s.mu.Unlock()

	if frameDone != nil {
		<-frameDone
	}
	if err != nil {
		return fmt.Errorf("capture: release source: %w", err)
	}
	return nil
}

// ClearBuffer flushes any pending batched audio immediately without stopping
// the session.
func (s *Session) ClearBuffer() {
	s.batch.Flush()
}

func (s *Session) disarmStuckLocked() {
	if s.stuckTimer != nil {
		s.stuckTimer.Stop()
		s.stuckTimer = nil
	}
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.emitLocked(Event{Type: EventStateChange, Time: s.clk.Now(), From: from, To: to})
}

// emitLocked delivers an event without blocking; events are best-effort
// observability and are dropped when the consumer lags.
func (s *Session) emitLocked(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// sendChunk delivers a finished chunk downstream. Chunks are never dropped;
// a consumer that stops draining will eventually stall the session, which is
// the documented contract.
func (s *Session) sendChunk(c Chunk) {
	s.chunks <- c
}

// syntheticPlaceholder builds the near-silent recovery buffer.
func syntheticPlaceholder(rate int) []float32 {
	n := int(placeholderDuration.Seconds() * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = placeholderAmplitude
	}
	return samples
}

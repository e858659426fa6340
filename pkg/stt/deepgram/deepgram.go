// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Each Transcribe call opens a short-lived streaming session: the chunk's PCM
// is written as binary frames, a CloseStream message asks the server to flush,
// and the final results are collected until the server ends the stream.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nxtwrld/medscribe/pkg/audio"
	"github.com/nxtwrld/medscribe/pkg/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3-medical"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// writeFrameBytes bounds individual binary messages; Deepgram recommends
	// sending audio in small frames rather than one large blob.
	writeFrameBytes = 16 * 1024
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3-medical", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint; tests point this at a local
// server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name identifies the backend.
func (p *Provider) Name() string { return "deepgram" }

// Transcribe streams one chunk through a fresh Deepgram session and returns
// the final recognition results.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	wsURL, err := p.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "chunk done")

	if err := p.writeAudio(ctx, conn, req.Samples); err != nil {
		return nil, fmt.Errorf("deepgram: send audio: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: close stream: %w", err)
	}

	return p.readResults(ctx, conn, req)
}

// writeAudio converts the float PCM to 16-bit little-endian and sends it in
// bounded binary frames.
func (p *Provider) writeAudio(ctx context.Context, conn *websocket.Conn, samples []float32) error {
	pcm := audio.Float32ToPCM16(samples)
	for len(pcm) > 0 {
		frame := pcm
		if len(frame) > writeFrameBytes {
			frame = frame[:writeFrameBytes]
		}
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return err
		}
		pcm = pcm[len(frame):]
	}
	return nil
}

// readResults collects final Results messages until the server signals the
// end of the stream with a Metadata message or closes the connection.
func (p *Provider) readResults(ctx context.Context, conn *websocket.Conn, req stt.Request) ([]stt.Segment, error) {
	var segments []stt.Segment
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			// The server closes the socket after the final Metadata; a close
			// here just ends the stream.
			return segments, nil
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &probe); err != nil {
			continue
		}
		if probe.Type == "Metadata" {
			return segments, nil
		}
		if probe.Type != "Results" {
			continue
		}

		seg, ok := parseResults(msg, req)
		if ok {
			segments = append(segments, seg)
		}
	}
}

func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")

	for _, kw := range req.Keywords {
		// Deepgram keyword format: word:boost (e.g., "metoprolol:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResults is the JSON structure of a Deepgram Results event.
type deepgramResults struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResults maps a final Results message onto a Segment carrying the
// request's chunk provenance. Interim results and empty transcripts are
// dropped.
func parseResults(data []byte, req stt.Request) (stt.Segment, bool) {
	var resp deepgramResults
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Segment{}, false
	}
	if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return stt.Segment{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return stt.Segment{}, false
	}

	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	seg := stt.Segment{
		ID:            uuid.NewString(),
		Text:          alt.Transcript,
		Confidence:    alt.Confidence,
		Timestamp:     req.Timestamp,
		ChunkSequence: req.Sequence,
		TimeoutForced: req.TimeoutForced,
		Words:         words,
	}
	if len(words) > 0 {
		seg.Start = words[0].Start
		seg.End = words[len(words)-1].End
	}
	return seg, true
}

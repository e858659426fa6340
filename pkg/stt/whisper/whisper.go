// Package whisper provides a local whisper-server-backed STT provider.
//
// It submits each finished chunk as a batch inference request to a running
// whisper-server binary (POST /inference, multipart/form-data with a WAV
// file). Whisper is a batch engine, so one chunk maps to exactly one request
// and at most one resulting segment.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	segs, err := p.Transcribe(ctx, req)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nxtwrld/medscribe/pkg/audio"
	"github.com/nxtwrld/medscribe/pkg/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// defaultConfidence stands in for whisper-server's missing confidence
	// reporting; segments from forced-timeout chunks are marked down.
	defaultConfidence       = 0.85
	timeoutForcedConfidence = 0.6
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper-server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client, e.g., to adjust the timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper-server HTTP
// endpoint. Safe for concurrent use; requests are independent.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name identifies the backend.
func (p *Provider) Name() string { return "whisper" }

// Transcribe encodes the chunk as WAV and POSTs it to the /inference
// endpoint. Whisper has no keyword API, so req.Keywords is ignored.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) ([]stt.Segment, error) {
	if len(req.Samples) == 0 {
		return nil, nil
	}

	text, err := p.infer(ctx, req)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	conf := defaultConfidence
	if req.TimeoutForced {
		conf = timeoutForcedConfidence
	}
	return []stt.Segment{{
		ID:            uuid.NewString(),
		Text:          text,
		Confidence:    conf,
		End:           req.Duration(),
		Timestamp:     req.Timestamp,
		ChunkSequence: req.Sequence,
		TimeoutForced: req.TimeoutForced,
	}}, nil
}

// infer builds the multipart inference request and parses the JSON response.
func (p *Provider) infer(ctx context.Context, req stt.Request) (string, error) {
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

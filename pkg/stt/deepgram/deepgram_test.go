package deepgram

import (
	"net/url"
	"testing"
	"time"

	"github.com/nxtwrld/medscribe/pkg/stt"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New with empty apiKey succeeded, want error")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("dg-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.deepgram.com" {
		t.Errorf("endpoint = %s://%s, want wss://api.deepgram.com", u.Scheme, u.Host)
	}

	q := u.Query()
	for key, want := range map[string]string{
		"model":           defaultModel,
		"language":        defaultLanguage,
		"punctuate":       "true",
		"interim_results": "false",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
	if kws := q["keywords"]; len(kws) != 0 {
		t.Errorf("keywords = %v, want none", kws)
	}
}

func TestBuildURL_RequestOverrides(t *testing.T) {
	t.Parallel()

	p, err := New("dg-key", WithModel("nova-3"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(stt.Request{
		Language:   "en-GB",
		SampleRate: 48000,
		Keywords: []stt.KeywordBoost{
			{Keyword: "metoprolol", Boost: 1.5},
			{Keyword: "tachycardia", Boost: 2},
		},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}

	q := u.Query()
	if got := q.Get("model"); got != "nova-3" {
		t.Errorf("model = %q, want nova-3", got)
	}
	if got := q.Get("language"); got != "en-GB" {
		t.Errorf("language = %q, want request override en-GB", got)
	}
	if got := q.Get("sample_rate"); got != "48000" {
		t.Errorf("sample_rate = %q, want 48000", got)
	}
	kws := q["keywords"]
	if len(kws) != 2 || kws[0] != "metoprolol:1.5" || kws[1] != "tachycardia:2" {
		t.Errorf("keywords = %v, want [metoprolol:1.5 tachycardia:2]", kws)
	}
}

func TestParseResults_FinalTranscript(t *testing.T) {
	t.Parallel()

	req := stt.Request{
		Sequence:      7,
		Timestamp:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		TimeoutForced: true,
	}
	msg := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "blood pressure is stable",
				"confidence": 0.93,
				"words": [
					{"word": "blood", "start": 0.1, "end": 0.4, "confidence": 0.95},
					{"word": "pressure", "start": 0.4, "end": 0.9, "confidence": 0.94},
					{"word": "is", "start": 0.9, "end": 1.0, "confidence": 0.9},
					{"word": "stable", "start": 1.0, "end": 1.6, "confidence": 0.92}
				]
			}]
		}
	}`)

	seg, ok := parseResults(msg, req)
	if !ok {
		t.Fatal("parseResults dropped a final transcript")
	}
	if seg.Text != "blood pressure is stable" {
		t.Errorf("Text = %q", seg.Text)
	}
	if seg.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", seg.Confidence)
	}
	if seg.ChunkSequence != 7 || !seg.Timestamp.Equal(req.Timestamp) || !seg.TimeoutForced {
		t.Errorf("chunk provenance not carried: %+v", seg)
	}
	if len(seg.Words) != 4 {
		t.Fatalf("words = %d, want 4", len(seg.Words))
	}
	if seg.Start != 100*time.Millisecond {
		t.Errorf("Start = %v, want 100ms", seg.Start)
	}
	if seg.End != 1600*time.Millisecond {
		t.Errorf("End = %v, want 1.6s", seg.End)
	}
	if seg.ID == "" {
		t.Error("segment ID not assigned")
	}
}

func TestParseResults_Dropped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
	}{
		{"interim", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"partial"}]}}`},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{"empty transcript", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{"malformed JSON", `{"type":"Results",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := parseResults([]byte(tt.msg), stt.Request{}); ok {
				t.Errorf("parseResults accepted %s message", tt.name)
			}
		})
	}
}

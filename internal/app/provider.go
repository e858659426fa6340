package app

import (
	"fmt"

	"github.com/nxtwrld/medscribe/internal/config"
	"github.com/nxtwrld/medscribe/pkg/stt"
	"github.com/nxtwrld/medscribe/pkg/stt/deepgram"
	"github.com/nxtwrld/medscribe/pkg/stt/mock"
	"github.com/nxtwrld/medscribe/pkg/stt/whisper"
)

// newProvider builds the configured speech-to-text backend.
func newProvider(cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Name {
	case "deepgram":
		opts := []deepgram.Option{}
		if cfg.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		if cfg.ServerURL != "" {
			opts = append(opts, deepgram.WithEndpoint(cfg.ServerURL))
		}
		return deepgram.New(cfg.APIKey, opts...)
	case "whisper":
		opts := []whisper.Option{}
		if cfg.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		return whisper.New(cfg.ServerURL, opts...)
	case "mock":
		return &mock.Provider{}, nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Name)
	}
}

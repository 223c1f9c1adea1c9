// Package deepgram streams microphone audio to Deepgram's live transcription
// websocket and republishes interim and final transcript segments.
package deepgram

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/voiceloop/voiceloop-core/core/speechtotext"
)

const defaultModel = "nova-3"

// nova3Locales are the locales the live model accepts. Cloud models are
// always resident, so every supported locale also reports as installed.
var nova3Locales = []string{
	"en-US", "en-GB", "en-AU", "en-NZ", "en-IN",
	"es", "es-419", "fr", "fr-CA", "de", "it", "nl", "pt", "pt-BR",
	"hi", "ja", "ko", "ru", "sv", "tr", "uk", "zh", "multi",
}

type Config struct {
	// APIKey authenticates against the Deepgram API. Falls back to the
	// DEEPGRAM_API_KEY environment variable when empty.
	APIKey string
	// Locale selects the transcription language, defaulting to en-US.
	Locale string
	// Model overrides the default live model.
	Model string
}

type TranscriptionClient struct {
	apiKey string
	locale string
	model  string

	conn   *websocket.Conn
	connMu sync.Mutex

	// lastMsgTs is the UnixNano of the last outgoing audio write, read by the
	// silence generator goroutine.
	lastMsgTs atomic.Int64
}

func NewTranscriptionClient(cfg Config) (*TranscriptionClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, _ = os.LookupEnv("DEEPGRAM_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	locale := cfg.Locale
	if locale == "" {
		locale = "en-US"
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	return &TranscriptionClient{apiKey: apiKey, locale: locale, model: model}, nil
}

func (s *TranscriptionClient) IsLocaleSupported(locale string) bool {
	return slices.Contains(nova3Locales, locale)
}

func (s *TranscriptionClient) IsLocaleInstalled(locale string) bool {
	// Cloud-hosted models have no local assets to install.
	return s.IsLocaleSupported(locale)
}

func (s *TranscriptionClient) InstallLocale(_ context.Context, locale string, onProgress func(float64)) error {
	if !s.IsLocaleSupported(locale) {
		return speechtotext.ErrLocaleUnsupported
	}

	if onProgress != nil {
		onProgress(1.0)
	}
	return nil
}

func (s *TranscriptionClient) Close(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "CloseStream"}); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}

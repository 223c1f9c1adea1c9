package orchestration

import (
	"context"
	"fmt"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/speechtotext"
)

// speechToText is the facade over the configured transcription client. It
// handles optional client wiring: a nil client turns every call into a no-op.
type speechToText struct {
	client Transcriber
}

type speechToTextCallbacks struct {
	onInterimTranscript func(transcript string)
	onFinalTranscript   func(transcript string)
	onError             func(err error)
}

func (s *speechToText) set(client Transcriber) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

// ensureLocale runs the locale preflight for clients that expose a locale
// inventory. Unsupported locales fail outright; supported-but-missing model
// assets trigger an install, with progress reported through onProgress.
func (s *speechToText) ensureLocale(ctx context.Context, locale string, onProgress func(progress float64)) error {
	if !s.isConfigured() {
		return nil
	}

	inventory, ok := s.client.(speechtotext.LocaleInventory)
	if !ok {
		return nil
	}

	if !inventory.IsLocaleSupported(locale) {
		return fmt.Errorf("locale %q: %w", locale, speechtotext.ErrLocaleUnsupported)
	}

	if inventory.IsLocaleInstalled(locale) {
		return nil
	}

	if err := inventory.InstallLocale(ctx, locale, onProgress); err != nil {
		return fmt.Errorf("failed to install locale %q: %w", locale, err)
	}

	return nil
}

func (s *speechToText) start(ctx context.Context, callbacks speechToTextCallbacks, encodingInfo audio.EncodingInfo) error {
	if !s.isConfigured() {
		return nil
	}

	sttOptions := []speechtotext.TranscriptionOption{
		speechtotext.WithInterimTranscriptCallback(callbacks.onInterimTranscript),
		speechtotext.WithFinalTranscriptCallback(callbacks.onFinalTranscript),
		speechtotext.WithErrorCallback(callbacks.onError),
		speechtotext.WithEncodingInfo(encodingInfo),
	}

	if err := s.client.Transcribe(ctx, sttOptions...); err != nil {
		return fmt.Errorf("failed to start transcribing: %w", err)
	}

	return nil
}

func (s *speechToText) SendAudio(audio []byte) error {
	if !s.isConfigured() {
		return nil
	}

	return s.client.SendAudio(audio)
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close(context.Context) }:
		c.Close(ctx)
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}

	return nil
}

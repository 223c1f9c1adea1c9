package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/voiceloop/voiceloop-core/core/speechtotext"
)

type stubInventoryTranscriber struct {
	stubTranscriber

	supported bool
	installed bool

	installCalls int
	installErr   error
}

func (s *stubInventoryTranscriber) IsLocaleSupported(locale string) bool { return s.supported }
func (s *stubInventoryTranscriber) IsLocaleInstalled(locale string) bool { return s.installed }

func (s *stubInventoryTranscriber) InstallLocale(_ context.Context, locale string, onProgress func(float64)) error {
	s.installCalls++
	if s.installErr != nil {
		return s.installErr
	}
	if onProgress != nil {
		onProgress(0.5)
		onProgress(1.0)
	}
	return nil
}

func TestEnsureLocalePassesWhenInstalled(t *testing.T) {
	client := &stubInventoryTranscriber{supported: true, installed: true}
	facade := speechToText{}
	facade.set(client)

	if err := facade.ensureLocale(t.Context(), "en-US", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.installCalls != 0 {
		t.Fatalf("expected no install for an installed locale")
	}
}

func TestEnsureLocaleRejectsUnsupportedLocale(t *testing.T) {
	client := &stubInventoryTranscriber{supported: false}
	facade := speechToText{}
	facade.set(client)

	err := facade.ensureLocale(t.Context(), "xx-XX", nil)
	if !errors.Is(err, speechtotext.ErrLocaleUnsupported) {
		t.Fatalf("expected ErrLocaleUnsupported, got: %v", err)
	}
	if client.installCalls != 0 {
		t.Fatalf("unsupported locale must not trigger an install")
	}
}

func TestEnsureLocaleInstallsMissingAssets(t *testing.T) {
	client := &stubInventoryTranscriber{supported: true, installed: false}
	facade := speechToText{}
	facade.set(client)

	var progress []float64
	if err := facade.ensureLocale(t.Context(), "en-US", func(p float64) {
		progress = append(progress, p)
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.installCalls != 1 {
		t.Fatalf("expected exactly one install, got %d", client.installCalls)
	}
	if len(progress) != 2 || progress[len(progress)-1] != 1.0 {
		t.Fatalf("unexpected progress reports: %v", progress)
	}
}

func TestEnsureLocaleSurfacesInstallFailure(t *testing.T) {
	installErr := errors.New("download interrupted")
	client := &stubInventoryTranscriber{supported: true, installed: false, installErr: installErr}
	facade := speechToText{}
	facade.set(client)

	err := facade.ensureLocale(t.Context(), "en-US", nil)
	if !errors.Is(err, installErr) {
		t.Fatalf("expected install failure to propagate, got: %v", err)
	}
}

func TestEnsureLocaleSkipsClientsWithoutInventory(t *testing.T) {
	facade := speechToText{}
	facade.set(&stubTranscriber{})

	if err := facade.ensureLocale(t.Context(), "en-US", nil); err != nil {
		t.Fatalf("unexpected error for client without locale inventory: %v", err)
	}
}

func TestSpeechToTextUnconfiguredIsNoop(t *testing.T) {
	facade := speechToText{}

	if err := facade.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := facade.Close(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := facade.ensureLocale(t.Context(), "en-US", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package elevenlabs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

func newTestClient(url string) *SynthesisClient {
	return &SynthesisClient{
		apiKey:     "test-key",
		voiceID:    "test-voice",
		modelID:    "test-model",
		url:        url,
		httpClient: &http.Client{},
	}
}

func TestSpeakStreamsAudioAndSignalsCompletion(t *testing.T) {
	audioPayload := bytes.Repeat([]byte{0x01, 0x02}, 4000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_16000" {
			t.Errorf("unexpected output format: %q", got)
		}

		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Text != "Hello there" {
			t.Errorf("unexpected text: %q", req.Text)
		}

		w.Write(audioPayload)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var received bytes.Buffer
	done, err := client.Speak(t.Context(), "Hello there",
		texttospeech.WithAudioCallback(func(audio []byte) {
			received.Write(audio)
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected synthesis error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for synthesis to complete")
	}

	if !bytes.Equal(received.Bytes(), audioPayload) {
		t.Fatalf("received audio does not match payload (%d vs %d bytes)", received.Len(), len(audioPayload))
	}
}

func TestSpeakAcceptsAnySuccessStatus(t *testing.T) {
	audioPayload := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write(audioPayload)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var received bytes.Buffer
	done, err := client.Speak(t.Context(), "Hello",
		texttospeech.WithAudioCallback(func(audio []byte) {
			received.Write(audio)
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error for 206 response: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected synthesis error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for synthesis to complete")
	}

	if !bytes.Equal(received.Bytes(), audioPayload) {
		t.Fatalf("received audio does not match payload")
	}
}

func TestSpeakMapsUnauthorizedToAuthenticationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Speak(t.Context(), "Hello")
	if err == nil {
		t.Fatalf("expected an error for 401 response")
	}
	if !errors.Is(err, texttospeech.ErrAuthenticationFailed) {
		t.Fatalf("expected authentication failure, got: %v", err)
	}
}

func TestSpeakReportsNonAuthAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Speak(t.Context(), "Hello")
	if err == nil {
		t.Fatalf("expected an error for 429 response")
	}
	if errors.Is(err, texttospeech.ErrAuthenticationFailed) {
		t.Fatalf("unexpected authentication failure: %v", err)
	}
}

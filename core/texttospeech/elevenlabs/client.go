// Package elevenlabs synthesizes speech through the ElevenLabs REST API and
// streams the resulting PCM audio back chunk by chunk.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

const apiURL = "https://api.elevenlabs.io/v1/text-to-speech"

const (
	defaultModelID = "eleven_flash_v2_5"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

type Config struct {
	// APIKey authenticates against the ElevenLabs API. Falls back to the
	// ELEVENLABS_API_KEY environment variable when empty.
	APIKey string
	// VoiceID selects the voice, defaulting to Rachel.
	VoiceID string
	// ModelID overrides the default low-latency model.
	ModelID string
}

type SynthesisClient struct {
	apiKey  string
	voiceID string
	modelID string

	url        string
	httpClient *http.Client
}

func NewSynthesisClient(cfg Config) (*SynthesisClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, _ = os.LookupEnv("ELEVENLABS_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key not found")
	}

	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}

	return &SynthesisClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		url:     apiURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}, nil
}

// EncodingInfo reports the format of audio delivered through the audio
// callback, matching the pcm_16000 output format requested from the API.
func (c *SynthesisClient) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Speak synthesizes text and streams the audio through the configured audio
// callback. The returned channel receives the terminal result once all audio
// has been delivered, then closes.
func (c *SynthesisClient) Speak(ctx context.Context, text string, opts ...texttospeech.TextToSpeechOption) (<-chan error, error) {
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	reqBody := synthesisRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/stream?output_format=pcm_16000", c.url, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 && options.AudioCallback != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				options.AudioCallback(chunk)
			}
			if err == io.EOF {
				done <- nil
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				if options.ErrorCallback != nil {
					options.ErrorCallback(err)
				}
				done <- fmt.Errorf("failed to read synthesized audio: %w", err)
				return
			}
		}
	}()

	return done, nil
}

func decodeAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}

	detail := string(respBody)
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Detail.Message != "" {
		detail = apiErr.Detail.Message
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", texttospeech.ErrAuthenticationFailed, detail)
	}
	return fmt.Errorf("elevenlabs api error: %s - %s", resp.Status, detail)
}

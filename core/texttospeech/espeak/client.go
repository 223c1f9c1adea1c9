// Package espeak synthesizes speech with the espeak-ng command line tool,
// playing it directly through the system's audio output. It needs no API key,
// which makes it a useful offline fallback.
package espeak

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

const defaultBinary = "espeak-ng"

type Config struct {
	// Binary is the synthesizer executable, defaulting to espeak-ng.
	Binary string
	// Voice selects the espeak voice (e.g. "en-us").
	Voice string
	// WordsPerMinute adjusts speaking rate; zero keeps the espeak default.
	WordsPerMinute int
}

type SynthesisClient struct {
	binary string
	voice  string
	wpm    int
}

func NewSynthesisClient(cfg Config) (*SynthesisClient, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("speech synthesizer binary not found: %w", err)
	}

	return &SynthesisClient{binary: path, voice: cfg.Voice, wpm: cfg.WordsPerMinute}, nil
}

// Speak plays text through the system audio output. The returned channel
// receives the terminal result once playback finishes, then closes. The audio
// callback is never used; playback happens inside the espeak process.
func (c *SynthesisClient) Speak(ctx context.Context, text string, opts ...texttospeech.TextToSpeechOption) (<-chan error, error) {
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	args := []string{}
	if c.voice != "" {
		args = append(args, "-v", c.voice)
	}
	if c.wpm > 0 {
		args = append(args, "-s", fmt.Sprint(c.wpm))
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start speech synthesizer: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)

		err := cmd.Wait()
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = fmt.Errorf("speech synthesizer failed: %w", err)
			}
			if options.ErrorCallback != nil {
				options.ErrorCallback(err)
			}
		}
		done <- err
	}()

	return done, nil
}

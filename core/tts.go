package orchestration

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

// textToSpeech is the facade over the configured synthesis client. It
// normalizes the two provider shapes behind one blocking call: audio-emitting
// providers are routed through the playback device and completion is confirmed
// with a playback mark; self-playing providers complete on their own signal.
type textToSpeech struct {
	client Synthesizer
}

func (t *textToSpeech) set(client Synthesizer) {
	if t != nil {
		t.client = client
	}
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

// speak synthesizes text and blocks until playback has finished or ctx is
// cancelled.
func (t *textToSpeech) speak(ctx context.Context, text string, route *audioRoute) error {
	if !t.isConfigured() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "speak reply")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	var err error
	if streamer, ok := t.client.(texttospeech.AudioStreamer); ok {
		err = t.speakThroughRoute(ctx, text, streamer.EncodingInfo(), route)
	} else {
		err = t.speakSelfPlaying(ctx, text)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (t *textToSpeech) speakThroughRoute(ctx context.Context, text string, encoding audio.EncodingInfo, route *audioRoute) error {
	if err := route.enterPlayback(ctx); err != nil {
		return fmt.Errorf("failed to open playback route: %w", err)
	}

	converter, err := audio.NewConverter(encoding, route.playbackEncoding())
	if err != nil {
		return fmt.Errorf("no conversion path for synthesized audio: %w", err)
	}

	done, err := t.client.Speak(ctx, text,
		texttospeech.WithEncodingInfo(encoding),
		texttospeech.WithAudioCallback(func(chunk []byte) {
			converted, err := converter.Convert(chunk)
			if err != nil {
				return
			}
			_ = route.SendAudio(converted)
		}),
	)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		route.ClearBuffer()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			route.ClearBuffer()
			return err
		}
	}

	// All audio is queued; the mark confirms the device has consumed it.
	markFired := make(chan struct{})
	if err := route.Mark("utterance-end", func(string) { close(markFired) }); err != nil {
		return fmt.Errorf("failed to mark end of speech: %w", err)
	}

	select {
	case <-ctx.Done():
		route.ClearBuffer()
		return ctx.Err()
	case <-markFired:
		return nil
	}
}

func (t *textToSpeech) speakSelfPlaying(ctx context.Context, text string) error {
	done, err := t.client.Speak(ctx, text)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

package orchestration

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/voiceloop/voiceloop-core/core/audio"
)

// audioRoute is the facade over the shared audio device. It serializes
// capture/playback switching through the route manager and supports an
// optional capture override that replaces the route manager's input path
// while playback keeps going through the route manager.
type audioRoute struct {
	client RouteManager
	input  AudioInput

	inputMu     sync.Mutex
	inputCancel context.CancelFunc
}

func (r *audioRoute) set(client RouteManager) {
	if r != nil {
		r.client = client
	}
}

func (r *audioRoute) setInput(input AudioInput) {
	if r != nil {
		r.input = input
	}
}

func (r *audioRoute) isConfigured() bool {
	return r != nil && (r.client != nil || r.input != nil)
}

// captureEncoding reports the format of frames delivered by enterCapture.
func (r *audioRoute) captureEncoding() audio.EncodingInfo {
	if r.input != nil {
		return r.input.EncodingInfo()
	}
	if r.client != nil {
		return r.client.EncodingInfo()
	}
	return audio.GetDefaultEncodingInfo()
}

func (r *audioRoute) enterCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if r.input != nil {
		if r.client != nil {
			if err := r.client.Release(); err != nil {
				return fmt.Errorf("failed to release playback before capture: %w", err)
			}
		}

		r.inputMu.Lock()
		if r.inputCancel != nil {
			r.inputMu.Unlock()
			return nil
		}
		inputCtx, cancel := context.WithCancel(ctx)
		r.inputCancel = cancel
		r.inputMu.Unlock()

		go func() {
			ctx, span := tracer.Start(inputCtx, "stream capture input")
			defer span.End()
			if err := r.input.Stream(ctx, onAudio); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}()
		return nil
	}

	if r.client != nil {
		return r.client.EnterCaptureMode(ctx, onAudio)
	}
	return nil
}

// closeCapture stops frame delivery without touching playback state.
func (r *audioRoute) closeCapture() error {
	if r.input != nil {
		r.inputMu.Lock()
		if r.inputCancel != nil {
			r.inputCancel()
			r.inputCancel = nil
		}
		r.inputMu.Unlock()
		return r.input.StopCapture()
	}

	if r.client != nil {
		return r.client.Release()
	}
	return nil
}

func (r *audioRoute) enterPlayback(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.EnterPlaybackMode(ctx)
}

// release returns the device to its unconfigured state, stopping whichever
// mode is active.
func (r *audioRoute) release() error {
	var errs error
	if r.input != nil {
		r.inputMu.Lock()
		if r.inputCancel != nil {
			r.inputCancel()
			r.inputCancel = nil
		}
		r.inputMu.Unlock()
		errs = r.input.StopCapture()
	}

	if r.client != nil {
		if err := r.client.Release(); err != nil {
			if errs != nil {
				return fmt.Errorf("%v; %w", errs, err)
			}
			return err
		}
	}
	return errs
}

func (r *audioRoute) SendAudio(audio []byte) error {
	if r.client == nil {
		return nil
	}
	return r.client.SendAudio(audio)
}

func (r *audioRoute) ClearBuffer() {
	if r.client != nil {
		r.client.ClearBuffer()
	}
}

func (r *audioRoute) Mark(mark string, callback func(mark string)) error {
	if r.client == nil {
		if callback != nil {
			callback(mark)
		}
		return nil
	}
	return r.client.Mark(mark, callback)
}

func (r *audioRoute) playbackEncoding() audio.EncodingInfo {
	if r.client != nil {
		return r.client.EncodingInfo()
	}
	return audio.GetDefaultEncodingInfo()
}

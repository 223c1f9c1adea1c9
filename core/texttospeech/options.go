package texttospeech

import (
	"errors"

	"github.com/voiceloop/voiceloop-core/core/audio"
)

// ErrAuthenticationFailed is returned when the synthesis provider rejects the
// configured credentials.
var ErrAuthenticationFailed = errors.New("text-to-speech authentication failed")

type TextToSpeechOptions struct {
	// AudioCallback is called as the synthesizer produces audio. Unused by
	// synthesizers that play speech through their own output path.
	AudioCallback func(audio []byte)
	// ErrorCallback is called when synthesis fails after Speak has returned.
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func WithAudioCallback(callback func(audio []byte)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.AudioCallback = callback
	}
}

func WithErrorCallback(callback func(error)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// AudioStreamer is implemented by synthesizers that deliver raw audio through
// the audio callback rather than playing it themselves. EncodingInfo reports
// the format of the emitted audio.
type AudioStreamer interface {
	EncodingInfo() audio.EncodingInfo
}

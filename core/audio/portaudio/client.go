// Package portaudio provides an alternate capture backend for hosts where
// miniaudio is unavailable. It only captures; playback still goes through the
// active route manager.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/voiceloop/voiceloop-core/core/audio"
)

// captureStream is the device surface Stream drives; *portaudio.Stream
// satisfies it.
type captureStream interface {
	Start() error
	Stop() error
	Read() error
	Close() error
}

type Client struct {
	bufferSize int
	stream     captureStream

	in      []int16
	stopped atomic.Bool
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v", audio.ErrDeviceUnavailable, err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open portaudio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

// Stream reads fixed-size blocks from the default input device and hands them
// to onAudio until the context is cancelled or the client is closed.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	// A StopCapture from a previous invocation must not kill this one.
	c.stopped.Store(false)

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("%w: failed to start portaudio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	for {
		select {
		case <-ctx.Done():
			return c.stream.Stop()
		default:
			if c.stopped.Load() {
				return c.stream.Stop()
			}

			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

// StopCapture ends an in-flight Stream loop. It is safe to call while a
// consumer is mid-read.
func (c *Client) StopCapture() error {
	c.stopped.Store(true)
	return nil
}

func (c *Client) Close() {
	c.stopped.Store(true)
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/voiceloop/voiceloop-core/core/audio"
)

type routeMode string

const (
	routeModeReleased routeMode = "released"
	routeModeCapture  routeMode = "capture"
	routeModePlayback routeMode = "playback"
)

// Client owns one miniaudio context and routes the shared audio device
// between capture and playback. The two modes are mutually exclusive: entering
// one always stops the other first, so the device is never configured for both
// at the same time.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	playbackClient
	captureClient

	modeMu sync.Mutex
	mode   routeMode
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: miniaudio context init failed: %v", audio.ErrDeviceUnavailable, err)
	}

	client := Client{
		audioContext: audioCtx,
		mode:         routeModeReleased,
	}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	if err := client.playbackClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	return &client, nil
}

// EnterCaptureMode stops playback if it is running and starts delivering
// capture frames to onAudio.
func (c *Client) EnterCaptureMode(_ context.Context, onAudio func(audio []byte)) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.mode == routeModeCapture {
		return nil
	}

	if c.mode == routeModePlayback {
		if err := c.playbackClient.Stop(); err != nil {
			return fmt.Errorf("failed to stop playback before capture: %w", err)
		}
	}

	if err := c.captureClient.Start(onAudio); err != nil {
		c.mode = routeModeReleased
		return err
	}

	c.mode = routeModeCapture
	return nil
}

// EnterPlaybackMode stops capture if it is running and opens the playback
// device for SendAudio.
func (c *Client) EnterPlaybackMode(context.Context) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.mode == routeModePlayback {
		return nil
	}

	if c.mode == routeModeCapture {
		if err := c.captureClient.Stop(); err != nil {
			return fmt.Errorf("failed to stop capture before playback: %w", err)
		}
	}

	if err := c.playbackClient.Start(); err != nil {
		c.mode = routeModeReleased
		return err
	}

	c.mode = routeModePlayback
	return nil
}

// Release stops whichever mode is active and returns the device to released.
func (c *Client) Release() error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	var errs error
	switch c.mode {
	case routeModeCapture:
		errs = c.captureClient.Stop()
	case routeModePlayback:
		errs = c.playbackClient.Stop()
	}

	c.mode = routeModeReleased
	return errs
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

// Mark registers a playback position marker. The callback fires once all
// audio queued before the mark has been handed to the device.
func (c *Client) Mark(mark string, callback func(string)) error {
	return c.playbackClient.Mark(mark, callback)
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (c *Client) Close() {
	_ = c.Release()
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

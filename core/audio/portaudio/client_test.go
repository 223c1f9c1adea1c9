package portaudio

import (
	"testing"
)

type fakeCaptureStream struct {
	starts int
	stops  int
}

func (f *fakeCaptureStream) Start() error { f.starts++; return nil }
func (f *fakeCaptureStream) Stop() error  { f.stops++; return nil }
func (f *fakeCaptureStream) Read() error  { return nil }
func (f *fakeCaptureStream) Close() error { return nil }

func TestStreamRestartsAfterStopCapture(t *testing.T) {
	stream := &fakeCaptureStream{}
	client := &Client{bufferSize: 4, stream: stream, in: make([]int16, 4)}

	for run := range 2 {
		frames := 0
		err := client.Stream(t.Context(), func(audio []byte) {
			frames++
			if frames == 2 {
				client.StopCapture()
			}
		})
		if err != nil {
			t.Fatalf("unexpected stream error on run %d: %v", run, err)
		}
		if frames == 0 {
			t.Fatalf("no audio delivered on run %d", run)
		}
	}

	if stream.starts != 2 || stream.stops != 2 {
		t.Fatalf("expected a start/stop pair per run, got %d starts and %d stops", stream.starts, stream.stops)
	}
}

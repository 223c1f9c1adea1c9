package audio

import (
	"encoding/binary"
	"fmt"
)

// Converter reformats raw frames from a source encoding into a target
// encoding. A single Converter instance must be used for all consecutive
// frames of one stream: the resampler carries interpolation state across
// frame boundaries so block edges stay free of discontinuities.
type Converter struct {
	src EncodingInfo
	dst EncodingInfo

	// phase is the fractional read position past the carried sample, in
	// source-sample units.
	phase float64
	// last is the final source sample of the previous frame.
	last   int16
	primed bool
}

// NewConverter validates that a conversion path exists between src and dst.
// Only linear16 output is supported; mulaw and alaw input is decoded before
// resampling.
func NewConverter(src, dst EncodingInfo) (*Converter, error) {
	if src.IsZero() || dst.IsZero() {
		return nil, fmt.Errorf("%w: encoding not fully specified", ErrUnsupportedFormat)
	}

	switch src.Format {
	case EncodingLinear16, EncodingMulaw, EncodingALaw:
	default:
		return nil, fmt.Errorf("%w: cannot decode %q", ErrUnsupportedFormat, src.Format.Name())
	}

	if dst.Format != EncodingLinear16 {
		return nil, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, dst.Format.Name())
	}

	return &Converter{src: src, dst: dst}, nil
}

// Convert reformats one frame. The returned slice is freshly allocated; the
// input frame is not retained.
func (c *Converter) Convert(frame []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: converter not initialized", ErrUnsupportedFormat)
	}

	samples, err := c.decode(frame)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []byte{}, nil
	}

	if c.src.SampleRate != c.dst.SampleRate {
		samples = c.resample(samples)
	}

	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out, nil
}

func (c *Converter) decode(frame []byte) ([]int16, error) {
	switch c.src.Format {
	case EncodingLinear16:
		if len(frame)%2 != 0 {
			return nil, fmt.Errorf("%w: odd linear16 frame length %d", ErrUnsupportedFormat, len(frame))
		}
		samples := make([]int16, len(frame)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
		}
		return samples, nil

	case EncodingMulaw:
		samples := make([]int16, len(frame))
		for i, b := range frame {
			samples[i] = decodeMulawSample(b)
		}
		return samples, nil

	case EncodingALaw:
		samples := make([]int16, len(frame))
		for i, b := range frame {
			samples[i] = decodeALawSample(b)
		}
		return samples, nil
	}

	return nil, fmt.Errorf("%w: cannot decode %q", ErrUnsupportedFormat, c.src.Format.Name())
}

// resample performs linear interpolation from the source rate to the target
// rate. The carried sample sits one position before the current frame, so
// output lags the input by a single source sample and stays continuous
// across frame boundaries.
func (c *Converter) resample(samples []int16) []int16 {
	if !c.primed {
		c.last = samples[0]
		c.primed = true
	}

	step := float64(c.src.SampleRate) / float64(c.dst.SampleRate)
	out := make([]int16, 0, int(float64(len(samples))/step)+1)

	t := c.phase
	for int(t) < len(samples) {
		j := int(t)
		frac := t - float64(j)

		a := c.last
		if j > 0 {
			a = samples[j-1]
		}
		b := samples[j]

		out = append(out, a+int16(frac*float64(b-a)))
		t += step
	}

	c.phase = t - float64(len(samples))
	c.last = samples[len(samples)-1]
	return out
}

func decodeMulawSample(in byte) int16 {
	in = ^in
	sign := in & 0x80
	exponent := (in >> 4) & 0x07
	mantissa := in & 0x0F

	sample := (int16(mantissa)<<3 + 0x84) << exponent
	sample -= 0x84
	if sign != 0 {
		return -sample
	}
	return sample
}

func decodeALawSample(in byte) int16 {
	in ^= 0x55
	sign := in & 0x80
	exponent := (in >> 4) & 0x07
	mantissa := in & 0x0F

	var sample int16
	if exponent == 0 {
		sample = int16(mantissa)<<4 + 8
	} else {
		sample = (int16(mantissa)<<4 + 0x108) << (exponent - 1)
	}
	if sign == 0 {
		return -sample
	}
	return sample
}

package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TargetSampleRate is the rate every downstream consumer expects (whisper input rate).
const TargetSampleRate = 16000

// Format is the sample encoding delivered by the capture device.
type Format string

const (
	S16 Format = "s16"
	U16 Format = "u16"
	F32 Format = "f32"
)

var ErrUnsupportedChannels = errors.New("unsupported channel count")

// Frame is one batch of raw interleaved samples from a capture callback.
// Exactly one of the sample slices is populated, matching Format.
type Frame struct {
	Format     Format
	Channels   int
	SampleRate int
	S16        []int16
	U16        []uint16
	F32        []float32
	Timestamp  time.Time
}

// Len returns the number of interleaved samples in the frame.
func (f Frame) Len() int {
	switch f.Format {
	case S16:
		return len(f.S16)
	case U16:
		return len(f.U16)
	default:
		return len(f.F32)
	}
}

// Clone copies f so it outlives the driver buffer it was delivered in.
func (f Frame) Clone() Frame {
	c := f
	c.S16 = append([]int16(nil), f.S16...)
	c.U16 = append([]uint16(nil), f.U16...)
	c.F32 = append([]float32(nil), f.F32...)
	return c
}

// Float decodes the frame samples to float32 in [-1, 1].
func (f Frame) Float() []float32 {
	switch f.Format {
	case S16:
		out := make([]float32, len(f.S16))
		for i, s := range f.S16 {
			out[i] = float32(s) / math.MaxInt16
		}
		return out
	case U16:
		const half = float32(math.MaxUint16) / 2
		out := make([]float32, len(f.U16))
		for i, s := range f.U16 {
			out[i] = (float32(s) - half) / half
		}
		return out
	default:
		out := make([]float32, len(f.F32))
		copy(out, f.F32)
		return out
	}
}

// Converter normalizes frames into mono float samples at TargetSampleRate.
// It keeps a downsampling accumulator across frames and is not safe for
// concurrent use.
type Converter struct {
	channels   int
	sourceRate int
	targetRate int
	ratio      float64

	acc   float64
	count float64
}

func NewConverter(channels, sourceRate, targetRate int) (*Converter, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: %d (only mono and stereo input is supported)", ErrUnsupportedChannels, channels)
	}
	if sourceRate <= 0 {
		return nil, fmt.Errorf("invalid source sample rate: %d", sourceRate)
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate: %d", targetRate)
	}
	return &Converter{
		channels:   channels,
		sourceRate: sourceRate,
		targetRate: targetRate,
		ratio:      float64(sourceRate) / float64(targetRate),
	}, nil
}

// Downsampling reports whether the converter reduces the sample rate.
func (c *Converter) Downsampling() bool {
	return c.ratio > 1
}

// Convert turns one frame into zero or more normalized samples.
func (c *Converter) Convert(f Frame) []float32 {
	mono := c.downmix(f.Float())
	if !c.Downsampling() {
		return mono
	}

	out := make([]float32, 0, int(float64(len(mono))/c.ratio)+1)
	for _, s := range mono {
		c.acc += float64(s)
		c.count++
		if c.count >= c.ratio {
			out = append(out, float32(c.acc/c.count))
			c.acc = 0
			c.count = 0
		}
	}
	return out
}

// Reset drops any partially accumulated downsample group.
func (c *Converter) Reset() {
	c.acc = 0
	c.count = 0
}

func (c *Converter) downmix(samples []float32) []float32 {
	if c.channels == 1 {
		return samples
	}
	out := make([]float32, len(samples)/2)
	for i := range out {
		out[i] = (samples[2*i] + samples[2*i+1]) / 2
	}
	return out
}

// RMS returns the root-mean-square energy of samples, 0 for an empty slice.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Peak returns the maximum absolute amplitude of samples.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Duration converts a sample count at rate into a time.Duration.
func Duration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// Samples converts a duration at rate into a sample count.
func Samples(d time.Duration, rate int) int {
	return int(d * time.Duration(rate) / time.Second)
}

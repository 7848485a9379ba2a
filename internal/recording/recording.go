package recording

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/logging"
)

var (
	ErrNoInputDevice     = errors.New("no input device available")
	ErrNoSupportedFormat = errors.New("input device supports no usable stream format")
	ErrAlreadyOpen       = errors.New("capture device already open")
)

// Format is the stream configuration negotiated with the device.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat audio.Format
	DeviceName   string
}

// Device is a microphone that delivers frames through a callback on the
// driver's thread. Frames alias driver buffers and are only valid for the
// duration of the callback.
type Device interface {
	Open(onFrame func(audio.Frame)) (Format, error)
	Close() error
}

type Config struct {
	Device          string
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

func DefaultConfig() Config {
	return Config{
		Device:          "",
		SampleRate:      audio.TargetSampleRate,
		Channels:        0,
		FramesPerBuffer: 1024,
	}
}

// Recorder captures the microphone through PortAudio.
type Recorder struct {
	config    Config
	recording atomic.Bool
	frames    atomic.Int64

	mu     sync.Mutex // guards stream and format
	stream *portaudio.Stream
	format Format

	log zerolog.Logger
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config, log: logging.WithComponent("capture")}
}

func NewDefaultRecorder() *Recorder { return NewRecorder(DefaultConfig()) }

func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// Frames returns the number of callbacks delivered since the last Open.
func (r *Recorder) Frames() int64 {
	return r.frames.Load()
}

// Open starts the input stream and registers onFrame. The preferred rate is
// tried first, then the device default; mono is preferred over stereo and
// float32 over int16.
func (r *Recorder) Open(onFrame func(audio.Frame)) (Format, error) {
	if err := r.validateConfig(); err != nil {
		return Format{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return Format{}, ErrAlreadyOpen
	}

	if err := portaudio.Initialize(); err != nil {
		return Format{}, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	dev, err := findInputDevice(r.config.Device)
	if err != nil {
		portaudio.Terminate()
		return Format{}, err
	}

	r.frames.Store(0)
	caps := deviceCaps{
		Name:              dev.Name,
		MaxInputChannels:  dev.MaxInputChannels,
		DefaultSampleRate: dev.DefaultSampleRate,
	}

	var lastErr error
	for _, c := range candidates(caps, r.config) {
		stream, err := r.openStream(dev, c, onFrame)
		if err != nil {
			lastErr = err
			r.log.Debug().Err(err).
				Int("rate", c.SampleRate).
				Int("channels", c.Channels).
				Str("format", string(c.SampleFormat)).
				Msg("stream format rejected")
			continue
		}

		if err := stream.Start(); err != nil {
			stream.Close()
			portaudio.Terminate()
			return Format{}, fmt.Errorf("failed to start audio stream: %w", err)
		}

		r.stream = stream
		r.format = c
		r.recording.Store(true)

		r.log.Info().
			Str("device", c.DeviceName).
			Int("rate", c.SampleRate).
			Int("channels", c.Channels).
			Str("format", string(c.SampleFormat)).
			Msg("capture started")
		return c, nil
	}

	portaudio.Terminate()
	if lastErr != nil {
		return Format{}, fmt.Errorf("%w: %v", ErrNoSupportedFormat, lastErr)
	}
	return Format{}, ErrNoSupportedFormat
}

func (r *Recorder) openStream(dev *portaudio.DeviceInfo, f Format, onFrame func(audio.Frame)) (*portaudio.Stream, error) {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: f.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: r.config.FramesPerBuffer,
	}

	switch f.SampleFormat {
	case audio.S16:
		return portaudio.OpenStream(params, func(in []int16) {
			r.frames.Add(1)
			onFrame(audio.Frame{
				Format:     audio.S16,
				Channels:   f.Channels,
				SampleRate: f.SampleRate,
				S16:        in,
				Timestamp:  time.Now(),
			})
		})
	default:
		return portaudio.OpenStream(params, func(in []float32) {
			r.frames.Add(1)
			onFrame(audio.Frame{
				Format:     audio.F32,
				Channels:   f.Channels,
				SampleRate: f.SampleRate,
				F32:        in,
				Timestamp:  time.Now(),
			})
		})
	}
}

// Close stops the stream. After Close returns no further callbacks run.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return nil
	}
	r.recording.Store(false)

	var errs []error
	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop audio stream: %w", err))
		}
		if err := r.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio stream: %w", err))
		}
		r.stream = nil
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate PortAudio: %w", err))
	}

	r.log.Info().Int64("frames", r.frames.Load()).Msg("capture stopped")
	return errors.Join(errs...)
}

// Format returns the negotiated stream format of the open device.
func (r *Recorder) Format() Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels < 0 || r.config.Channels > 2 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid FramesPerBuffer: %d", r.config.FramesPerBuffer)
	}
	return nil
}

type deviceCaps struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// candidates lists stream formats in order of preference.
func candidates(caps deviceCaps, cfg Config) []Format {
	rates := []int{cfg.SampleRate}
	if def := int(caps.DefaultSampleRate); def > 0 && def != cfg.SampleRate {
		rates = append(rates, def)
	}

	var channels []int
	if cfg.Channels > 0 {
		if cfg.Channels <= caps.MaxInputChannels {
			channels = []int{cfg.Channels}
		}
	} else {
		for _, ch := range []int{1, 2} {
			if ch <= caps.MaxInputChannels {
				channels = append(channels, ch)
			}
		}
	}

	var out []Format
	for _, rate := range rates {
		for _, ch := range channels {
			for _, sf := range []audio.Format{audio.F32, audio.S16} {
				out = append(out, Format{
					SampleRate:   rate,
					Channels:     ch,
					SampleFormat: sf,
					DeviceName:   caps.Name,
				})
			}
		}
	}
	return out
}

// findInputDevice returns the named input device, or the default one when
// name is empty or "default". PortAudio must be initialized.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil || dev == nil {
			return nil, ErrNoInputDevice
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %q not found", ErrNoInputDevice, name)
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// ListInputDevices returns the input devices PortAudio can see.
func ListInputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}
	return out, nil
}

// ProbeResult is the outcome of a short capture test.
type ProbeResult struct {
	Format Format
	Frames int64
	Peak   float32
}

// Probe opens d for duration and reports what arrived. It is used to check
// microphone access before a session.
func Probe(d Device, duration time.Duration) (ProbeResult, error) {
	var mu sync.Mutex
	var res ProbeResult

	format, err := d.Open(func(f audio.Frame) {
		p := audio.Peak(f.Float())
		mu.Lock()
		res.Frames++
		if p > res.Peak {
			res.Peak = p
		}
		mu.Unlock()
	})
	if err != nil {
		return ProbeResult{}, err
	}

	time.Sleep(duration)
	closeErr := d.Close()

	mu.Lock()
	defer mu.Unlock()
	res.Format = format
	return res, closeErr
}

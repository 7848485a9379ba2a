package testutil

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/transcriber"
)

// FakeClock is a manually advanced clock, safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Tone returns n samples of a 440 Hz sine at 16 kHz with peak amplitude amp.
// Its RMS is amp/sqrt(2).
func Tone(n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*440*float64(i)/audio.TargetSampleRate))
	}
	return out
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// FakeDevice implements recording.Device. Tests push audio through Feed
// after the controller under test has opened it.
type FakeDevice struct {
	Format    recording.Format
	OpenError error
	// OnOpen runs inside Open once the callback is registered, like a driver
	// that starts delivering before Open returns.
	OnOpen func(d *FakeDevice)

	mu      sync.Mutex
	onFrame func(audio.Frame)
	opens   int
	closes  int
}

// NewFakeDevice returns a mono float32 device at 16 kHz.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		Format: recording.Format{
			SampleRate:   audio.TargetSampleRate,
			Channels:     1,
			SampleFormat: audio.F32,
			DeviceName:   "fake",
		},
	}
}

func (d *FakeDevice) Open(onFrame func(audio.Frame)) (recording.Format, error) {
	d.mu.Lock()
	if d.OpenError != nil {
		d.mu.Unlock()
		return recording.Format{}, d.OpenError
	}
	if d.onFrame != nil {
		d.mu.Unlock()
		return recording.Format{}, recording.ErrAlreadyOpen
	}
	d.onFrame = onFrame
	d.opens++
	format, hook := d.Format, d.OnOpen
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return format, nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onFrame != nil {
		d.closes++
	}
	d.onFrame = nil
	return nil
}

// IsOpen reports whether a callback is registered.
func (d *FakeDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onFrame != nil
}

func (d *FakeDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Feed delivers one float32 frame in the device format. It returns false
// when the device is closed. The callback runs on the caller's goroutine,
// as a driver thread would.
func (d *FakeDevice) Feed(samples []float32) bool {
	d.mu.Lock()
	cb := d.onFrame
	format := d.Format
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(audio.Frame{
		Format:     audio.F32,
		Channels:   format.Channels,
		SampleRate: format.SampleRate,
		F32:        samples,
		Timestamp:  time.Now(),
	})
	return true
}

// FeedFrame delivers a prepared frame.
func (d *FakeDevice) FeedFrame(f audio.Frame) bool {
	d.mu.Lock()
	cb := d.onFrame
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(f)
	return true
}

// EngineCall records one Transcribe invocation.
type EngineCall struct {
	Mode    transcriber.Mode
	Samples int
}

// StubEngine implements transcriber.Engine with scripted responses.
// Preview calls consume Previews in order (the last one repeats); final
// calls return Final.
type StubEngine struct {
	Previews   [][]string
	Final      []string
	PreviewErr error
	FinalErr   error
	// Block, when set, holds each call until it is closed.
	Block chan struct{}

	mu     sync.Mutex
	calls  []EngineCall
	closed bool
}

func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

func (e *StubEngine) Transcribe(ctx context.Context, samples []float32, mode transcriber.Mode) ([]string, error) {
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine closed")
	}

	previews := 0
	for _, c := range e.calls {
		if c.Mode == transcriber.ModePreview {
			previews++
		}
	}
	e.calls = append(e.calls, EngineCall{Mode: mode, Samples: len(samples)})

	if mode == transcriber.ModeFinal {
		return e.Final, e.FinalErr
	}
	if e.PreviewErr != nil {
		return nil, e.PreviewErr
	}
	if len(e.Previews) == 0 {
		return nil, nil
	}
	if previews >= len(e.Previews) {
		previews = len(e.Previews) - 1
	}
	return e.Previews[previews], nil
}

func (e *StubEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *StubEngine) Calls() []EngineCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EngineCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallsOf counts the calls made with mode.
func (e *StubEngine) CallsOf(mode transcriber.Mode) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Mode == mode {
			n++
		}
	}
	return n
}

// EngineFactory returns a transcriber.Factory that always yields engine.
func EngineFactory(engine transcriber.Engine) transcriber.Factory {
	return func() (transcriber.Engine, error) {
		return engine, nil
	}
}

// FailingFactory returns a transcriber.Factory that always fails with err.
func FailingFactory(err error) transcriber.Factory {
	return func() (transcriber.Engine, error) {
		return nil, err
	}
}

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

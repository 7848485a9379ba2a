package segment

import (
	"testing"
	"time"

	"github.com/quillpad/quilldict/internal/testutil"
)

const batch = 1600 // 100ms at 16 kHz

func newTestSegmenter(t *testing.T) (*Segmenter, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock()
	s, err := New(DefaultConfig(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s, clock
}

// feed pushes n batches, advancing the clock by 100ms before each one.
func feed(s *Segmenter, clock *testutil.FakeClock, samples []float32, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(100 * time.Millisecond)
		s.Push(samples)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative threshold", func(c *Config) { c.SpeechThreshold = -0.1 }, true},
		{"zero silence", func(c *Config) { c.SilenceDuration = 0 }, true},
		{"zero cap", func(c *Config) { c.MaxChunkDuration = 0 }, true},
		{"min above cap", func(c *Config) { c.MinChunkDuration = 30 * time.Second }, true},
		{"zero min", func(c *Config) { c.MinChunkDuration = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSilenceWhileIdleIsDropped(t *testing.T) {
	s, clock := newTestSegmenter(t)
	feed(s, clock, testutil.Silence(batch), 50)

	if s.State() != Idle {
		t.Errorf("State() = %s, want idle", s.State())
	}
	if s.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", s.Buffered())
	}
	if _, ok := s.Poll(); ok {
		t.Error("Poll() should not emit without speech")
	}
	if s.TakeParagraphBreak() {
		t.Error("silence without speech should not raise a paragraph break")
	}
}

func TestSpeechThenSilenceEmitsChunk(t *testing.T) {
	s, clock := newTestSegmenter(t)

	feed(s, clock, testutil.Tone(batch, 0.1), 20) // 2s speech
	if s.State() != Speaking {
		t.Fatalf("State() = %s, want speaking", s.State())
	}

	// the timer starts at the first silent batch
	feed(s, clock, testutil.Silence(batch), 40)
	if _, ok := s.Poll(); ok {
		t.Fatal("Poll() should wait for the full silence timeout")
	}

	feed(s, clock, testutil.Silence(batch), 1)
	chunk, ok := s.Poll()
	if !ok {
		t.Fatal("Poll() should emit after 4s of silence")
	}
	if chunk.Reason != ReasonSilence {
		t.Errorf("Reason = %s, want silence", chunk.Reason)
	}
	// silence after speech is kept in the chunk
	if want := 61 * batch; len(chunk.Samples) != want {
		t.Errorf("chunk length = %d, want %d", len(chunk.Samples), want)
	}
	if s.State() != Idle || s.Buffered() != 0 {
		t.Errorf("segmenter should be idle and empty after emission, got %s/%d", s.State(), s.Buffered())
	}

	if !s.TakeParagraphBreak() {
		t.Error("paragraph break should be pending after a silence-closed chunk")
	}
	if s.TakeParagraphBreak() {
		t.Error("paragraph break must be raised only once per silence")
	}
	if got := s.Stats(); got.Emitted != 1 || got.Discarded != 0 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestPauseInsideUtteranceKeepsChunkOpen(t *testing.T) {
	s, clock := newTestSegmenter(t)

	feed(s, clock, testutil.Tone(batch, 0.1), 10)
	feed(s, clock, testutil.Silence(batch), 30) // 3s pause
	if _, ok := s.Poll(); ok {
		t.Fatal("a pause shorter than the timeout should not close the chunk")
	}
	feed(s, clock, testutil.Tone(batch, 0.1), 10)
	feed(s, clock, testutil.Silence(batch), 30)
	if _, ok := s.Poll(); ok {
		t.Fatal("speech should have reset the silence timer")
	}

	feed(s, clock, testutil.Silence(batch), 11)
	chunk, ok := s.Poll()
	if !ok {
		t.Fatal("expected a chunk after the final silence")
	}
	if want := 91 * batch; len(chunk.Samples) != want {
		t.Errorf("chunk length = %d, want %d", len(chunk.Samples), want)
	}
}

func TestMaxDurationCap(t *testing.T) {
	s, clock := newTestSegmenter(t)

	feed(s, clock, testutil.Tone(batch, 0.1), 249)
	if _, ok := s.Poll(); ok {
		t.Fatal("chunk should stay open below the cap")
	}
	feed(s, clock, testutil.Tone(batch, 0.1), 1)

	chunk, ok := s.Poll()
	if !ok {
		t.Fatal("Poll() should emit at the 25s cap")
	}
	if chunk.Reason != ReasonMaxDuration {
		t.Errorf("Reason = %s, want max_duration", chunk.Reason)
	}
	if got := chunk.Duration(16000); got != 25*time.Second {
		t.Errorf("Duration() = %v, want 25s", got)
	}
	if s.TakeParagraphBreak() {
		t.Error("a capped chunk should not raise a paragraph break")
	}

	// continuous speech starts the next chunk immediately
	feed(s, clock, testutil.Tone(batch, 0.1), 1)
	if s.State() != Speaking {
		t.Errorf("State() = %s, want speaking", s.State())
	}
}

func TestShortChunkIsDiscarded(t *testing.T) {
	clock := testutil.NewFakeClock()
	cfg := DefaultConfig()
	cfg.SilenceDuration = 100 * time.Millisecond
	s, err := New(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	feed(s, clock, testutil.Tone(batch, 0.1), 3)
	feed(s, clock, testutil.Silence(batch), 1)
	clock.Advance(100 * time.Millisecond)
	if _, ok := s.Poll(); ok {
		t.Fatal("0.4s chunk should be discarded")
	}
	if s.State() != Idle {
		t.Errorf("State() = %s, want idle after discard", s.State())
	}
	if got := s.Stats(); got.Discarded != 1 || got.Emitted != 0 {
		t.Errorf("Stats() = %+v", got)
	}
	if !s.TakeParagraphBreak() {
		t.Error("the silence that closed a discarded chunk should still raise a break")
	}
	if s.TakeParagraphBreak() {
		t.Error("break should be cleared once taken")
	}
}

func TestTrailingSilenceDoesNotCountTowardsMinimum(t *testing.T) {
	s, clock := newTestSegmenter(t)

	feed(s, clock, testutil.Tone(batch, 0.1), 3)
	feed(s, clock, testutil.Silence(batch), 50)
	if _, ok := s.Poll(); ok {
		t.Fatal("0.3s of speech followed by 5s of silence should be discarded")
	}
	if got := s.Stats(); got.Discarded != 1 {
		t.Errorf("Stats() = %+v", got)
	}
	if !s.TakeParagraphBreak() {
		t.Error("5s of silence after a blip should raise a paragraph break")
	}
}

func TestSingleWordSurvives(t *testing.T) {
	s, clock := newTestSegmenter(t)

	feed(s, clock, testutil.Tone(batch, 0.1), 5)
	feed(s, clock, testutil.Silence(batch), 41)
	if _, ok := s.Poll(); !ok {
		t.Error("0.5s of speech plus trailing silence should be emitted")
	}
}

func TestParagraphBreakDuringLongSilence(t *testing.T) {
	cfg := DefaultConfig()
	clock := testutil.NewFakeClock()
	s, err := New(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}

	feed(s, clock, testutil.Tone(batch, 0.1), 10)
	feed(s, clock, testutil.Silence(batch), 45)

	// break observed before Poll runs
	if !s.TakeParagraphBreak() {
		t.Fatal("expected a paragraph break after 4.5s of silence")
	}
	if s.TakeParagraphBreak() {
		t.Error("break should be cleared once taken")
	}

	feed(s, clock, testutil.Silence(batch), 1)
	if _, ok := s.Poll(); !ok {
		t.Fatal("chunk should still close on the same silence")
	}
	if s.TakeParagraphBreak() {
		t.Error("chunk closed by an already reported silence must not raise another break")
	}
}

func TestEnergyClassifier(t *testing.T) {
	c := EnergyClassifier{Threshold: 0.008}
	tests := []struct {
		name    string
		samples []float32
		want    bool
	}{
		{"silence", testutil.Silence(160), false},
		{"below threshold", testutil.Tone(160, 0.005), false},
		{"speech", testutil.Tone(160, 0.1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsSpeech(tt.samples); got != tt.want {
				t.Errorf("IsSpeech() = %v, want %v", got, tt.want)
			}
		})
	}
}

type scriptedClassifier struct {
	decisions []bool
	calls     int
}

func (c *scriptedClassifier) IsSpeech([]float32) bool {
	d := c.decisions[c.calls%len(c.decisions)]
	c.calls++
	return d
}

func TestWithClassifier(t *testing.T) {
	clock := testutil.NewFakeClock()
	c := &scriptedClassifier{decisions: []bool{true}}
	s, err := New(DefaultConfig(), WithClock(clock.Now), WithClassifier(c))
	if err != nil {
		t.Fatal(err)
	}

	// a silent buffer is treated as speech because the classifier says so
	feed(s, clock, testutil.Silence(batch), 3)
	if s.State() != Speaking {
		t.Errorf("State() = %s, want speaking", s.State())
	}
	if c.calls != 3 {
		t.Errorf("classifier called %d times, want 3", c.calls)
	}
}

func TestWebRTCClassifier(t *testing.T) {
	t.Run("invalid rate", func(t *testing.T) {
		if _, err := NewWebRTCClassifier(22050, 2, 0.008); err == nil {
			t.Error("22050 Hz should be rejected")
		}
	})

	t.Run("energy floor", func(t *testing.T) {
		w, err := NewWebRTCClassifier(16000, 2, 0.008)
		if err != nil {
			t.Fatalf("NewWebRTCClassifier() failed: %v", err)
		}
		if w.IsSpeech(testutil.Tone(480, 0.001)) {
			t.Error("near silence should be rejected")
		}
		if len(w.pending) != 0 {
			t.Errorf("rejected batch reached the VAD buffer (%d samples)", len(w.pending))
		}
	})

	t.Run("partial frame is held", func(t *testing.T) {
		w, err := NewWebRTCClassifier(16000, 2, 0.008)
		if err != nil {
			t.Fatalf("NewWebRTCClassifier() failed: %v", err)
		}
		// 5ms is half a VAD frame
		if !w.IsSpeech(testutil.Tone(80, 0.1)) {
			t.Error("a loud partial frame defers to the energy decision")
		}
		if len(w.pending) != 80 {
			t.Fatalf("pending = %d samples, want 80", len(w.pending))
		}

		// completes one 160-sample frame and leaves 20 behind
		w.IsSpeech(testutil.Tone(100, 0.1))
		if len(w.pending) != 20 {
			t.Errorf("pending = %d samples after one full frame, want 20", len(w.pending))
		}
	})

	t.Run("segmenter option", func(t *testing.T) {
		w, err := NewWebRTCClassifier(16000, 3, 0.008)
		if err != nil {
			t.Fatal(err)
		}
		clock := testutil.NewFakeClock()
		s, err := New(DefaultConfig(), WithClock(clock.Now), WithClassifier(w))
		if err != nil {
			t.Fatal(err)
		}
		feed(s, clock, testutil.Silence(batch), 5)
		if s.State() != Idle {
			t.Errorf("State() = %s, want idle on silence", s.State())
		}
	})
}

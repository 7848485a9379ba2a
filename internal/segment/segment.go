package segment

import (
	"fmt"
	"time"

	"github.com/quillpad/quilldict/internal/audio"
)

type State string

const (
	Idle     State = "idle"
	Speaking State = "speaking"
)

// Reason records why a chunk was closed.
type Reason string

const (
	ReasonSilence     Reason = "silence"
	ReasonMaxDuration Reason = "max_duration"
)

// Config holds the segmentation tunables. The defaults keep single words;
// noisy rooms may need a higher threshold.
type Config struct {
	SampleRate       int
	SpeechThreshold  float32
	SilenceDuration  time.Duration
	MaxChunkDuration time.Duration
	MinChunkDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.TargetSampleRate,
		SpeechThreshold:  0.008,
		SilenceDuration:  4 * time.Second,
		MaxChunkDuration: 25 * time.Second,
		MinChunkDuration: 500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.SpeechThreshold < 0 {
		return fmt.Errorf("invalid speech threshold: %f", c.SpeechThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("invalid silence duration: %v", c.SilenceDuration)
	}
	if c.MaxChunkDuration <= 0 {
		return fmt.Errorf("invalid max chunk duration: %v", c.MaxChunkDuration)
	}
	if c.MinChunkDuration < 0 || c.MinChunkDuration > c.MaxChunkDuration {
		return fmt.Errorf("invalid min chunk duration: %v", c.MinChunkDuration)
	}
	return nil
}

// Chunk is one candidate utterance.
type Chunk struct {
	Samples   []float32
	StartedAt time.Time
	Reason    Reason
}

func (c Chunk) Duration(rate int) time.Duration {
	return audio.Duration(len(c.Samples), rate)
}

// Stats counts segmenter outcomes over its lifetime.
type Stats struct {
	Emitted   int
	Discarded int
}

// Segmenter accumulates contiguous speech into chunks. It is not safe for
// concurrent use; callers serialize Push and Poll under one lock.
type Segmenter struct {
	cfg        Config
	classifier Classifier
	now        func() time.Time

	state        State
	buf          []float32
	voiced       int // buffer length up to the end of the last speech batch
	startedAt    time.Time
	silenceStart time.Time
	breakPending bool
	breakRaised  bool

	stats Stats
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// WithClassifier replaces the default energy classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Segmenter) { s.classifier = c }
}

func New(cfg Config, opts ...Option) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Segmenter{
		cfg:        cfg,
		classifier: EnergyClassifier{Threshold: cfg.SpeechThreshold},
		now:        time.Now,
		state:      Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Segmenter) State() State {
	return s.state
}

func (s *Segmenter) Stats() Stats {
	return s.stats
}

// Buffered returns the number of samples in the active chunk.
func (s *Segmenter) Buffered() int {
	return len(s.buf)
}

// Push classifies one batch of normalized samples and accumulates it.
func (s *Segmenter) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	now := s.now()

	if s.classifier.IsSpeech(samples) {
		if s.state == Idle {
			s.state = Speaking
			s.startedAt = now
		}
		s.silenceStart = time.Time{}
		s.breakRaised = false
		s.buf = append(s.buf, samples...)
		s.voiced = len(s.buf)
		return
	}

	if s.state != Speaking {
		return
	}
	if s.silenceStart.IsZero() {
		s.silenceStart = now
	}
	// pauses inside an utterance stay in the chunk
	s.buf = append(s.buf, samples...)
}

// Poll closes the active chunk when the silence timeout or the duration cap
// has been reached. Chunks whose voiced part (trailing silence excluded) is
// shorter than the minimum are dropped; a silence close still leaves a
// paragraph break pending.
func (s *Segmenter) Poll() (Chunk, bool) {
	if s.state != Speaking || len(s.buf) == 0 {
		return Chunk{}, false
	}

	silenceDone := s.silenceElapsed() >= s.cfg.SilenceDuration
	capReached := len(s.buf) >= audio.Samples(s.cfg.MaxChunkDuration, s.cfg.SampleRate)
	if !silenceDone && !capReached {
		return Chunk{}, false
	}

	chunk := Chunk{Samples: s.buf, StartedAt: s.startedAt, Reason: ReasonMaxDuration}
	if silenceDone {
		chunk.Reason = ReasonSilence
	}
	raised := s.breakRaised
	voiced := s.voiced
	s.reset()

	// the long silence is reported whether or not the chunk survives
	if chunk.Reason == ReasonSilence && !raised {
		s.breakPending = true
	}

	if voiced < audio.Samples(s.cfg.MinChunkDuration, s.cfg.SampleRate) {
		s.stats.Discarded++
		return Chunk{}, false
	}
	s.stats.Emitted++
	return chunk, true
}

// TakeParagraphBreak reports a long silence once. The signal is cleared when
// consumed so the same pause never raises it twice.
func (s *Segmenter) TakeParagraphBreak() bool {
	if s.breakPending {
		s.breakPending = false
		return true
	}
	if s.state == Speaking && !s.breakRaised && s.silenceElapsed() >= s.cfg.SilenceDuration {
		s.breakRaised = true
		return true
	}
	return false
}

func (s *Segmenter) silenceElapsed() time.Duration {
	if s.silenceStart.IsZero() {
		return 0
	}
	return s.now().Sub(s.silenceStart)
}

func (s *Segmenter) reset() {
	s.buf = nil
	s.voiced = 0
	s.state = Idle
	s.silenceStart = time.Time{}
	s.startedAt = time.Time{}
	s.breakRaised = false
}

package transcriber

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/models/whisper"
)

// Mode selects the decoding profile.
type Mode int

const (
	// ModePreview trades accuracy for latency on short utterances.
	ModePreview Mode = iota
	// ModeFinal decodes a whole session recording.
	ModeFinal
)

func (m Mode) String() string {
	if m == ModeFinal {
		return "final"
	}
	return "preview"
}

// Engine converts normalized 16 kHz mono samples into text segments.
// Implementations need not be safe for concurrent use; wrap them in Shared.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, mode Mode) ([]string, error)
	Close() error
}

// Gate defaults: chunks quieter than this are not worth a recognition call.
const (
	DefaultMinRMS  = 0.008
	DefaultMinPeak = 0.005
)

// DefaultMinInput is the shortest buffer handed to an engine.
const DefaultMinInput = time.Second

type Config struct {
	Provider  string
	Model     string
	ModelPath string
	Language  string
	Threads   int
	APIKey    string
	BaseURL   string
}

func DefaultConfig() Config {
	return Config{
		Provider: "whisper.cpp",
		Model:    whisper.DefaultModel,
		Language: "en",
	}
}

// NewEngine builds the engine selected by config.Provider.
func NewEngine(config Config) (Engine, error) {
	switch config.Provider {
	case "whisper.cpp", "":
		modelPath, err := whisper.Resolve(config.Model, config.ModelPath)
		if err != nil {
			return nil, err
		}
		return NewWhisperCppEngine(modelPath, config.Language, config.Threads)

	case "openai":
		if config.APIKey == "" {
			config.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIEngine(config), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// Factory constructs an engine on first use.
type Factory func() (Engine, error)

// Loader owns the process-wide engine. Loading is lazy and happens at most
// once per successful construction; a failed load is retried on the next Get.
type Loader struct {
	mu      sync.Mutex
	factory Factory
	engine  *Shared
	log     zerolog.Logger
}

func NewLoader(factory Factory) *Loader {
	return &Loader{factory: factory, log: logging.WithComponent("engine")}
}

// Get returns the shared engine, constructing it if needed.
func (l *Loader) Get() (*Shared, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return l.engine, nil
	}

	start := time.Now()
	e, err := l.factory()
	if err != nil {
		l.log.Error().Err(err).Msg("engine load failed")
		return nil, &InitError{Err: err}
	}
	l.engine = NewShared(e)
	l.log.Info().Dur("took", time.Since(start)).Msg("engine loaded")
	return l.engine, nil
}

func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Reset installs a new factory and releases the current engine so the next
// Get builds from the new configuration.
func (l *Loader) Reset(factory Factory) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.factory = factory
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}

func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}

// Shared serializes access to an engine: at most one call is in flight.
type Shared struct {
	mu     sync.Mutex
	engine Engine
}

func NewShared(e Engine) *Shared {
	return &Shared{engine: e}
}

func (s *Shared) Transcribe(ctx context.Context, samples []float32, mode Mode) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Transcribe(ctx, samples, mode)
}

func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}

// Gate reports whether samples are loud enough to transcribe.
func Gate(samples []float32, minRMS, minPeak float32) bool {
	return audio.RMS(samples) >= minRMS && audio.Peak(samples) >= minPeak
}

// PadToMinimum returns samples zero-padded to n. The input is never modified;
// buffers already long enough are returned unchanged.
func PadToMinimum(samples []float32, n int) []float32 {
	if len(samples) >= n {
		return samples
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}

var timestampPrefix = regexp.MustCompile(`^\[[0-9:.]+\s*-->\s*[0-9:.]+\]\s*`)

// SplitSegments turns engine output into trimmed, non-empty segments,
// stripping whisper timestamp prefixes.
func SplitSegments(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(timestampPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// JoinSegments concatenates segments the way the final result is presented.
func JoinSegments(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}

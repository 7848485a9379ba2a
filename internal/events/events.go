package events

import (
	"encoding/json"
	"sync"
	"time"
)

type Kind string

const (
	KindResult         Kind = "result"
	KindParagraphBreak Kind = "paragraph_break"
	KindFinalResult    Kind = "final_result"
	KindStatus         Kind = "status"
	KindWarning        Kind = "warning"
	KindError          Kind = "error"
)

type Status string

const (
	StatusStarted    Status = "started"
	StatusStopped    Status = "stopped"
	StatusProcessing Status = "processing"
	StatusError      Status = "error"
)

// Result is an incremental preview transcription of one utterance.
type Result struct {
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	IsPreview bool   `json:"is_preview"`
}

// BreakParagraph is the ParagraphBreak type raised after a long silence.
const BreakParagraph = "paragraph_break"

type ParagraphBreak struct {
	Type            string  `json:"type"`
	SilenceDuration float64 `json:"silence_duration"`
}

// FinalResult is the transcription of the whole session recording.
type FinalResult struct {
	Text            string  `json:"text"`
	IsComplete      bool    `json:"is_complete"`
	DurationSeconds float64 `json:"duration_seconds"`
	SessionFile     string  `json:"session_file"`
}

type StatusChange struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Event is the envelope delivered to every subscriber. Payload holds one of
// Result, ParagraphBreak, FinalResult, StatusChange or a plain string for
// warnings and errors.
type Event struct {
	Kind    Kind      `json:"kind"`
	Session string    `json:"session,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher receives events. Implementations must not block the caller for long.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Multi fans an event out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of kind k in publication order.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until at least n events of kind k were recorded or timeout elapses.
func (r *Recorder) WaitFor(k Kind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if len(r.OfKind(k)) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return len(r.OfKind(k)) >= n
		case <-time.After(10 * time.Millisecond):
		}
	}
}

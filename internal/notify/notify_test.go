package notify

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/events"
)

type commandLog struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (c *commandLog) run(name string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]string{name}, args...))
	return c.err
}

func (c *commandLog) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

func TestDesktopNotifier(t *testing.T) {
	tests := []struct {
		name string
		call func(Desktop)
		want []string
	}{
		{"started", func(d Desktop) { d.DictationChanged(true) }, []string{"notify-send", "-a", "quilldict", "Dictation started"}},
		{"stopped", func(d Desktop) { d.DictationChanged(false) }, []string{"notify-send", "-a", "quilldict", "Dictation stopped"}},
		{"error", func(d Desktop) { d.Error("mic unplugged") }, []string{"notify-send", "-a", "quilldict", "-u", "critical", "quilldict error", "mic unplugged"}},
		{"notify", func(d Desktop) { d.Notify("Title", "Body") }, []string{"notify-send", "-a", "quilldict", "Title", "Body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &commandLog{}
			tt.call(Desktop{Run: cmds.run})

			got := cmds.last()
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("command = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDesktopNotifier_CommandFailureIsIgnored(t *testing.T) {
	cmds := &commandLog{err: errors.New("notify-send: not found")}
	d := Desktop{Run: cmds.run}
	d.DictationChanged(true)
	d.Error("boom")
	if len(cmds.calls) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(cmds.calls))
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := Log{Logger: &logger}

	tests := []struct {
		name     string
		call     func()
		expected []string
	}{
		{"started", func() { n.DictationChanged(true) }, []string{"Dictation started", `"level":"info"`}},
		{"stopped", func() { n.DictationChanged(false) }, []string{"Dictation stopped"}},
		{"error", func() { n.Error("device lost") }, []string{"Dictation error", "device lost", `"level":"error"`}},
		{"notify", func() { n.Notify("Transcript ready", "12.4s recorded") }, []string{"Transcript ready", "12.4s recorded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.call()
			output := buf.String()
			for _, want := range tt.expected {
				if !strings.Contains(output, want) {
					t.Errorf("log output should contain %q, got: %s", want, output)
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		enabled bool
		kind    string
		want    Notifier
	}{
		{true, "desktop", Desktop{}},
		{true, "Desktop", Desktop{}},
		{true, "log", Log{}},
		{true, "none", Nop{}},
		{true, "carrier-pigeon", Nop{}},
		{false, "desktop", Nop{}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got := New(tt.enabled, tt.kind)
			switch tt.want.(type) {
			case Desktop:
				if _, ok := got.(Desktop); !ok {
					t.Errorf("New(%v, %q) = %T, want Desktop", tt.enabled, tt.kind, got)
				}
			case Log:
				if _, ok := got.(Log); !ok {
					t.Errorf("New(%v, %q) = %T, want Log", tt.enabled, tt.kind, got)
				}
			case Nop:
				if _, ok := got.(Nop); !ok {
					t.Errorf("New(%v, %q) = %T, want Nop", tt.enabled, tt.kind, got)
				}
			}
		})
	}
}

type recordingNotifier struct {
	changes  []bool
	errors   []string
	messages []string
}

func (r *recordingNotifier) DictationChanged(on bool)     { r.changes = append(r.changes, on) }
func (r *recordingNotifier) Error(msg string)             { r.errors = append(r.errors, msg) }
func (r *recordingNotifier) Notify(title, message string) { r.messages = append(r.messages, title) }

func TestPublisher(t *testing.T) {
	rec := &recordingNotifier{}
	p := Publisher{N: rec}

	p.Publish(events.Event{Kind: events.KindStatus, Payload: events.StatusChange{Status: events.StatusStarted}})
	p.Publish(events.Event{Kind: events.KindResult, Payload: events.Result{Text: "Hello.", IsPreview: true}})
	p.Publish(events.Event{Kind: events.KindParagraphBreak, Payload: events.ParagraphBreak{Type: events.BreakParagraph}})
	p.Publish(events.Event{Kind: events.KindStatus, Payload: events.StatusChange{Status: events.StatusProcessing}})
	p.Publish(events.Event{Kind: events.KindFinalResult, Payload: events.FinalResult{Text: "Hello.", SessionFile: "/tmp/a.wav", DurationSeconds: 3}})
	p.Publish(events.Event{Kind: events.KindStatus, Payload: events.StatusChange{Status: events.StatusStopped}})
	p.Publish(events.Event{Kind: events.KindError, Payload: "failed to open audio input: no input device"})
	p.Publish(events.Event{Kind: events.KindWarning, Payload: "preview transcription failed"})

	if len(rec.changes) != 2 || !rec.changes[0] || rec.changes[1] {
		t.Errorf("changes = %v, want [true false]", rec.changes)
	}
	if len(rec.errors) != 1 || !strings.Contains(rec.errors[0], "no input device") {
		t.Errorf("errors = %v", rec.errors)
	}
	if len(rec.messages) != 1 || rec.messages[0] != "Transcript ready" {
		t.Errorf("messages = %v", rec.messages)
	}
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	n.DictationChanged(true)
	n.Error("")
	n.Notify("", "")
}

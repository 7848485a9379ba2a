package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubPublish(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	defer cancelA()
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish(Event{Kind: KindWarning, Payload: "recorder lagging"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case e := <-ch:
			if e.Kind != KindWarning {
				t.Errorf("subscriber %s got kind %s, want warning", name, e.Kind)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %s received nothing", name)
		}
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish(Event{Kind: KindStatus})
	h.Publish(Event{Kind: KindStatus})
	h.Publish(Event{Kind: KindStatus})

	if got := h.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestHubCancel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	if h.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Subscribers())
	}
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if h.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Subscribers())
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	h.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed by hub Close")
	}

	late, _ := h.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed hub should return a closed channel")
	}
}

func TestMulti(t *testing.T) {
	first, second := NewRecorder(), NewRecorder()
	m := Multi{first, nil, second}
	m.Publish(Event{Kind: KindParagraphBreak})

	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Errorf("both publishers should receive the event: %d, %d", len(first.Events()), len(second.Events()))
	}
}

func TestRecorderWaitFor(t *testing.T) {
	r := NewRecorder()
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Publish(Event{Kind: KindResult})
	}()

	if !r.WaitFor(KindResult, 1, time.Second) {
		t.Fatal("WaitFor should observe the published event")
	}
	if r.WaitFor(KindFinalResult, 1, 30*time.Millisecond) {
		t.Error("WaitFor should time out for missing events")
	}
}

func TestEventJSON(t *testing.T) {
	e := Event{
		Kind:    KindFinalResult,
		Session: "dictation_1",
		Payload: FinalResult{Text: "hello there", IsComplete: true, DurationSeconds: 2.5, SessionFile: "/tmp/a.wav"},
	}
	data, err := e.JSON()
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"kind":"final_result"`, `"is_complete":true`, `"duration_seconds":2.5`, `"session_file":"/tmp/a.wav"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(NewHandler(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(Event{Kind: KindResult, Payload: Result{Text: "chapter one", IsPreview: true}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got struct {
		Kind    Kind   `json:"kind"`
		Payload Result `json:"payload"`
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", msg, err)
	}
	if got.Kind != KindResult || got.Payload.Text != "chapter one" || !got.Payload.IsPreview {
		t.Errorf("unexpected event: %+v", got)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/quillpad/quilldict/internal/daemon"
	"github.com/quillpad/quilldict/internal/dictation"
	"github.com/quillpad/quilldict/internal/events"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/session"
	"github.com/quillpad/quilldict/internal/tui"
)

func renderOK(msg string) string {
	return tui.StyleSuccess.Render(msg)
}

func renderStatus(payload string) (string, error) {
	var st dictation.Status
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return "", fmt.Errorf("unexpected status reply: %w", err)
	}

	state := string(st.State)
	if st.State == dictation.Running {
		state = tui.StyleHighlight.Render(state)
	} else {
		state = tui.StyleMuted.Render(state)
	}
	lines := []string{tui.KeyValue("State:", state)}
	if st.SessionID != "" {
		lines = append(lines,
			tui.KeyValue("Session:", st.SessionID),
			tui.KeyValue("Started:", st.StartedAt.Local().Format(time.Kitchen)),
			tui.KeyValue("Frames:", fmt.Sprint(st.Frames)),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...), nil
}

func renderSessions(payload string) (string, error) {
	var list []session.Info
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return "", fmt.Errorf("unexpected sessions reply: %w", err)
	}
	if len(list) == 0 {
		return tui.StyleMuted.Render("no sessions recorded yet"), nil
	}

	var b strings.Builder
	for _, s := range list {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			tui.StyleLabel.Render(s.ID),
			s.Created.Local().Format("2006-01-02 15:04"),
			tui.StyleMuted.Render(s.Duration.Round(100*time.Millisecond).String()))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderDiagnosis(payload string) (string, bool, error) {
	var rep daemon.DiagnoseReply
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return "", false, fmt.Errorf("unexpected diagnose reply: %w", err)
	}
	lines := make([]string, 0, len(rep.Checks))
	for _, c := range rep.Checks {
		if strings.HasPrefix(c, "FAIL") {
			lines = append(lines, tui.StyleError.Render(c))
		} else {
			lines = append(lines, c)
		}
	}
	return strings.Join(lines, "\n"), rep.Healthy, nil
}

func renderDevices(devices []recording.DeviceInfo) string {
	if len(devices) == 0 {
		return tui.StyleWarning.Render("no input devices found")
	}
	var b strings.Builder
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = tui.StyleHighlight.Render("*")
		}
		fmt.Fprintf(&b, "%s %s %s\n", mark, d.Name,
			tui.StyleMuted.Render(fmt.Sprintf("(%d ch, %.0f Hz)", d.MaxInputChannels, d.DefaultSampleRate)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// wireEvent mirrors events.Event with the payload left undecoded.
type wireEvent struct {
	Kind    events.Kind     `json:"kind"`
	Session string          `json:"session"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

func formatEvent(raw []byte) (string, error) {
	var e wireEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", err
	}

	switch e.Kind {
	case events.KindResult:
		var r events.Result
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return "", err
		}
		return tui.StyleMuted.Render("… ") + r.Text, nil
	case events.KindParagraphBreak:
		return "", nil
	case events.KindFinalResult:
		var f events.FinalResult
		if err := json.Unmarshal(e.Payload, &f); err != nil {
			return "", err
		}
		return tui.StyleHeader.Render("Final transcript") + "\n" + f.Text, nil
	case events.KindStatus:
		var s events.StatusChange
		if err := json.Unmarshal(e.Payload, &s); err != nil {
			return "", err
		}
		return tui.StyleHighlight.Render("["+string(s.Status)+"]") + " " + s.Message, nil
	case events.KindWarning, events.KindError:
		var msg string
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			return "", err
		}
		if e.Kind == events.KindError {
			return tui.StyleError.Render("error: " + msg), nil
		}
		return tui.StyleWarning.Render("warning: " + msg), nil
	default:
		return string(raw), nil
	}
}

// followEvents prints events from the daemon's websocket endpoint until ctx
// ends or the daemon closes the stream.
func followEvents(ctx context.Context, addr string, out io.Writer) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/events"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		line, err := formatEvent(data)
		if err != nil {
			fmt.Fprintf(out, "%s\n", data)
			continue
		}
		if line == "" {
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintln(out, line)
	}
}

// Package notify surfaces dictation state changes to the user.
package notify

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/events"
	"github.com/quillpad/quilldict/internal/logging"
)

const appName = "quilldict"

type Notifier interface {
	DictationChanged(on bool)
	Error(msg string)
	Notify(title, message string)
}

// CommandRunner executes an external command.
type CommandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Desktop sends notifications through notify-send.
type Desktop struct {
	Run CommandRunner
}

func (d Desktop) send(args ...string) {
	run := d.Run
	if run == nil {
		run = runCommand
	}
	if err := run("notify-send", append([]string{"-a", appName}, args...)...); err != nil {
		log := logging.WithComponent("notify")
		log.Debug().Err(err).Msg("failed to send notification")
	}
}

func (d Desktop) DictationChanged(on bool) {
	d.send(fmt.Sprintf("Dictation %s", onOff(on)))
}

func (d Desktop) Error(msg string) {
	d.send("-u", "critical", appName+" error", msg)
}

func (d Desktop) Notify(title, message string) {
	d.send(title, message)
}

// Log writes notifications to the structured log.
type Log struct {
	Logger *zerolog.Logger
}

func (l Log) logger() zerolog.Logger {
	if l.Logger != nil {
		return *l.Logger
	}
	return logging.WithComponent("notify")
}

func (l Log) DictationChanged(on bool) {
	log := l.logger()
	log.Info().Msgf("Dictation %s", onOff(on))
}

func (l Log) Error(msg string) {
	log := l.logger()
	log.Error().Str("message", msg).Msg("Dictation error")
}

func (l Log) Notify(title, message string) {
	log := l.logger()
	log.Info().Str("title", title).Msg(message)
}

type Nop struct{}

func (Nop) DictationChanged(on bool)     {}
func (Nop) Error(msg string)             {}
func (Nop) Notify(title, message string) {}

// New returns the notifier for a configured type. Unknown types get Nop.
func New(enabled bool, kind string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch strings.ToLower(kind) {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

// Publisher turns dictation events into notifications. Previews and
// paragraph breaks are left to the editor.
type Publisher struct {
	N Notifier
}

func (p Publisher) Publish(e events.Event) {
	switch e.Kind {
	case events.KindStatus:
		sc, ok := e.Payload.(events.StatusChange)
		if !ok {
			return
		}
		switch sc.Status {
		case events.StatusStarted:
			p.N.DictationChanged(true)
		case events.StatusStopped:
			p.N.DictationChanged(false)
		}
	case events.KindError:
		p.N.Error(fmt.Sprint(e.Payload))
	case events.KindFinalResult:
		if fr, ok := e.Payload.(events.FinalResult); ok && fr.SessionFile != "" {
			p.N.Notify("Transcript ready", fmt.Sprintf("%.1fs recorded", fr.DurationSeconds))
		}
	}
}

func onOff(on bool) string {
	if on {
		return "started"
	}
	return "stopped"
}

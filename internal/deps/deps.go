// Package deps checks the external pieces a dictation session depends on.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quillpad/quilldict/internal/models/whisper"
	"github.com/quillpad/quilldict/internal/recording"
)

// Status represents the installation status of an external tool
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// Check is one line of a diagnosis report.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

func (c Check) String() string {
	mark := "ok  "
	if !c.OK {
		mark = "FAIL"
	}
	if c.Detail == "" {
		return fmt.Sprintf("%s %s", mark, c.Name)
	}
	return fmt.Sprintf("%s %s: %s", mark, c.Name, c.Detail)
}

func lookupTool(name string, versionArgs ...string) Status {
	path, err := exec.LookPath(name)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}
	if len(versionArgs) == 0 {
		return status
	}

	output, err := exec.Command(path, versionArgs...).CombinedOutput()
	if err == nil {
		// first line carries the version
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}
	return status
}

// CheckWhisperCli checks if whisper-cli is installed and returns its status
func CheckWhisperCli() Status {
	return lookupTool("whisper-cli", "--version")
}

// CheckNotifySend checks for the desktop notification helper.
func CheckNotifySend() Status {
	return lookupTool("notify-send", "--version")
}

func toolCheck(name string, s Status, required bool) Check {
	if !s.Installed {
		return Check{Name: name, OK: !required, Detail: "not found in PATH"}
	}
	detail := s.Path
	if s.Version != "" {
		detail += " (" + s.Version + ")"
	}
	return Check{Name: name, OK: true, Detail: detail}
}

// CheckModel resolves the configured whisper model.
func CheckModel(model, modelPath string) Check {
	path, err := whisper.Resolve(model, modelPath)
	if err != nil {
		return Check{Name: "model", OK: false, Detail: err.Error()}
	}
	return Check{Name: "model", OK: true, Detail: path}
}

// CheckMicrophone opens d briefly and reports the negotiated format.
func CheckMicrophone(d recording.Device, duration time.Duration) Check {
	res, err := recording.Probe(d, duration)
	if err != nil {
		return Check{Name: "microphone", OK: false, Detail: err.Error()}
	}
	if res.Frames == 0 {
		return Check{Name: "microphone", OK: false, Detail: "no audio frames received"}
	}
	detail := fmt.Sprintf("%s, %d Hz, %d ch, %d frames, peak %.3f",
		res.Format.DeviceName, res.Format.SampleRate, res.Format.Channels, res.Frames, res.Peak)
	if res.Peak == 0 {
		detail += " (silent, check mute)"
	}
	return Check{Name: "microphone", OK: true, Detail: detail}
}

// Options selects what Diagnose inspects. A nil Mic skips the capture test.
type Options struct {
	Provider  string
	Model     string
	ModelPath string
	Mic       recording.Device
	ProbeFor  time.Duration
}

// Diagnose runs every applicable check in order.
func Diagnose(opts Options) []Check {
	var checks []Check

	if opts.Provider == "whisper.cpp" || opts.Provider == "" {
		checks = append(checks, toolCheck("whisper-cli", CheckWhisperCli(), true))
		checks = append(checks, CheckModel(opts.Model, opts.ModelPath))
	}
	checks = append(checks, toolCheck("notify-send", CheckNotifySend(), false))

	if opts.Mic != nil {
		d := opts.ProbeFor
		if d <= 0 {
			d = 500 * time.Millisecond
		}
		checks = append(checks, CheckMicrophone(opts.Mic, d))
	}
	return checks
}

// Healthy reports whether every check passed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}

package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/quillpad/quilldict/internal/config"
	"github.com/quillpad/quilldict/internal/language"
	"github.com/quillpad/quilldict/internal/models/whisper"
	"github.com/quillpad/quilldict/internal/recording"
)

func validateInt(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}

// validateFloat accepts values in [min, max).
func validateFloat(min, max float64) func(string) error {
	return func(s string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if f < min || f >= max {
			return fmt.Errorf("must be at least %g and below %g", min, max)
		}
		return nil
	}
}

func validateDuration(min time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a duration like 500ms or 4s")
		}
		if d < min {
			return fmt.Errorf("must be at least %s", min)
		}
		return nil
	}
}

// Parsers below are only called on values that passed validation.

func mustInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// modelOptions lists the known whisper models, marking installed ones.
// A custom current value is kept as the first option.
func modelOptions(current string, installed func(string) bool) []huh.Option[string] {
	var opts []huh.Option[string]
	if current != "" && whisper.GetModel(current) == nil {
		opts = append(opts, huh.NewOption(current+" (custom)", current))
	}
	for _, m := range whisper.ListModels() {
		label := fmt.Sprintf("%s  %s", m.ID, m.Size)
		if !m.Multilingual {
			label += "  English only"
		}
		if installed(m.ID) {
			label += "  [installed]"
		}
		opts = append(opts, huh.NewOption(label, m.ID))
	}
	return opts
}

// languageOptions puts auto-detect first and keeps an unknown current code.
func languageOptions(current string) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption(language.Label(language.Auto), language.Auto)}
	for _, code := range language.Codes() {
		opts = append(opts, huh.NewOption(language.Label(code), code))
	}
	if !language.Valid(current) {
		opts = append(opts, huh.NewOption(current+" (unknown)", current))
	}
	return opts
}

// deviceOptions lists capture devices, starting with the system default.
func deviceOptions(devices []recording.DeviceInfo, current string) []huh.Option[string] {
	opts := []huh.Option[string]{huh.NewOption("System default", "")}
	found := current == ""
	for _, d := range devices {
		label := fmt.Sprintf("%s (%d ch, %.0f Hz)", d.Name, d.MaxInputChannels, d.DefaultSampleRate)
		if d.IsDefault {
			label += " *"
		}
		opts = append(opts, huh.NewOption(label, d.Name))
		if d.Name == current {
			found = true
		}
	}
	if !found {
		opts = append(opts, huh.NewOption(current+" (not connected)", current))
	}
	return opts
}

func formatCaptureLabel(cfg *config.Config) string {
	device := cfg.Capture.Device
	if device == "" {
		device = "default"
	}
	return fmt.Sprintf("Microphone (%s, %d Hz)", device, cfg.Capture.PreferredRate)
}

func formatSegmenterLabel(cfg *config.Config) string {
	return fmt.Sprintf("Segmentation (%s, paragraph after %s)", cfg.Segmenter.Detector, cfg.Segmenter.SilenceDuration)
}

func formatEngineLabel(cfg *config.Config) string {
	if cfg.Engine.Provider == "openai" {
		return "Recognition (OpenAI)"
	}
	model := cfg.Engine.Model
	if cfg.Engine.ModelPath != "" {
		model = cfg.Engine.ModelPath
	}
	return fmt.Sprintf("Recognition (whisper.cpp, %s)", model)
}

func formatSessionsLabel(cfg *config.Config) string {
	return fmt.Sprintf("Sessions (%s)", cfg.Dictation.SessionsDir)
}

func formatOutputLabel(cfg *config.Config) string {
	notif := "off"
	if cfg.Notifications.Enabled {
		notif = cfg.Notifications.Type
	}
	return fmt.Sprintf("Output (notifications %s, log %s)", notif, cfg.Log.Level)
}

// summaryLines renders the configuration review shown before saving.
func summaryLines(cfg *config.Config) []string {
	lines := []string{
		KeyValue("Microphone:", fmt.Sprintf("%s @ %d Hz", orDefault(cfg.Capture.Device, "system default"), cfg.Capture.PreferredRate)),
		KeyValue("Detector:", fmt.Sprintf("%s (threshold %s)", cfg.Segmenter.Detector, formatFloat(cfg.Segmenter.SpeechThreshold))),
		KeyValue("Chunks:", fmt.Sprintf("%s to %s, paragraph after %s", cfg.Segmenter.MinChunkDuration, cfg.Segmenter.MaxChunkDuration, cfg.Segmenter.SilenceDuration)),
	}
	if cfg.Engine.Provider == "openai" {
		lines = append(lines, KeyValue("Engine:", "openai "+maskAPIKey(cfg.Engine.APIKey)))
	} else {
		lines = append(lines, KeyValue("Engine:", fmt.Sprintf("whisper.cpp %s", orDefault(cfg.Engine.ModelPath, cfg.Engine.Model))))
	}
	lines = append(lines,
		KeyValue("Language:", language.Label(cfg.Engine.Language)),
		KeyValue("Sessions:", cfg.Dictation.SessionsDir),
		KeyValue("Endpoint:", orDefault(cfg.Server.Listen, "disabled")),
	)
	return lines
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

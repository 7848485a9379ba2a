package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/quillpad/quilldict/internal/config"
	"github.com/quillpad/quilldict/internal/language"
	"github.com/quillpad/quilldict/internal/models/whisper"
	"github.com/quillpad/quilldict/internal/recording"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionCapture     ConfigSection = "capture"
	SectionSegmenter   ConfigSection = "segmenter"
	SectionEngine      ConfigSection = "engine"
	SectionSessions    ConfigSection = "sessions"
	SectionOutput      ConfigSection = "output"
	SectionSaveExit    ConfigSection = "save_exit"
	SectionDiscardExit ConfigSection = "discard_exit"
)

// Run edits a copy of cfg through a menu of forms.
func Run(existing *config.Config) (*ConfigureResult, error) {
	cfg := config.DefaultConfig()
	if existing != nil {
		c := *existing
		cfg = &c
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render("Cannot save: " + err.Error()))
				if !pause() {
					return &ConfigureResult{Cancelled: true}, nil
				}
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionCapture:
			_ = editCapture(cfg)
		case SectionSegmenter:
			_ = editSegmenter(cfg)
		case SectionEngine:
			_ = editEngine(cfg)
		case SectionSessions:
			_ = editSessions(cfg)
		case SectionOutput:
			_ = editOutput(cfg)
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatCaptureLabel(cfg), SectionCapture),
		huh.NewOption(formatSegmenterLabel(cfg), SectionSegmenter),
		huh.NewOption(formatEngineLabel(cfg), SectionEngine),
		huh.NewOption(formatSessionsLabel(cfg), SectionSessions),
		huh.NewOption(formatOutputLabel(cfg), SectionOutput),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func editCapture(cfg *config.Config) error {
	device := cfg.Capture.Device
	rate := fmt.Sprint(cfg.Capture.PreferredRate)
	channels := fmt.Sprint(cfg.Capture.Channels)
	frames := fmt.Sprint(cfg.Capture.FramesPerBuffer)

	var deviceField huh.Field
	if devices, err := recording.ListInputDevices(); err == nil && len(devices) > 0 {
		deviceField = huh.NewSelect[string]().
			Title("Input Device").
			Options(deviceOptions(devices, device)...).
			Value(&device)
	} else {
		deviceField = huh.NewInput().
			Title("Input Device").
			Description("Device name, empty for the system default").
			Value(&device)
	}

	form := huh.NewForm(
		huh.NewGroup(
			deviceField,
			huh.NewInput().
				Title("Preferred Sample Rate (Hz)").
				Description("Requested from the device; audio is converted to 16 kHz either way.").
				Value(&rate).
				Validate(validateInt(8000, 192000)),
			huh.NewSelect[string]().
				Title("Channels").
				Options(
					huh.NewOption("Auto (mono if supported)", "0"),
					huh.NewOption("1 (Mono)", "1"),
					huh.NewOption("2 (Stereo, downmixed)", "2"),
				).
				Value(&channels),
			huh.NewInput().
				Title("Frames per Buffer").
				Value(&frames).
				Validate(validateInt(64, 16384)),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Capture.Device = device
	cfg.Capture.PreferredRate = mustInt(rate)
	cfg.Capture.Channels = mustInt(channels)
	cfg.Capture.FramesPerBuffer = mustInt(frames)
	return nil
}

func editSegmenter(cfg *config.Config) error {
	detector := cfg.Segmenter.Detector
	threshold := formatFloat(cfg.Segmenter.SpeechThreshold)
	silence := cfg.Segmenter.SilenceDuration.String()
	maxChunk := cfg.Segmenter.MaxChunkDuration.String()
	minChunk := cfg.Segmenter.MinChunkDuration.String()
	vadMode := fmt.Sprint(cfg.Segmenter.VADMode)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Speech Detector").
				Options(
					huh.NewOption("Energy (RMS threshold)", "energy"),
					huh.NewOption("WebRTC VAD", "webrtc"),
				).
				Value(&detector),
			huh.NewInput().
				Title("Speech Threshold").
				Description("RMS level that counts as speech for the energy detector").
				Value(&threshold).
				Validate(validateFloat(0, 1)),
			huh.NewSelect[string]().
				Title("VAD Aggressiveness").
				Options(
					huh.NewOption("0 (least aggressive)", "0"),
					huh.NewOption("1", "1"),
					huh.NewOption("2", "2"),
					huh.NewOption("3 (most aggressive)", "3"),
				).
				Value(&vadMode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Paragraph Silence").
				Description("Silence that closes an utterance and starts a new paragraph").
				Value(&silence).
				Validate(validateDuration(100*time.Millisecond)),
			huh.NewInput().
				Title("Longest Utterance").
				Value(&maxChunk).
				Validate(validateDuration(time.Second)),
			huh.NewInput().
				Title("Shortest Utterance").
				Description("Shorter bursts are dropped").
				Value(&minChunk).
				Validate(validateDuration(0)),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Segmenter.Detector = detector
	cfg.Segmenter.SpeechThreshold = mustFloat(threshold)
	cfg.Segmenter.VADMode = mustInt(vadMode)
	cfg.Segmenter.SilenceDuration = mustDuration(silence)
	cfg.Segmenter.MaxChunkDuration = mustDuration(maxChunk)
	cfg.Segmenter.MinChunkDuration = mustDuration(minChunk)
	return nil
}

func editEngine(cfg *config.Config) error {
	provider := cfg.Engine.Provider
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recognition Engine").
				Options(
					huh.NewOption("whisper.cpp (local)", "whisper.cpp"),
					huh.NewOption("OpenAI (cloud)", "openai"),
				).
				Value(&provider),
		),
	).WithTheme(getTheme()).Run(); err != nil {
		return err
	}

	model := cfg.Engine.Model
	lang := language.Normalize(cfg.Engine.Language)
	apiKey := cfg.Engine.APIKey
	minRMS := formatFloat(cfg.Engine.MinRMS)

	var fields []huh.Field
	if provider == "whisper.cpp" {
		fields = append(fields,
			huh.NewSelect[string]().
				Title("Model").
				Description("Download with: quilldict model download <id>").
				Options(modelOptions(model, whisper.IsInstalled)...).
				Value(&model),
		)
	} else {
		fields = append(fields,
			huh.NewInput().
				Title("API Key").
				Description("Leave empty to use OPENAI_API_KEY").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		)
	}
	fields = append(fields,
		huh.NewSelect[string]().
			Title("Language").
			Options(languageOptions(lang)...).
			Value(&lang).
			Height(8),
		huh.NewInput().
			Title("Minimum Chunk Energy").
			Description("Quieter utterances are not sent for preview").
			Value(&minRMS).
			Validate(validateFloat(0, 1)),
	)

	if err := huh.NewForm(huh.NewGroup(fields...)).WithTheme(getTheme()).Run(); err != nil {
		return err
	}

	cfg.Engine.Provider = provider
	cfg.Engine.Model = model
	cfg.Engine.Language = lang
	cfg.Engine.APIKey = apiKey
	cfg.Engine.MinRMS = mustFloat(minRMS)
	return nil
}

func editSessions(cfg *config.Config) error {
	dir := cfg.Dictation.SessionsDir
	history := fmt.Sprint(cfg.Dictation.HistorySize)
	listen := cfg.Server.Listen

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sessions Directory").
				Description("Where each session's recording is kept").
				Value(&dir),
			huh.NewInput().
				Title("Repeat Window").
				Description("Recent results compared to drop repeated previews").
				Value(&history).
				Validate(validateInt(1, 100)),
			huh.NewInput().
				Title("Event Endpoint").
				Description("host:port for /events and /metrics, empty to disable").
				Value(&listen),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Dictation.SessionsDir = dir
	cfg.Dictation.HistorySize = mustInt(history)
	cfg.Server.Listen = listen
	return nil
}

func editOutput(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	kind := cfg.Notifications.Type
	level := cfg.Log.Level

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Notifications").
				Affirmative("On").
				Negative("Off").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
					huh.NewOption("None", "none"),
				).
				Value(&kind),
			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&level),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = kind
	cfg.Log.Level = level
	return nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println(StyleBox.Render(lipgloss.JoinVertical(lipgloss.Left, summaryLines(cfg)...)))
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

// pause waits for acknowledgement; false means the user cancelled.
func pause() bool {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title("Back to menu?").Affirmative("Back").Negative("Quit").Value(&ok),
	)).WithTheme(getTheme()).Run()
	return err == nil && ok
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}

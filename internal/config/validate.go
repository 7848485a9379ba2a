package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/quillpad/quilldict/internal/language"
	"github.com/quillpad/quilldict/internal/models/whisper"
)

func (c *Config) Validate() error {
	// Capture
	if c.Capture.PreferredRate < 8000 || c.Capture.PreferredRate > 192000 {
		return fmt.Errorf("invalid capture.preferred_rate: %d", c.Capture.PreferredRate)
	}
	if c.Capture.Channels < 0 || c.Capture.Channels > 2 {
		return fmt.Errorf("invalid capture.channels: %d (must be 0, 1 or 2)", c.Capture.Channels)
	}
	if c.Capture.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid capture.frames_per_buffer: %d", c.Capture.FramesPerBuffer)
	}

	// Segmenter
	switch c.Segmenter.Detector {
	case "energy", "webrtc":
	default:
		return fmt.Errorf("invalid segmenter.detector: %s (must be energy or webrtc)", c.Segmenter.Detector)
	}
	if c.Segmenter.SpeechThreshold < 0 || c.Segmenter.SpeechThreshold >= 1 {
		return fmt.Errorf("invalid segmenter.speech_threshold: %v", c.Segmenter.SpeechThreshold)
	}
	if c.Segmenter.SilenceDuration <= 0 {
		return fmt.Errorf("invalid segmenter.silence_duration: %v", c.Segmenter.SilenceDuration)
	}
	if c.Segmenter.MaxChunkDuration <= 0 {
		return fmt.Errorf("invalid segmenter.max_chunk_duration: %v", c.Segmenter.MaxChunkDuration)
	}
	if c.Segmenter.MinChunkDuration < 0 || c.Segmenter.MinChunkDuration > c.Segmenter.MaxChunkDuration {
		return fmt.Errorf("invalid segmenter.min_chunk_duration: %v", c.Segmenter.MinChunkDuration)
	}
	if c.Segmenter.VADMode < 0 || c.Segmenter.VADMode > 3 {
		return fmt.Errorf("invalid segmenter.vad_mode: %d (must be 0-3)", c.Segmenter.VADMode)
	}

	// Engine
	if !language.Valid(c.Engine.Language) {
		return fmt.Errorf("invalid engine.language: %s (use auto or ISO-639-1 codes like 'en', 'es', 'fr')", c.Engine.Language)
	}
	switch c.Engine.Provider {
	case "whisper.cpp":
		if c.Engine.ModelPath == "" {
			if c.Engine.Model == "" {
				return fmt.Errorf("invalid engine.model: empty")
			}
			model := whisper.GetModel(c.Engine.Model)
			if model == nil && !strings.HasSuffix(c.Engine.Model, ".bin") {
				return fmt.Errorf("invalid engine.model: %s (see quilldict model list)", c.Engine.Model)
			}
			if model != nil && !model.Multilingual && !language.IsAuto(c.Engine.Language) && language.Normalize(c.Engine.Language) != "en" {
				return fmt.Errorf("invalid engine.language: %s (model %s is English-only)", c.Engine.Language, c.Engine.Model)
			}
		}
		if c.Engine.Threads < 0 {
			return fmt.Errorf("invalid engine.threads: %d", c.Engine.Threads)
		}
	case "openai":
		if c.resolveAPIKey() == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (engine.api_key) or environment variable (OPENAI_API_KEY)")
		}
	default:
		return fmt.Errorf("unsupported engine.provider: %s (must be whisper.cpp or openai)", c.Engine.Provider)
	}
	if c.Engine.MinRMS < 0 || c.Engine.MinRMS >= 1 {
		return fmt.Errorf("invalid engine.min_rms: %v", c.Engine.MinRMS)
	}
	if c.Engine.MinPeak < 0 || c.Engine.MinPeak >= 1 {
		return fmt.Errorf("invalid engine.min_peak: %v", c.Engine.MinPeak)
	}
	if c.Engine.MinInputDuration < 0 {
		return fmt.Errorf("invalid engine.min_input_duration: %v", c.Engine.MinInputDuration)
	}

	// Dictation
	if c.Dictation.PollInterval <= 0 {
		return fmt.Errorf("invalid dictation.poll_interval: %v", c.Dictation.PollInterval)
	}
	if c.Dictation.HistorySize <= 0 {
		return fmt.Errorf("invalid dictation.history_size: %d", c.Dictation.HistorySize)
	}
	if c.Dictation.SessionsDir == "" {
		return fmt.Errorf("invalid dictation.sessions_dir: empty")
	}

	// Server
	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			return fmt.Errorf("invalid server.listen: %s (%v)", c.Server.Listen, err)
		}
	}

	// Notifications
	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format: %s (must be console or json)", c.Log.Format)
	}

	return nil
}

func (c *Config) resolveAPIKey() string {
	if c.Engine.APIKey != "" {
		return c.Engine.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

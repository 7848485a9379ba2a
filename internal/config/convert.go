package config

import (
	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/dictation"
	"github.com/quillpad/quilldict/internal/language"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/segment"
	"github.com/quillpad/quilldict/internal/transcriber"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		Device:          c.Capture.Device,
		SampleRate:      c.Capture.PreferredRate,
		Channels:        c.Capture.Channels,
		FramesPerBuffer: c.Capture.FramesPerBuffer,
	}
}

func (c *Config) ToSegmentConfig() segment.Config {
	return segment.Config{
		SampleRate:       audio.TargetSampleRate,
		SpeechThreshold:  float32(c.Segmenter.SpeechThreshold),
		SilenceDuration:  c.Segmenter.SilenceDuration,
		MaxChunkDuration: c.Segmenter.MaxChunkDuration,
		MinChunkDuration: c.Segmenter.MinChunkDuration,
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider:  c.Engine.Provider,
		Model:     c.Engine.Model,
		ModelPath: c.Engine.ModelPath,
		Language:  language.Normalize(c.Engine.Language),
		Threads:   c.Engine.Threads,
		APIKey:    c.resolveAPIKey(),
		BaseURL:   c.Engine.BaseURL,
	}
}

func (c *Config) ToDictationConfig() dictation.Config {
	return dictation.Config{
		Segmenter:        c.ToSegmentConfig(),
		Detector:         c.Segmenter.Detector,
		VADMode:          c.Segmenter.VADMode,
		MinRMS:           float32(c.Engine.MinRMS),
		MinPeak:          float32(c.Engine.MinPeak),
		MinInputDuration: c.Engine.MinInputDuration,
		PollInterval:     c.Dictation.PollInterval,
		HistorySize:      c.Dictation.HistorySize,
		SessionsDir:      c.Dictation.SessionsDir,
	}
}

func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
	}
}

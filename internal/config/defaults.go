package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Device:          "",
			PreferredRate:   16000,
			Channels:        0,
			FramesPerBuffer: 1024,
		},
		Segmenter: SegmenterConfig{
			Detector:         "energy",
			SpeechThreshold:  0.008,
			SilenceDuration:  4 * time.Second,
			MaxChunkDuration: 25 * time.Second,
			MinChunkDuration: 500 * time.Millisecond,
			VADMode:          2,
		},
		Engine: EngineConfig{
			Provider:         "whisper.cpp",
			Model:            "base.en",
			Language:         "en",
			MinRMS:           0.008,
			MinPeak:          0.005,
			MinInputDuration: time.Second,
		},
		Dictation: DictationConfig{
			PollInterval: 100 * time.Millisecond,
			HistorySize:  5,
			SessionsDir:  DefaultSessionsDir(),
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7821",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultSessionsDir is $XDG_DATA_HOME/quilldict/sessions.
func DefaultSessionsDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "quilldict", "sessions")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quilldict", "sessions")
	}
	return filepath.Join(home, ".local", "share", "quilldict", "sessions")
}

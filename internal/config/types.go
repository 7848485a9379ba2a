package config

import "time"

type Config struct {
	Capture       CaptureConfig       `toml:"capture"`
	Segmenter     SegmenterConfig     `toml:"segmenter"`
	Engine        EngineConfig        `toml:"engine"`
	Dictation     DictationConfig     `toml:"dictation"`
	Server        ServerConfig        `toml:"server"`
	Notifications NotificationsConfig `toml:"notifications"`
	Log           LogConfig           `toml:"log"`
}

type CaptureConfig struct {
	Device          string `toml:"device"`            // empty = system default input
	PreferredRate   int    `toml:"preferred_rate"`    // falls back to the device default rate
	Channels        int    `toml:"channels"`          // 0 = auto (mono if supported)
	FramesPerBuffer int    `toml:"frames_per_buffer"` // frames per driver callback
}

type SegmenterConfig struct {
	Detector         string        `toml:"detector"` // "energy" or "webrtc"
	SpeechThreshold  float64       `toml:"speech_threshold"`
	SilenceDuration  time.Duration `toml:"silence_duration"`
	MaxChunkDuration time.Duration `toml:"max_chunk_duration"`
	MinChunkDuration time.Duration `toml:"min_chunk_duration"`
	VADMode          int           `toml:"vad_mode"` // 0-3, webrtc only
}

type EngineConfig struct {
	Provider         string        `toml:"provider"` // "whisper.cpp" or "openai"
	Model            string        `toml:"model"`
	ModelPath        string        `toml:"model_path"` // overrides the model registry
	Language         string        `toml:"language"`
	Threads          int           `toml:"threads"`
	APIKey           string        `toml:"api_key"`
	BaseURL          string        `toml:"base_url"`
	MinRMS           float64       `toml:"min_rms"`
	MinPeak          float64       `toml:"min_peak"`
	MinInputDuration time.Duration `toml:"min_input_duration"`
}

type DictationConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
	HistorySize  int           `toml:"history_size"`
	SessionsDir  string        `toml:"sessions_dir"`
}

type ServerConfig struct {
	Listen string `toml:"listen"` // empty disables the events and metrics endpoint
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

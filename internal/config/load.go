package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/quillpad/quilldict/internal/logging"
)

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	quilldictDir := filepath.Join(configDir, "quilldict")
	if err := os.MkdirAll(quilldictDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(quilldictDir, "config.toml"), nil
}

// Load reads the user config file, writing the defaults first if it does not exist.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log := logging.WithComponent("config")
		log.Info().Str("path", configPath).Msg("no config file found, creating defaults")
		if err := SaveDefaultConfig(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	return LoadFile(configPath)
}

// LoadFile decodes path on top of DefaultConfig, so keys missing from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	log := logging.WithComponent("config")
	log.Debug().Str("path", path).Msg("loading configuration")

	config := DefaultConfig()
	meta, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		log.Warn().Strs("keys", keys).Msg("ignoring unknown config keys")
	}

	config.applyThreadsDefault()
	config.Dictation.SessionsDir = expandHome(config.Dictation.SessionsDir)

	log.Debug().Msg("configuration loaded")
	return config, nil
}

// applyThreadsDefault leaves one core free for capture when running locally.
func (c *Config) applyThreadsDefault() {
	if c.Engine.Provider != "whisper.cpp" || c.Engine.Threads != 0 {
		return
	}
	threads := runtime.NumCPU() - 1
	if threads < 1 {
		threads = 1
	}
	c.Engine.Threads = threads
}

func expandHome(path string) string {
	if path == "" {
		return DefaultSessionsDir()
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Save writes config to the user config file.
func Save(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(configPath, config)
}

// SaveFile encodes config as TOML and replaces path atomically.
func SaveFile(path string, config *Config) error {
	var buf bytes.Buffer
	buf.WriteString("# quilldict configuration\n# Changes are picked up by the daemon at the next dictation start.\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	configContent := `# quilldict configuration
# This file is automatically generated with defaults.
# Changes are picked up by the daemon at the next dictation start.

# Microphone capture
[capture]
  device = ""                  # input device name (empty = system default)
  preferred_rate = 16000       # requested sample rate; the device default is used if unsupported
  channels = 0                 # 0 = auto (mono if supported, else stereo)
  frames_per_buffer = 1024     # frames per driver callback

# Speech segmentation
[segmenter]
  detector = "energy"          # "energy" (RMS threshold) or "webrtc" (WebRTC VAD)
  speech_threshold = 0.008     # RMS level that counts as speech
  silence_duration = "4s"      # silence that closes an utterance and starts a new paragraph
  max_chunk_duration = "25s"   # longest utterance sent for preview
  min_chunk_duration = "500ms" # shorter utterances are discarded
  vad_mode = 2                 # WebRTC aggressiveness 0-3

# Recognition engine
[engine]
  provider = "whisper.cpp"     # "whisper.cpp" (local) or "openai"
  model = "base.en"            # whisper model id, see: quilldict model list
  model_path = ""              # explicit ggml model file (overrides model)
  language = "en"              # language code, "auto" to detect
  threads = 0                  # whisper.cpp threads (0 = NumCPU-1)
  api_key = ""                 # openai only (or set OPENAI_API_KEY)
  base_url = ""                # openai compatible endpoint
  min_rms = 0.008              # chunks below this energy are not transcribed
  min_peak = 0.005             # chunks below this amplitude are not transcribed
  min_input_duration = "1s"    # shorter audio is zero padded

# Dictation sessions
[dictation]
  poll_interval = "100ms"      # how often finished utterances are collected
  history_size = 5             # recent results checked for repeats
  sessions_dir = ""            # where session recordings are kept (empty = ~/.local/share/quilldict/sessions)

# Local endpoint for the editor (websocket /events) and Prometheus (/metrics)
[server]
  listen = "127.0.0.1:7821"    # empty disables the endpoint

[notifications]
  enabled = true
  type = "desktop"             # "desktop", "log", "none"

[log]
  level = "info"               # debug, info, warn, error
  format = "console"           # console or json
`

	if _, err := file.WriteString(configContent); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}

	return nil
}

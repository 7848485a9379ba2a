package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "base.en"

var (
	ErrUnknownModel      = errors.New("unknown whisper model")
	ErrModelNotInstalled = errors.New("whisper model not installed")
)

// ModelInfo holds metadata for a ggml whisper model
type ModelInfo struct {
	ID           string // e.g. "base.en"
	Name         string
	Filename     string // e.g. "ggml-base.en.bin"
	Size         string
	SizeBytes    int64
	Multilingual bool
}

// ggml models published with whisper.cpp
var models = []ModelInfo{
	{ID: "tiny.en", Name: "Tiny English", Filename: "ggml-tiny.en.bin", Size: "75MB", SizeBytes: 75_000_000},
	{ID: "base.en", Name: "Base English", Filename: "ggml-base.en.bin", Size: "142MB", SizeBytes: 142_000_000},
	{ID: "small.en", Name: "Small English", Filename: "ggml-small.en.bin", Size: "466MB", SizeBytes: 466_000_000},
	{ID: "medium.en", Name: "Medium English", Filename: "ggml-medium.en.bin", Size: "1.5GB", SizeBytes: 1_500_000_000},

	{ID: "tiny", Name: "Tiny", Filename: "ggml-tiny.bin", Size: "75MB", SizeBytes: 75_000_000, Multilingual: true},
	{ID: "base", Name: "Base", Filename: "ggml-base.bin", Size: "142MB", SizeBytes: 142_000_000, Multilingual: true},
	{ID: "small", Name: "Small", Filename: "ggml-small.bin", Size: "466MB", SizeBytes: 466_000_000, Multilingual: true},
	{ID: "medium", Name: "Medium", Filename: "ggml-medium.bin", Size: "1.5GB", SizeBytes: 1_500_000_000, Multilingual: true},
	{ID: "large-v3-turbo", Name: "Large V3 Turbo", Filename: "ggml-large-v3-turbo.bin", Size: "1.6GB", SizeBytes: 1_600_000_000, Multilingual: true},
	{ID: "large-v3", Name: "Large V3", Filename: "ggml-large-v3.bin", Size: "3.1GB", SizeBytes: 3_100_000_000, Multilingual: true},
}

var modelByID = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

const baseDownloadURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// GetModelsDir returns $XDG_DATA_HOME/quilldict/models/whisper, falling back
// to ~/.local/share when XDG_DATA_HOME is unset.
func GetModelsDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "quilldict", "models", "whisper"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "quilldict", "models", "whisper"), nil
}

// GetModelPath returns where modelID lives on disk, or "" for unknown ids.
func GetModelPath(modelID string) string {
	info, ok := modelByID[modelID]
	if !ok {
		return ""
	}
	dir, err := GetModelsDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, info.Filename)
}

func GetDownloadURL(modelID string) string {
	info, ok := modelByID[modelID]
	if !ok {
		return ""
	}
	return baseDownloadURL + "/" + info.Filename
}

// GetModel returns info for a model by ID, nil if unknown.
func GetModel(modelID string) *ModelInfo {
	info, ok := modelByID[modelID]
	if !ok {
		return nil
	}
	return &info
}

func ListModels() []ModelInfo {
	result := make([]ModelInfo, len(models))
	copy(result, models)
	return result
}

// Resolve turns the configured model into a file path. An explicit path wins;
// a model value that looks like a path is used as-is; otherwise it must be
// a known, installed model id.
func Resolve(model, explicitPath string) (string, error) {
	if explicitPath != "" {
		return checkFile(expandHome(explicitPath))
	}
	if model == "" {
		model = DefaultModel
	}
	if strings.ContainsRune(model, os.PathSeparator) || strings.HasSuffix(model, ".bin") {
		return checkFile(expandHome(model))
	}

	if GetModel(model) == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	path := GetModelPath(model)
	if !IsInstalled(model) {
		return path, fmt.Errorf("%w: %s (run `quilldict model download %s`)", ErrModelNotInstalled, model, model)
	}
	return path, nil
}

func checkFile(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() || fi.Size() == 0 {
		return path, fmt.Errorf("%w: %s", ErrModelNotInstalled, path)
	}
	return path, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

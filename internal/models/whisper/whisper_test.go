package whisper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func useTempDataHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", home)
	return filepath.Join(home, "quilldict", "models", "whisper")
}

func installFake(t *testing.T, modelID string) string {
	t.Helper()
	path := GetModelPath(modelID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("ggml"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGetModelsDir(t *testing.T) {
	t.Run("xdg data home", func(t *testing.T) {
		want := useTempDataHome(t)
		dir, err := GetModelsDir()
		if err != nil {
			t.Fatalf("GetModelsDir() error = %v", err)
		}
		if dir != want {
			t.Errorf("GetModelsDir() = %s, want %s", dir, want)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")
		dir, err := GetModelsDir()
		if err != nil {
			t.Fatalf("GetModelsDir() error = %v", err)
		}
		if !strings.HasSuffix(dir, filepath.Join(".local", "share", "quilldict", "models", "whisper")) {
			t.Errorf("GetModelsDir() = %s, want path ending with .local/share/quilldict/models/whisper", dir)
		}
	})
}

func TestGetModelPath(t *testing.T) {
	tests := []struct {
		modelID string
		wantEnd string
	}{
		{"base.en", "ggml-base.en.bin"},
		{"large-v3-turbo", "ggml-large-v3-turbo.bin"},
		{"unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.modelID, func(t *testing.T) {
			got := GetModelPath(tt.modelID)
			if tt.wantEnd == "" {
				if got != "" {
					t.Errorf("GetModelPath(%q) = %s, want empty", tt.modelID, got)
				}
				return
			}
			if !strings.HasSuffix(got, tt.wantEnd) {
				t.Errorf("GetModelPath(%q) = %s, want ending with %s", tt.modelID, got, tt.wantEnd)
			}
		})
	}
}

func TestGetDownloadURL(t *testing.T) {
	if got := GetDownloadURL("base.en"); got != baseDownloadURL+"/ggml-base.en.bin" {
		t.Errorf("GetDownloadURL(base.en) = %s", got)
	}
	if got := GetDownloadURL("unknown"); got != "" {
		t.Errorf("GetDownloadURL(unknown) = %s, want empty", got)
	}
}

func TestDefaultModelIsKnown(t *testing.T) {
	if GetModel(DefaultModel) == nil {
		t.Fatalf("default model %s is not in the registry", DefaultModel)
	}
}

func TestResolve(t *testing.T) {
	useTempDataHome(t)
	installed := installFake(t, "tiny.en")

	explicit := filepath.Join(t.TempDir(), "custom.bin")
	if err := os.WriteFile(explicit, []byte("ggml"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		model    string
		path     string
		wantPath string
		wantErr  error
	}{
		{name: "installed id", model: "tiny.en", wantPath: installed},
		{name: "explicit path wins", model: "tiny.en", path: explicit, wantPath: explicit},
		{name: "model given as path", model: explicit, wantPath: explicit},
		{name: "not installed", model: "small", wantErr: ErrModelNotInstalled},
		{name: "default not installed", model: "", wantErr: ErrModelNotInstalled},
		{name: "unknown id", model: "huge", wantErr: ErrUnknownModel},
		{name: "missing explicit file", path: "/nonexistent/model.bin", wantErr: ErrModelNotInstalled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.model, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.wantPath {
				t.Errorf("Resolve() = %s, want %s", got, tt.wantPath)
			}
		})
	}
}

func TestInstalledAndRemove(t *testing.T) {
	useTempDataHome(t)

	if IsInstalled("base.en") {
		t.Fatal("fresh data home should have no models")
	}
	installFake(t, "base.en")

	if !IsInstalled("base.en") {
		t.Error("IsInstalled(base.en) = false after install")
	}
	if got := ListInstalled(); len(got) != 1 || got[0] != "base.en" {
		t.Errorf("ListInstalled() = %v", got)
	}

	if err := Remove("base.en"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := Remove("base.en"); !errors.Is(err, ErrModelNotInstalled) {
		t.Errorf("second Remove() error = %v, want ErrModelNotInstalled", err)
	}
	if err := Remove("unknown-model"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Remove(unknown) error = %v, want ErrUnknownModel", err)
	}
}

func TestDownload(t *testing.T) {
	useTempDataHome(t)
	payload := strings.Repeat("x", 100_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	var last, total int64
	err := download(context.Background(), srv.Client(), srv.URL, "tiny.en", func(d, n int64) {
		last, total = d, n
	})
	if err != nil {
		t.Fatalf("download() error = %v", err)
	}
	if last != int64(len(payload)) || total != int64(len(payload)) {
		t.Errorf("progress = %d/%d, want %d/%d", last, total, len(payload), len(payload))
	}
	if !IsInstalled("tiny.en") {
		t.Error("model should be installed after download")
	}
	if _, err := os.Stat(GetModelPath("tiny.en") + ".downloading"); !os.IsNotExist(err) {
		t.Error("temporary download file should be removed")
	}
}

func TestDownloadFailures(t *testing.T) {
	useTempDataHome(t)

	t.Run("unknown model", func(t *testing.T) {
		err := Download(context.Background(), "unknown-model", nil)
		if !errors.Is(err, ErrUnknownModel) {
			t.Errorf("Download(unknown-model) error = %v, want ErrUnknownModel", err)
		}
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		err := download(context.Background(), srv.Client(), srv.URL, "tiny.en", nil)
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Errorf("download() error = %v, want status error", err)
		}
		if IsInstalled("tiny.en") {
			t.Error("failed download must not leave an installed model")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := Download(ctx, "tiny.en", nil); err == nil {
			t.Error("Download with cancelled context = nil, want error")
		}
	})
}

func TestModelInfo_HasAllFields(t *testing.T) {
	for _, m := range ListModels() {
		if m.ID == "" || m.Name == "" || m.Filename == "" || m.Size == "" || m.SizeBytes <= 0 {
			t.Errorf("model %+v has missing fields", m)
		}
	}
}

package whisper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ProgressFunc is called during download with bytes downloaded and total
type ProgressFunc func(downloaded, total int64)

// IsInstalled reports whether the model file exists and is non-empty.
func IsInstalled(modelID string) bool {
	path := GetModelPath(modelID)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// ListInstalled returns IDs of all installed models
func ListInstalled() []string {
	var installed []string
	for _, m := range models {
		if IsInstalled(m.ID) {
			installed = append(installed, m.ID)
		}
	}
	return installed
}

type progressWriter struct {
	w          io.Writer
	downloaded int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.downloaded += int64(n)
	if p.onProgress != nil {
		p.onProgress(p.downloaded, p.total)
	}
	return n, err
}

// Download fetches a model into the models directory. The file is written
// under a temporary name and renamed once complete.
func Download(ctx context.Context, modelID string, onProgress ProgressFunc) error {
	return download(ctx, http.DefaultClient, GetDownloadURL(modelID), modelID, onProgress)
}

func download(ctx context.Context, client *http.Client, url, modelID string, onProgress ProgressFunc) error {
	info := GetModel(modelID)
	if info == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	dir, err := GetModelsDir()
	if err != nil {
		return fmt.Errorf("failed to get models directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	destPath := filepath.Join(dir, info.Filename)
	tempPath := destPath + ".downloading"

	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tempPath)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = info.SizeBytes
	}

	pw := &progressWriter{w: out, total: total, onProgress: onProgress}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to write model: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}

// Remove deletes a downloaded model
func Remove(modelID string) error {
	if GetModel(modelID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !IsInstalled(modelID) {
		return fmt.Errorf("%w: %s", ErrModelNotInstalled, modelID)
	}
	if err := os.Remove(GetModelPath(modelID)); err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}
	return nil
}

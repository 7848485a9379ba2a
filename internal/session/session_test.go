package session

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	now := time.Unix(1718000000, 0)
	id := NewID(now)

	if !regexp.MustCompile(`^dictation_1718000000_[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("NewID() = %q, unexpected format", id)
	}
	if NewID(now) == id {
		t.Error("two ids in the same second should differ")
	}
}

func TestRecorderLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")

	r, err := Start(dir)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(r.Path()), "dictation_") {
		t.Errorf("unexpected path %s", r.Path())
	}

	chunks := [][]float32{
		{0.1, 0.2, 0.3},
		{},
		{-0.4, 0.5},
	}
	for _, c := range chunks {
		if err := r.Append(c); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	rec, err := r.Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if rec.Samples != 5 {
		t.Errorf("Samples = %d, want 5", rec.Samples)
	}
	if rec.ID != r.ID() || rec.Path != r.Path() {
		t.Errorf("recording %+v does not match recorder", rec)
	}

	fi, err := os.Stat(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 44+5*4 {
		t.Errorf("file size = %d, want %d", fi.Size(), 44+5*4)
	}

	samples, err := ReadSamples(rec.Path)
	if err != nil {
		t.Fatalf("ReadSamples() failed: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3, -0.4, 0.5}
	if len(samples) != len(want) {
		t.Fatalf("read %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %f, want %f", i, samples[i], want[i])
		}
	}
}

func TestRecorderDuration(t *testing.T) {
	r, err := Start(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Append(make([]float32, 16000*3)); err != nil {
		t.Fatal(err)
	}
	rec, err := r.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", rec.Duration)
	}
}

func TestRecorderAfterFinalize(t *testing.T) {
	r, err := Start(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Finalize(); err != nil {
		t.Fatal(err)
	}

	if err := r.Append([]float32{0.1}); !errors.Is(err, ErrFinalized) {
		t.Errorf("Append after finalize: err = %v, want ErrFinalized", err)
	}
	if _, err := r.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize: err = %v, want ErrFinalized", err)
	}
}

func TestStartCreationError(t *testing.T) {
	// a regular file where the directory should be
	parent := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(parent, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Start(filepath.Join(parent, "sessions"))
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CreationError", err)
	}
}

func TestStartWithIDRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	r, err := StartWithID(dir, "dictation_1")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Finalize()

	_, err = StartWithID(dir, "dictation_1")
	var ce *CreationError
	if !errors.As(err, &ce) {
		t.Errorf("err = %v, want *CreationError for existing file", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()

	ids := []string{"dictation_100", "dictation_200", "dictation_300"}
	base := time.Now().Add(-time.Hour)
	for i, id := range ids {
		r, err := StartWithID(dir, id)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Append(make([]float32, 16000)); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Finalize(); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(filepath.Join(dir, id+".wav"), mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	// unrelated files are ignored
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	infos, err := List(dir)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(infos))
	}
	if infos[0].ID != "dictation_300" || infos[2].ID != "dictation_100" {
		t.Errorf("List() order = %s, %s, %s; want newest first", infos[0].ID, infos[1].ID, infos[2].ID)
	}
	if infos[0].Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", infos[0].Duration)
	}
}

func TestListMissingDir(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no sessions, got %d", len(infos))
	}
}

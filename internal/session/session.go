// Package session persists the audio of a dictation session as a WAV file so
// the whole recording can be re-transcribed when dictation stops.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/logging"
)

const (
	filePrefix = "dictation_"
	fileExt    = ".wav"

	writeBufferSize = 64 * 1024
)

var ErrFinalized = errors.New("session recording already finalized")

// CreationError reports that the recording file could not be created.
type CreationError struct {
	Path string
	Err  error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create session recording %s: %v", e.Path, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// WriteError reports a failed write to an open recording.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write session recording %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Recording describes a finalized session file.
type Recording struct {
	ID       string
	Path     string
	Samples  int
	Duration time.Duration
}

// Recorder appends normalized 16 kHz mono samples to a float32 WAV file.
// The header carries placeholder sizes until Finalize patches them.
type Recorder struct {
	id   string
	path string
	rate int

	file      *os.File
	w         *bufio.Writer
	scratch   []byte
	samples   int
	finalized bool

	log zerolog.Logger
}

// NewID returns a time-ordered session id.
func NewID(now time.Time) string {
	suffix := ""
	if u, err := uuid.NewV7(); err == nil {
		// the leading bits of a v7 uuid are the timestamp; keep the random tail
		hex := strings.ReplaceAll(u.String(), "-", "")
		suffix = "_" + hex[len(hex)-8:]
	}
	return fmt.Sprintf("%s%d%s", filePrefix, now.Unix(), suffix)
}

// Start creates a new recording in dir, creating dir if needed.
func Start(dir string) (*Recorder, error) {
	return StartWithID(dir, NewID(time.Now()))
}

func StartWithID(dir, id string) (*Recorder, error) {
	path := filepath.Join(dir, id+fileExt)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &CreationError{Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &CreationError{Path: path, Err: err}
	}

	r := &Recorder{
		id:   id,
		path: path,
		rate: audio.TargetSampleRate,
		file: f,
		w:    bufio.NewWriterSize(f, writeBufferSize),
		log:  logging.WithSession("session", id),
	}

	if _, err := r.w.Write(audio.FloatWAVHeader(r.rate, 0).Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, &CreationError{Path: path, Err: err}
	}

	r.log.Debug().Str("path", path).Msg("session recording started")
	return r, nil
}

func (r *Recorder) ID() string   { return r.id }
func (r *Recorder) Path() string { return r.path }

// Samples returns the number of samples appended so far.
func (r *Recorder) Samples() int { return r.samples }

// Append writes samples through the buffered writer.
func (r *Recorder) Append(samples []float32) error {
	if r.finalized {
		return ErrFinalized
	}
	if len(samples) == 0 {
		return nil
	}

	need := len(samples) * 4
	if cap(r.scratch) < need {
		r.scratch = make([]byte, need)
	}
	buf := r.scratch[:need]
	audio.PutFloat32(buf, samples)

	if _, err := r.w.Write(buf); err != nil {
		return &WriteError{Path: r.path, Err: err}
	}
	r.samples += len(samples)
	return nil
}

// Finalize flushes buffered audio, writes the final sizes into the header and
// closes the file. The file is closed even when flushing fails.
func (r *Recorder) Finalize() (Recording, error) {
	if r.finalized {
		return Recording{}, ErrFinalized
	}
	r.finalized = true

	rec := Recording{
		ID:       r.id,
		Path:     r.path,
		Samples:  r.samples,
		Duration: audio.Duration(r.samples, r.rate),
	}

	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return rec, &WriteError{Path: r.path, Err: err}
	}
	if _, err := r.file.WriteAt(audio.FloatWAVHeader(r.rate, r.samples).Bytes(), 0); err != nil {
		r.file.Close()
		return rec, &WriteError{Path: r.path, Err: fmt.Errorf("patch header: %w", err)}
	}
	if err := r.file.Close(); err != nil {
		return rec, &WriteError{Path: r.path, Err: err}
	}

	r.log.Info().
		Str("path", r.path).
		Int("samples", r.samples).
		Dur("duration", rec.Duration).
		Msg("session recording finalized")
	return rec, nil
}

// ReadSamples loads a session file back into normalized samples.
func ReadSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session recording: %w", err)
	}
	defer f.Close()

	samples, _, err := audio.DecodeWAV(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode session recording %s: %w", path, err)
	}
	return samples, nil
}

// Info describes a session file on disk.
type Info struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Created  time.Time     `json:"created"`
	Duration time.Duration `json:"duration"`
}

// List returns the session recordings in dir, newest first. A missing
// directory yields an empty list.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		dataBytes := max(fi.Size()-audio.WAVHeaderSize, 0)
		out = append(out, Info{
			ID:       strings.TrimSuffix(name, fileExt),
			Path:     filepath.Join(dir, name),
			Size:     fi.Size(),
			Created:  fi.ModTime(),
			Duration: audio.Duration(int(dataBytes/4), audio.TargetSampleRate),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID > out[j].ID
		}
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}

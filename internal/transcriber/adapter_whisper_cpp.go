package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/logging"
)

// commandRunner executes a binary and returns its stdout and stderr.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// WhisperCppEngine runs the whisper-cli binary from whisper.cpp on a
// temporary WAV file per call.
type WhisperCppEngine struct {
	binary    string
	modelPath string
	language  string
	threads   int
	tempDir   string
	run       commandRunner
	log       zerolog.Logger
}

// NewWhisperCppEngine checks that whisper-cli is installed and the model
// file exists. threads <= 0 lets whisper-cli choose.
func NewWhisperCppEngine(modelPath, lang string, threads int) (*WhisperCppEngine, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	binary, err := exec.LookPath("whisper-cli")
	if err != nil {
		return nil, fmt.Errorf("whisper-cli not found: install whisper.cpp first")
	}
	return newWhisperCppEngine(binary, modelPath, lang, threads, execRunner), nil
}

func newWhisperCppEngine(binary, modelPath, lang string, threads int, run commandRunner) *WhisperCppEngine {
	if lang == "" {
		lang = "auto"
	}
	return &WhisperCppEngine{
		binary:    binary,
		modelPath: modelPath,
		language:  lang,
		threads:   threads,
		tempDir:   os.TempDir(),
		run:       run,
		log:       logging.WithComponent("whisper-cpp"),
	}
}

func (e *WhisperCppEngine) Transcribe(ctx context.Context, samples []float32, mode Mode) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	f, err := os.CreateTemp(e.tempDir, "quilldict-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpFile := f.Name()
	defer os.Remove(tmpFile)

	_, err = f.Write(audio.EncodePCM16(samples, audio.TargetSampleRate))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	start := time.Now()
	stdout, stderr, err := e.run(ctx, e.binary, e.args(tmpFile, mode)...)
	took := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn().Err(err).
			Dur("took", took).
			Str("stderr", string(stderr)).
			Msg("whisper-cli failed")
		return nil, fmt.Errorf("whisper-cli failed: %w", err)
	}

	segments := SplitSegments(string(stdout))
	e.log.Debug().
		Str("mode", mode.String()).
		Int("samples", len(samples)).
		Int("segments", len(segments)).
		Dur("took", took).
		Msg("transcribed")
	return segments, nil
}

func (e *WhisperCppEngine) args(file string, mode Mode) []string {
	args := []string{
		"-m", e.modelPath,
		"-l", e.language,
		"-np",  // no progress
		"-sns", // suppress non-speech tokens
		"-f", file,
	}

	switch mode {
	case ModeFinal:
		args = append(args,
			"-tp", "0",
			"-nth", "0.4",
			"-lpt", "-1",
		)
	default:
		args = append(args,
			"-nt", // no timestamps
			"-bo", "1",
			"-bs", "1",
			"-nth", "0.6",
		)
	}

	if e.threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.threads))
	}
	return args
}

func (e *WhisperCppEngine) Close() error { return nil }

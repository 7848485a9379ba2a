package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/language"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/models/whisper"
)

// OpenAIEngine sends each buffer to the OpenAI transcription API.
type OpenAIEngine struct {
	client *openai.Client
	config Config
	log    zerolog.Logger
}

func NewOpenAIEngine(config Config) *OpenAIEngine {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	// ggml model ids such as base.en are not API models
	if config.Model == "" || whisper.GetModel(config.Model) != nil {
		config.Model = openai.Whisper1
	}
	// the API detects the language when none is given
	if language.IsAuto(config.Language) {
		config.Language = ""
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		log:    logging.WithComponent("openai"),
	}
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, samples []float32, mode Mode) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	req := openai.AudioRequest{
		Model:    e.config.Model,
		Reader:   bytes.NewReader(audio.EncodePCM16(samples, audio.TargetSampleRate)),
		FilePath: "audio.wav",
		Language: e.config.Language,
		Format:   openai.AudioResponseFormatJSON,
	}
	if mode == ModeFinal {
		req.Format = openai.AudioResponseFormatVerboseJSON
		req.Temperature = 0
	}

	start := time.Now()
	resp, err := e.client.CreateTranscription(ctx, req)
	took := time.Since(start)

	if err != nil {
		e.log.Warn().Err(err).Dur("took", took).Msg("API call failed")
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	var segments []string
	if mode == ModeFinal && len(resp.Segments) > 0 {
		for _, s := range resp.Segments {
			segments = append(segments, SplitSegments(s.Text)...)
		}
	} else {
		segments = SplitSegments(resp.Text)
	}

	e.log.Debug().
		Str("mode", mode.String()).
		Int("samples", len(samples)).
		Int("segments", len(segments)).
		Dur("took", took).
		Msg("transcribed")
	return segments, nil
}

func (e *OpenAIEngine) Close() error { return nil }

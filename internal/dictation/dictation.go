// Package dictation runs live dictation sessions: microphone capture,
// utterance segmentation, preview recognition of each utterance, a full
// session recording and a final high-accuracy pass over that recording.
package dictation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/audio"
	"github.com/quillpad/quilldict/internal/dedup"
	"github.com/quillpad/quilldict/internal/events"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/metrics"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/segment"
	"github.com/quillpad/quilldict/internal/session"
	"github.com/quillpad/quilldict/internal/transcriber"
)

type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Stopping State = "stopping"
)

const (
	warningQueueSize = 32
	// capture progress is logged every debugEvery frames
	debugEvery = 500
	// after the first one, recording write failures are reported every writeWarnEvery
	writeWarnEvery = 100
	// frames held while Start is still setting up; a few seconds at typical buffer sizes
	maxEarlyFrames = 256
)

type Config struct {
	Segmenter segment.Config
	// Detector is "energy" or "webrtc".
	Detector string
	VADMode  int

	MinRMS           float32
	MinPeak          float32
	MinInputDuration time.Duration

	PollInterval time.Duration
	HistorySize  int
	SessionsDir  string
}

func DefaultConfig() Config {
	return Config{
		Segmenter:        segment.DefaultConfig(),
		Detector:         "energy",
		VADMode:          2,
		MinRMS:           transcriber.DefaultMinRMS,
		MinPeak:          transcriber.DefaultMinPeak,
		MinInputDuration: transcriber.DefaultMinInput,
		PollInterval:     100 * time.Millisecond,
		HistorySize:      dedup.DefaultSize,
	}
}

// DeviceFactory builds the capture device for one session.
type DeviceFactory func() recording.Device

// Status is a snapshot of the controller for status queries.
type Status struct {
	State     State     `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Frames    int64     `json:"frames"`
}

// Controller owns the dictation lifecycle. At most one session runs at a time.
type Controller struct {
	loader  *transcriber.Loader
	devices DeviceFactory
	pub     events.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
	log     zerolog.Logger

	mu    sync.Mutex
	cfg   Config
	state State
	run   *run
}

// run is the state of one session, from Start to Stop.
type run struct {
	id        string
	device    recording.Device
	engine    *transcriber.Shared
	ctx       context.Context // bounds preview recognition calls
	cancel    context.CancelFunc
	stop      context.Context // cancelled by Stop to end the polling worker
	wg        sync.WaitGroup
	startedAt time.Time
	log       zerolog.Logger

	// mu serializes the capture callback with the polling worker.
	mu        sync.Mutex
	ready     bool
	closed    bool
	early     []audio.Frame // captured while setup was still running
	converter *audio.Converter
	segmenter *segment.Segmenter
	recorder  *session.Recorder

	// owned by the polling worker
	history   *dedup.History
	discarded int

	warnings    chan string
	frames      atomic.Int64
	writeErrors atomic.Int64
}

type Option func(*Controller)

// WithClock replaces time.Now for session ids and silence timing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func New(cfg Config, loader *transcriber.Loader, devices DeviceFactory, pub events.Publisher, opts ...Option) *Controller {
	if pub == nil {
		pub = events.Nop{}
	}
	c := &Controller{
		loader:  loader,
		devices: devices,
		pub:     pub,
		metrics: metrics.DefaultMetrics,
		now:     time.Now,
		log:     logging.WithComponent("dictation"),
		cfg:     cfg,
		state:   Stopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetConfig replaces the configuration used by the next Start.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsRunning() bool {
	return c.State() == Running
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state}
	if c.run != nil {
		st.SessionID = c.run.id
		st.StartedAt = c.run.startedAt
		st.Frames = c.run.frames.Load()
	}
	return st
}

// Start opens a new session. ctx bounds the session's preview recognition
// calls and should outlive the session.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != Stopped {
		c.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	c.state = Starting
	cfg := c.cfg
	c.mu.Unlock()

	r, err := c.setup(ctx, cfg)
	if err != nil {
		c.mu.Lock()
		c.state = Stopped
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("failed to start dictation")
		c.publish(events.KindError, "", err.Error())
		c.publishStatus("", events.StatusError, fmt.Sprintf("Failed to start dictation: %v", err))
		return "", err
	}

	c.mu.Lock()
	c.state = Running
	c.run = r
	// published before the worker exists so it precedes every result
	c.publishStatus(r.id, events.StatusStarted, "Dictation started")
	r.wg.Add(1)
	go c.poll(r, cfg)
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	r.log.Info().Str("file", r.recorder.Path()).Msg("dictation started")
	return "Dictation started", nil
}

func (c *Controller) setup(ctx context.Context, cfg Config) (*run, error) {
	engine, err := c.loader.Get()
	if err != nil {
		return nil, &EngineInitError{Err: err}
	}

	opts := []segment.Option{segment.WithClock(c.now)}
	if cfg.Detector == "webrtc" {
		vad, err := segment.NewWebRTCClassifier(cfg.Segmenter.SampleRate, cfg.VADMode, cfg.Segmenter.SpeechThreshold)
		if err != nil {
			return nil, &SetupError{Stage: "speech detector", Err: err}
		}
		opts = append(opts, segment.WithClassifier(vad))
	}
	seg, err := segment.New(cfg.Segmenter, opts...)
	if err != nil {
		return nil, &SetupError{Stage: "segmenter", Err: err}
	}

	now := c.now()
	id := session.NewID(now)
	stop, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		engine:    engine,
		ctx:       ctx,
		cancel:    cancel,
		stop:      stop,
		startedAt: now,
		log:       logging.WithSession("dictation", id),
		segmenter: seg,
		history:   dedup.New(cfg.HistorySize),
		warnings:  make(chan string, warningQueueSize),
	}

	r.device = c.devices()
	format, err := r.device.Open(c.onFrame(r))
	if err != nil {
		cancel()
		r.device.Close()
		return nil, &DeviceError{Err: err}
	}

	conv, err := audio.NewConverter(format.Channels, format.SampleRate, audio.TargetSampleRate)
	if err != nil {
		cancel()
		r.device.Close()
		return nil, &SetupError{Stage: "sample converter", Err: err}
	}

	rec, err := session.StartWithID(cfg.SessionsDir, id)
	if err != nil {
		cancel()
		r.device.Close()
		return nil, &SetupError{Stage: "session recording", Err: err}
	}

	r.log.Debug().
		Str("device", format.DeviceName).
		Int("rate", format.SampleRate).
		Int("channels", format.Channels).
		Str("format", string(format.SampleFormat)).
		Msg("audio input opened")
	if format.SampleRate < audio.TargetSampleRate {
		r.log.Warn().Int("rate", format.SampleRate).Msg("input rate below 16 kHz is passed through without upsampling")
	}

	r.mu.Lock()
	r.converter = conv
	r.recorder = rec
	r.ready = true
	for _, f := range r.early {
		c.ingest(r, f)
	}
	r.early = nil
	r.mu.Unlock()
	return r, nil
}

// onFrame returns the capture callback. It runs on the driver thread and
// never waits on recognition.
func (c *Controller) onFrame(r *run) func(audio.Frame) {
	return func(f audio.Frame) {
		n := r.frames.Add(1)
		c.metrics.RecordFrame()

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		if !r.ready {
			// the driver may start delivering before setup returns
			if len(r.early) < maxEarlyFrames {
				r.early = append(r.early, f.Clone())
			}
			return
		}

		c.ingest(r, f)

		if n%debugEvery == 0 {
			r.log.Debug().
				Int64("frames", n).
				Str("state", string(r.segmenter.State())).
				Int("buffered", r.segmenter.Buffered()).
				Int("recorded", r.recorder.Samples()).
				Msg("capture progress")
		}
	}
}

// ingest fans one frame out to the segmenter and the session recording.
// r.mu must be held.
func (c *Controller) ingest(r *run, f audio.Frame) {
	samples := r.converter.Convert(f)
	if len(samples) == 0 {
		return
	}
	r.segmenter.Push(samples)

	if err := r.recorder.Append(samples); err != nil {
		c.metrics.RecordWriteError()
		if failures := r.writeErrors.Add(1); failures == 1 || failures%writeWarnEvery == 0 {
			r.warn(fmt.Sprintf("session recording write failed (%d so far): %v", failures, err))
		}
	}
}

func (r *run) warn(msg string) {
	select {
	case r.warnings <- msg:
	default:
	}
}

func (c *Controller) poll(r *run, cfg Config) {
	defer r.wg.Done()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop.Done():
			return
		case <-ticker.C:
			c.tick(r, cfg)
		}
	}
}

func (c *Controller) tick(r *run, cfg Config) {
	r.mu.Lock()
	chunk, ok := r.segmenter.Poll()
	discarded := r.segmenter.Stats().Discarded
	r.mu.Unlock()

	if d := discarded - r.discarded; d > 0 {
		r.discarded = discarded
		c.metrics.RecordDiscarded(d)
		r.log.Debug().Int("total", discarded).Msg("discarded short utterance")
	}

	if ok {
		c.metrics.RecordChunk(string(chunk.Reason))
		c.preview(r, cfg, chunk)
	}

	r.mu.Lock()
	brk := r.segmenter.TakeParagraphBreak()
	r.mu.Unlock()
	if brk {
		c.metrics.RecordParagraphBreak()
		c.publish(events.KindParagraphBreak, r.id, events.ParagraphBreak{
			Type:            events.BreakParagraph,
			SilenceDuration: cfg.Segmenter.SilenceDuration.Seconds(),
		})
	}

	c.drainWarnings(r)
}

// preview transcribes one utterance and publishes every new segment.
func (c *Controller) preview(r *run, cfg Config, chunk segment.Chunk) {
	dur := chunk.Duration(audio.TargetSampleRate)
	if !transcriber.Gate(chunk.Samples, cfg.MinRMS, cfg.MinPeak) {
		c.metrics.RecordGated()
		r.log.Debug().Dur("duration", dur).Msg("utterance too quiet, skipping recognition")
		return
	}

	samples := transcriber.PadToMinimum(chunk.Samples, audio.Samples(cfg.MinInputDuration, audio.TargetSampleRate))

	start := time.Now()
	segments, err := r.engine.Transcribe(r.ctx, samples, transcriber.ModePreview)
	took := time.Since(start)
	c.metrics.RecordRecognition(transcriber.ModePreview.String(), err, took.Seconds())
	if err != nil {
		r.log.Warn().Err(err).Dur("duration", dur).Msg("preview transcription failed")
		c.publish(events.KindWarning, r.id, fmt.Sprintf("preview transcription failed: %v", err))
		return
	}

	r.log.Debug().
		Dur("duration", dur).
		Str("reason", string(chunk.Reason)).
		Int("segments", len(segments)).
		Dur("took", took).
		Msg("utterance transcribed")

	for _, s := range segments {
		text := strings.TrimSpace(s)
		if len(text) <= 1 {
			continue
		}
		if r.history.IsDuplicate(text) {
			c.metrics.RecordDuplicate()
			r.log.Debug().Str("text", text).Msg("dropping repeated result")
			continue
		}
		r.history.Record(text)
		c.metrics.RecordPreview()
		c.publish(events.KindResult, r.id, events.Result{Text: text, IsPreview: true})
	}
}

func (c *Controller) drainWarnings(r *run) {
	for {
		select {
		case msg := <-r.warnings:
			r.log.Warn().Msg(msg)
			c.publish(events.KindWarning, r.id, msg)
		default:
			return
		}
	}
}

// Stop ends the running session and runs the final pass over its recording.
// A failed final pass is reported in the returned message and as an error
// event; the controller is Stopped either way.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return "", ErrNotRunning
	}
	c.state = Stopping
	r := c.run
	cfg := c.cfg
	c.mu.Unlock()

	// an in-flight preview finishes before the worker exits
	r.cancel()
	r.wg.Wait()

	if err := r.device.Close(); err != nil {
		r.log.Warn().Err(err).Msg("failed to close audio input")
	}

	r.mu.Lock()
	r.closed = true
	rec, finErr := r.recorder.Finalize()
	r.mu.Unlock()

	c.drainWarnings(r)
	c.metrics.RecordSessionEnd(c.now().Sub(r.startedAt).Seconds())

	c.publishStatus(r.id, events.StatusProcessing, "Processing full session for final transcription")

	var (
		text string
		err  = finErr
	)
	if err == nil {
		text, err = c.finalPass(ctx, r, cfg, rec)
	}

	message := "Dictation stopped"
	if err != nil {
		r.log.Error().Err(err).Msg("final transcription failed")
		c.publish(events.KindError, r.id, err.Error())
		message = fmt.Sprintf("Dictation stopped, final transcription failed: %v", err)
	} else {
		c.publish(events.KindFinalResult, r.id, events.FinalResult{
			Text:            text,
			IsComplete:      true,
			DurationSeconds: rec.Duration.Seconds(),
			SessionFile:     rec.Path,
		})
		r.log.Info().
			Dur("duration", rec.Duration).
			Int("chars", len(text)).
			Str("file", rec.Path).
			Msg("dictation finished")
	}

	// listeners observe Stopped when the stopped status arrives
	c.mu.Lock()
	c.state = Stopped
	c.run = nil
	c.mu.Unlock()

	c.publishStatus(r.id, events.StatusStopped, message)
	return message, nil
}

func (c *Controller) finalPass(ctx context.Context, r *run, cfg Config, rec session.Recording) (string, error) {
	samples, err := session.ReadSamples(rec.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read session recording: %w", err)
	}
	if len(samples) == 0 {
		return "", nil
	}
	samples = transcriber.PadToMinimum(samples, audio.Samples(cfg.MinInputDuration, audio.TargetSampleRate))

	start := time.Now()
	segments, err := r.engine.Transcribe(ctx, samples, transcriber.ModeFinal)
	c.metrics.RecordRecognition(transcriber.ModeFinal.String(), err, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return transcriber.JoinSegments(segments), nil
}

func (c *Controller) publish(kind events.Kind, sessionID string, payload any) {
	c.pub.Publish(events.Event{
		Kind:    kind,
		Session: sessionID,
		Time:    c.now(),
		Payload: payload,
	})
}

func (c *Controller) publishStatus(sessionID string, status events.Status, message string) {
	c.publish(events.KindStatus, sessionID, events.StatusChange{Status: status, Message: message})
}

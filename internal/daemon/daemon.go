// Package daemon hosts the dictation controller behind the control socket
// and the local event endpoint.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/bus"
	"github.com/quillpad/quilldict/internal/config"
	"github.com/quillpad/quilldict/internal/deps"
	"github.com/quillpad/quilldict/internal/dictation"
	"github.com/quillpad/quilldict/internal/events"
	"github.com/quillpad/quilldict/internal/logging"
	"github.com/quillpad/quilldict/internal/metrics"
	"github.com/quillpad/quilldict/internal/notify"
	"github.com/quillpad/quilldict/internal/recording"
	"github.com/quillpad/quilldict/internal/session"
	"github.com/quillpad/quilldict/internal/transcriber"
)

const (
	shutdownTimeout = 2 * time.Minute
	probeDuration   = 500 * time.Millisecond
)

// EngineFactory builds the recognition engine for a configuration.
type EngineFactory func(transcriber.Config) transcriber.Factory

func defaultEngineFactory(cfg transcriber.Config) transcriber.Factory {
	return func() (transcriber.Engine, error) { return transcriber.NewEngine(cfg) }
}

type Options struct {
	// Devices overrides the PortAudio microphone.
	Devices dictation.DeviceFactory
	Engines EngineFactory
	// Notifier overrides the one selected by the notifications config.
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	// Listener overrides the control socket. The pid file is only managed
	// for the default socket.
	Listener net.Listener
}

type Daemon struct {
	cfgMgr  *config.Manager
	loader  *transcriber.Loader
	ctrl    *dictation.Controller
	hub     *events.Hub
	metrics *metrics.Metrics
	engines EngineFactory
	devices dictation.DeviceFactory
	ln      net.Listener
	log     zerolog.Logger

	mu         sync.Mutex
	engineCfg  transcriber.Config
	notifier   notify.Notifier
	fixedNotif bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(mgr *config.Manager, opts Options) *Daemon {
	cfg := mgr.GetConfig()

	d := &Daemon{
		cfgMgr:    mgr,
		hub:       events.NewHub(),
		metrics:   opts.Metrics,
		engines:   opts.Engines,
		devices:   opts.Devices,
		ln:        opts.Listener,
		log:       logging.WithComponent("daemon"),
		engineCfg: cfg.ToTranscriberConfig(),
		notifier:  opts.Notifier,
	}
	if d.metrics == nil {
		d.metrics = metrics.DefaultMetrics
	}
	if d.engines == nil {
		d.engines = defaultEngineFactory
	}
	if d.devices == nil {
		d.devices = func() recording.Device {
			return recording.NewRecorder(d.cfgMgr.GetConfig().ToRecordingConfig())
		}
	}
	if d.notifier != nil {
		d.fixedNotif = true
	} else {
		d.notifier = notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)
	}

	d.loader = transcriber.NewLoader(d.engines(d.engineCfg))
	pub := events.Multi{d.hub, events.PublisherFunc(d.notify)}
	d.ctrl = dictation.New(cfg.ToDictationConfig(), d.loader, d.devices, pub, dictation.WithMetrics(d.metrics))
	d.ctx, d.cancel = context.WithCancel(context.Background())

	mgr.OnReload(d.onReload)
	return d
}

func (d *Daemon) Controller() *dictation.Controller { return d.ctrl }
func (d *Daemon) Hub() *events.Hub                  { return d.hub }

func (d *Daemon) notify(e events.Event) {
	d.mu.Lock()
	n := d.notifier
	d.mu.Unlock()
	notify.Publisher{N: n}.Publish(e)
}

func (d *Daemon) onReload(cfg *config.Config) {
	logging.Init(cfg.ToLoggingConfig())
	d.ctrl.SetConfig(cfg.ToDictationConfig())

	d.mu.Lock()
	if !d.fixedNotif {
		d.notifier = notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)
	}
	d.mu.Unlock()

	if d.ctrl.IsRunning() {
		d.log.Info().Msg("configuration reloaded, changes apply to the next session")
	}
}

// refreshEngine swaps the engine factory when the engine configuration
// changed since it was loaded. It runs only while no session is active.
func (d *Daemon) refreshEngine() {
	next := d.cfgMgr.GetConfig().ToTranscriberConfig()

	d.mu.Lock()
	changed := next != d.engineCfg
	if changed {
		d.engineCfg = next
	}
	d.mu.Unlock()

	if !changed {
		return
	}
	d.log.Info().Str("provider", next.Provider).Str("model", next.Model).Msg("engine configuration changed")
	if err := d.loader.Reset(d.engines(next)); err != nil {
		d.log.Warn().Err(err).Msg("failed to release previous engine")
	}
}

// Handler serves the websocket event stream and Prometheus metrics.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/events", events.NewHandler(d.hub))
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.ctrl.Status())
	})
	return mux
}

// Run serves until ctx is cancelled, a quit command arrives, or the process
// receives SIGINT or SIGTERM. A running session is stopped gracefully first.
func (d *Daemon) Run(ctx context.Context) error {
	ln := d.ln
	if ln == nil {
		if err := bus.CheckExistingDaemon(); err != nil {
			return err
		}
		var err error
		ln, err = bus.Listen()
		if err != nil {
			return err
		}
		if err := bus.CreatePidFile(); err != nil {
			ln.Close()
			return fmt.Errorf("failed to create PID file: %w", err)
		}
		defer bus.RemovePidFile()
	}

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		select {
		case <-ctx.Done():
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	if err := d.cfgMgr.StartWatching(d.ctx); err != nil {
		d.log.Warn().Err(err).Msg("config hot reload disabled")
	}
	defer d.cfgMgr.Stop()

	srv, err := d.startHTTP()
	if err != nil {
		ln.Close()
		return err
	}

	d.log.Info().Str("config", d.cfgMgr.Path()).Msg("daemon started, listening on socket")
	serveErr := bus.Serve(d.ctx, ln, d)

	d.shutdown(srv)
	return serveErr
}

func (d *Daemon) startHTTP() (*http.Server, error) {
	addr := d.cfgMgr.GetConfig().Server.Listen
	if addr == "" {
		return nil, nil
	}

	hl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(hl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error().Err(err).Msg("event server failed")
		}
	}()
	d.log.Info().Str("addr", hl.Addr().String()).Msg("event endpoint listening")
	return srv, nil
}

func (d *Daemon) shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.ctrl.IsRunning() {
		d.log.Info().Msg("stopping active session before exit")
		if msg, err := d.ctrl.Stop(ctx); err != nil {
			d.log.Warn().Err(err).Msg("failed to stop session")
		} else {
			d.log.Info().Msg(msg)
		}
	}

	d.hub.Close()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	if err := d.loader.Close(); err != nil {
		d.log.Warn().Err(err).Msg("failed to release engine")
	}
	d.log.Info().Msg("daemon stopped")
}

// Quit asks Run to return.
func (d *Daemon) Quit() { d.cancel() }

// Handle answers one control command.
func (d *Daemon) Handle(ctx context.Context, cmd byte) string {
	switch cmd {
	case bus.CmdStart:
		if !d.ctrl.IsRunning() {
			d.refreshEngine()
		}
		// previews are bound to the daemon, not to the client connection
		msg, err := d.ctrl.Start(d.ctx)
		if err != nil {
			return bus.Err(err.Error())
		}
		return bus.OK(msg)

	case bus.CmdStop:
		msg, err := d.ctrl.Stop(d.ctx)
		if err != nil {
			return bus.Err(err.Error())
		}
		return bus.OK(msg)

	case bus.CmdStatus:
		return jsonReply(d.ctrl.Status())

	case bus.CmdSessions:
		list, err := session.List(d.cfgMgr.GetConfig().Dictation.SessionsDir)
		if err != nil {
			return bus.Err(err.Error())
		}
		if list == nil {
			list = []session.Info{}
		}
		return jsonReply(list)

	case bus.CmdDiagnose:
		return jsonReply(d.diagnose())

	case bus.CmdVersion:
		return bus.Status("proto=" + bus.ProtoVer)

	case bus.CmdQuit:
		go func() {
			time.Sleep(100 * time.Millisecond) // let the client read the reply
			d.cancel()
		}()
		return bus.OK("quitting")

	default:
		d.log.Warn().Str("cmd", string(cmd)).Msg("unknown command")
		return bus.Err(fmt.Sprintf("unknown=%q", cmd))
	}
}

// DiagnoseReply is the payload of the diagnose command.
type DiagnoseReply struct {
	Healthy bool     `json:"healthy"`
	Checks  []string `json:"checks"`
}

func (d *Daemon) diagnose() DiagnoseReply {
	cfg := d.cfgMgr.GetConfig()
	opts := deps.Options{
		Provider:  cfg.Engine.Provider,
		Model:     cfg.Engine.Model,
		ModelPath: cfg.Engine.ModelPath,
		ProbeFor:  probeDuration,
	}
	// the microphone is busy during a session
	if !d.ctrl.IsRunning() {
		opts.Mic = d.devices()
	}

	checks := deps.Diagnose(opts)
	if err := cfg.Validate(); err != nil {
		checks = append(checks, deps.Check{Name: "config", OK: false, Detail: err.Error()})
	} else {
		checks = append(checks, deps.Check{Name: "config", OK: true, Detail: d.cfgMgr.Path()})
	}

	out := DiagnoseReply{Healthy: deps.Healthy(checks)}
	for _, c := range checks {
		out.Checks = append(out.Checks, c.String())
	}
	return out
}

func jsonReply(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return bus.Err(err.Error())
	}
	return bus.Status(string(b))
}

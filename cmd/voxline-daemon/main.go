package main

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cli "github.com/spf13/pflag"

	"voxline/internal/app"
	"voxline/internal/audio"
	"voxline/internal/bus"
	"voxline/internal/config"
	"voxline/internal/ipc"
	"voxline/internal/metrics"
	"voxline/internal/notify"
	"voxline/internal/pipeline"
	"voxline/internal/tts"
)

type daemon struct {
	cfg     *config.Config
	runner  *pipeline.Runner
	metrics *metrics.Metrics
	bus     *bus.Bus // nil when no hub is configured

	root context.Context
	wg   sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil while a run is in flight
}

func main() {
	configPath := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level")
	cli.Parse()

	app.SetupLogging("info")
	log.Info("Booting up")

	cfg, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if cli.CommandLine.Changed("log") {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *audio.Recorder
	if cfg.Audio.Input == "" {
		rec = audio.NewRecorder()
		if err := rec.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			os.Exit(1)
		}
		defer rec.Close()
		log.Debug("Loaded recorder")
	}

	speech, closer, err := app.Speech(cfg.Speech)
	if err != nil {
		log.Error("Failed to init speech engine", "err", err)
		os.Exit(1)
	}
	defer closer.Close()
	log.Debug("Loaded speech engine", "engine", cfg.Speech.Engine)

	gen, err := app.Generator(cfg)
	if err != nil {
		log.Error("Failed to init generation engine", "err", err)
		os.Exit(1)
	}

	d := &daemon{
		cfg:     cfg,
		metrics: metrics.New(),
		root:    ctx,
		runner: pipeline.New(cfg.Audio, pipeline.Deps{
			Capturer:  app.Capturer(cfg.Audio, rec),
			Speech:    speech,
			Generator: gen,
			Filter:    app.Filter(cfg.Speech),
		}),
	}

	if cfg.Daemon.BusURL != "" {
		b, err := bus.Dial(cfg.Daemon.BusURL, "voxline")
		if err != nil {
			log.Warn("Failed to connect to bus, publishing disabled", "url", cfg.Daemon.BusURL, "err", err)
		} else {
			d.bus = b
			defer b.Close()
		}
	}

	if addr := cfg.Daemon.MetricsAddr; addr != "" {
		go func() {
			if err := d.metrics.Serve(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server stopped", "addr", addr, "err", err)
			}
		}()
	}

	srv, err := ipc.Listen(cfg.Daemon.Socket, d.handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", cfg.Daemon.Socket)

	<-ctx.Done()
	log.Info("Shutting down")
	d.wg.Wait()
}

func (d *daemon) handle(msg ipc.ControlMessage) ipc.Reply {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch msg.Cmd {
	case ipc.CmdTrigger:
		if d.cancel != nil {
			log.Warn("Trigger ignored, run in progress")
			return ipc.Reply{OK: false, Message: "busy"}
		}
		ctx, cancel := context.WithCancel(d.root)
		d.cancel = cancel
		d.wg.Add(1)
		go d.runOnce(ctx)
		return ipc.Reply{OK: true, Message: "listening"}

	case ipc.CmdCancel:
		if d.cancel == nil {
			return ipc.Reply{OK: false, Message: "idle"}
		}
		d.cancel()
		return ipc.Reply{OK: true, Message: "cancelling"}

	case ipc.CmdStatus:
		if d.cancel != nil {
			return ipc.Reply{OK: true, Message: "running"}
		}
		return ipc.Reply{OK: true, Message: "idle"}
	}

	log.Warn("Unknown command", "cmd", msg.Cmd)
	return ipc.Reply{OK: false, Message: "unknown command"}
}

func (d *daemon) runOnce(ctx context.Context) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.cancel()
		d.cancel = nil
		d.mu.Unlock()
	}()

	if d.cfg.Output.Beep != "" && d.cfg.Audio.Input == "" {
		if err := notify.Beep(d.cfg.Output.Beep); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	res, err := d.runner.Run(ctx)
	d.metrics.Observe(res, d.cfg.Audio.SourceRate, err)

	switch {
	case errors.Is(err, pipeline.ErrCancelled):
		log.Warn("Run interrupted")
		return
	case errors.Is(err, pipeline.ErrNoSpeech):
		log.Info("No usable speech, skipping generation")
		return
	case err != nil:
		log.Error("Run failed", "err", err)
		d.publish(bus.KindError, err.Error())
		return
	}

	log.Info("──────── VOXLINE ────────")
	log.Info("heard:  " + res.Utterance)
	log.Info("reply:  " + res.Reply)
	log.Info("─────────────────────────")

	d.publish(bus.KindUtterance, res.Utterance)
	d.publish(bus.KindReply, res.Reply)

	if d.cfg.Output.Speak {
		if err := tts.Speak(res.Reply, d.cfg.Output.SpeakLang); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}
}

func (d *daemon) publish(kind, content string) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(kind, content); err != nil {
		log.Warn("Failed to publish", "kind", kind, "err", err)
	}
}

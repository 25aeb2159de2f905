package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"voxline/internal/app"
	"voxline/internal/audio"
	"voxline/internal/config"
	"voxline/internal/notify"
	"voxline/internal/pipeline"
	"voxline/internal/tts"
)

const exitInterrupted = 130

func main() {
	os.Exit(run())
}

func run() int {
	configPath := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	device := cli.IntP("device", "d", -1, "Input device index, -1 for the default device")
	duration := cli.DurationP("duration", "t", 0, "Recording length")
	input := cli.StringP("input", "i", "", "Transcribe this recording instead of the microphone")
	engine := cli.String("engine", "", "Generation engine: ollama, llama or openai")
	sttEngine := cli.String("stt", "", "Speech engine: cli or native")
	proxyAddr := cli.StringP("proxy", "p", "", "SOCKS5 proxy for HTTP engines")
	keep := cli.Bool("keep", false, "Keep the intermediate wav files")
	speak := cli.Bool("speak", false, "Read the reply aloud")
	beepPath := cli.String("beep", "", "mp3 cue played before recording")
	cli.Parse()

	app.SetupLogging("info")

	cfg, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		return 1
	}

	changed := cli.CommandLine.Changed
	if changed("log") {
		cfg.Logging.Level = *logLevel
	}
	if changed("device") {
		cfg.Audio.Device = *device
	}
	if changed("duration") {
		cfg.Audio.Duration = *duration
	}
	if changed("input") {
		cfg.Audio.Input = *input
	}
	if changed("engine") {
		cfg.Generation.Engine = *engine
	}
	if changed("stt") {
		cfg.Speech.Engine = *sttEngine
	}
	if changed("proxy") {
		cfg.Proxy = *proxyAddr
	}
	if changed("keep") {
		cfg.Audio.KeepFiles = *keep
	}
	if changed("speak") {
		cfg.Output.Speak = *speak
	}
	if changed("beep") {
		cfg.Output.Beep = *beepPath
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		return 1
	}
	app.SetupLogging(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runOnce(ctx, cfg)
	switch {
	case errors.Is(err, pipeline.ErrCancelled):
		fmt.Fprintln(os.Stderr, "\nInterrupted by user.")
		return exitInterrupted
	case errors.Is(err, pipeline.ErrNoSpeech):
		fmt.Fprintln(os.Stderr, "No usable speech, skipping generation.")
		return 0
	case err != nil:
		log.Error("Run failed", "err", err)
		return 1
	}

	fmt.Println()

	if cfg.Output.Speak {
		if err := tts.Speak(res.Reply, cfg.Output.SpeakLang); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}

	return 0
}

func runOnce(ctx context.Context, cfg *config.Config) (pipeline.Result, error) {
	var rec *audio.Recorder
	if cfg.Audio.Input == "" {
		rec = audio.NewRecorder()
		if err := rec.Init(); err != nil {
			return pipeline.Result{}, fmt.Errorf("init audio: %w", err)
		}
		defer rec.Close()
	}

	speech, closer, err := app.Speech(cfg.Speech)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("init speech engine: %w", err)
	}
	defer closer.Close()

	gen, err := app.Generator(cfg)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("init generation engine: %w", err)
	}

	if cfg.Output.Beep != "" && cfg.Audio.Input == "" {
		if err := notify.Beep(cfg.Output.Beep); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	r := pipeline.New(cfg.Audio, pipeline.Deps{
		Capturer:  app.Capturer(cfg.Audio, rec),
		Speech:    speech,
		Generator: gen,
		Filter:    app.Filter(cfg.Speech),
		Out:       os.Stdout,
	})

	return r.Run(ctx)
}

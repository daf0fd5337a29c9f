package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"time"

	"vista/internal/activation"
	"vista/internal/audio"
	"vista/internal/camera"
	"vista/internal/config"
	"vista/internal/nlu"
	"vista/internal/notify"
	"vista/internal/proxy"
	"vista/internal/recognizer"
	"vista/internal/scene"
	"vista/internal/speaker"
	"vista/internal/tts"
	"vista/pkg/detect/yolo"
	"vista/pkg/speech"
	"vista/pkg/stt"
)

// build assembles the session collaborators. cleanup releases them in
// reverse order.
func build(ctx context.Context, cfg config.Config, logger *log.Logger) (activation.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (activation.Deps, func(), error) {
		cleanup()
		return activation.Deps{}, func() {}, err
	}

	detector, err := yolo.New(cfg.Detector, logger)
	if err != nil {
		return fail(fmt.Errorf("detector: %w", err))
	}
	closers = append(closers, func() { detector.Close() })
	log.Debug("Loaded detector", "model", cfg.Detector.ModelPath)

	synth, err := buildSynth(cfg, logger)
	if err != nil {
		return fail(err)
	}
	spk := speaker.New(synth, speaker.Options{
		Policy:   cfg.SpeechPolicy,
		Cooldown: cfg.Cooldown,
	}, logger)
	closers = append(closers, func() { spk.Close() })

	rec, closeRec, err := buildRecognizer(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeRec)
	log.Debug("Loaded recognizer", "backend", cfg.Backend)

	deps := activation.Deps{
		Recognizer: rec,
		Frames:     camera.New(cfg.Camera, logger),
		Detector:   detector,
		Speaker:    spk,
		Describer:  scene.Describer{CountPeople: cfg.CountPeople},
	}

	if cue, err := notify.NewCue(ctx, cfg.CuePath, logger); err != nil {
		log.Warn("Wake cue disabled", "err", err)
	} else {
		deps.Cue = cue
	}

	if cfg.Ticks {
		if ticks, err := notify.NewTicks(logger); err != nil {
			log.Warn("Haptic ticks disabled", "err", err)
		} else {
			deps.Haptics = ticks
		}
	}

	if cfg.NLU {
		httpClient, err := proxy.NewClient(cfg.Proxy)
		if err != nil {
			return fail(fmt.Errorf("dial socks proxy %s: %w", cfg.Proxy, err))
		}
		m, err := nlu.New(nlu.Options{
			APIKey:     cfg.OpenAIKey,
			Model:      cfg.OpenAIModel,
			HTTPClient: httpClient,
		}, logger)
		if err != nil {
			return fail(err)
		}
		deps.Matcher = m
		log.Debug("Loaded intent model", "proxy", cfg.Proxy)
	}

	return deps, cleanup, nil
}

func buildSynth(cfg config.Config, logger *log.Logger) (tts.Synth, error) {
	console := tts.NewConsole(os.Stdout, 0)

	var backends []tts.Synth
	if cfg.TTS == config.TTSEspeak {
		es, err := tts.NewEspeak(cfg.Activation.Locale, logger)
		if err != nil {
			log.Warn("espeak unavailable, printing speech instead", "err", err)
		} else {
			backends = append(backends, es)
		}
	}
	backends = append(backends, console)

	chain, err := tts.NewChain(logger, backends...)
	if err != nil {
		return nil, err
	}
	if !cfg.Duck {
		return chain, nil
	}
	return &audio.DuckingSynth{
		Synth:  chain,
		Ducker: audio.NewDucker([]string{"vista", "espeak"}, 10, nil),
		Factor: cfg.DuckFactor,
		Fade:   150 * time.Millisecond,
		Logger: logger,
	}, nil
}

func buildRecognizer(cfg config.Config, logger *log.Logger) (speech.Recognizer, func(), error) {
	lang := stt.LanguageFromLocale(cfg.Activation.Locale)

	switch cfg.Backend {
	case config.BackendProcess:
		p := recognizer.NewProcess(recognizer.ProcessConfig{
			Command: cfg.RecognizerCmd,
			Args:    cfg.RecognizerArgs,
		}, logger)
		return recognizer.New(p, logger), func() { p.Close() }, nil

	case config.BackendReplay:
		r := &recognizer.Replay{
			Dir:      cfg.ReplayDir,
			Language: lang,
			Gap:      500 * time.Millisecond,
		}
		closer := func() {}
		if stt.CheckModel(cfg.WhisperModel) == nil {
			tr, err := stt.NewTranscriber(cfg.WhisperModel)
			if err != nil {
				return nil, nil, fmt.Errorf("whisper: %w", err)
			}
			r.Transcriber = tr
			closer = func() { tr.Close() }
		}
		return recognizer.New(r, logger), closer, nil
	}

	rec := audio.NewRecorder(audio.DefaultVADConfig())
	m := &recognizer.Mic{
		Recorder:    rec,
		ModelPath:   cfg.WhisperModel,
		Language:    lang,
		CommandIdle: cfg.Activation.CommandTimeout,
	}
	closer := func() { rec.Close() }
	if stt.CheckModel(cfg.WhisperModel) == nil {
		tr, err := stt.NewTranscriber(cfg.WhisperModel)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper: %w", err)
		}
		m.Transcriber = tr
		closer = func() {
			rec.Close()
			tr.Close()
		}
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)
	}
	return recognizer.New(m, logger), closer, nil
}

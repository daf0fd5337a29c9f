package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"vista/internal/activation"
	"vista/internal/config"
	"vista/internal/ipc"
	"vista/internal/telemetry"
	"vista/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", config.DefaultLogLevel, "Log level")
	socket := cli.StringP("socket", "s", config.DefaultSocketPath, "Control socket path")
	busURL := cli.StringP("url", "u", "", "Url of hub (empty disables the hub)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the intent model")
	camera := cli.StringP("camera", "c", "0", "Camera index, device, stream url or image file")
	backend := cli.StringP("recognizer", "r", config.DefaultBackend, "Recognizer backend: mic, process or replay")
	replayDir := cli.String("replay", "", "Directory of utterances for the replay recognizer")
	ttsName := cli.String("tts", config.DefaultTTS, "Speech output: espeak or console")
	continuous := cli.Bool("continuous", true, "Keep listening after each description")
	idle := cli.Bool("idle", false, "Wait for a start command instead of starting the session")
	cli.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Error("Failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg, err := config.Loader{}.Load()
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	flagString(cli.CommandLine, "log", &cfg.LogLevel, *logLevel)
	flagString(cli.CommandLine, "socket", &cfg.SocketPath, *socket)
	flagString(cli.CommandLine, "url", &cfg.BusURL, *busURL)
	flagString(cli.CommandLine, "proxy", &cfg.Proxy, *proxyAddr)
	flagString(cli.CommandLine, "camera", &cfg.Camera.Device, *camera)
	flagString(cli.CommandLine, "recognizer", &cfg.Backend, *backend)
	flagString(cli.CommandLine, "replay", &cfg.ReplayDir, *replayDir)
	flagString(cli.CommandLine, "tts", &cfg.TTS, *ttsName)
	if cli.CommandLine.Changed("continuous") {
		cfg.Activation.Continuous = *continuous
	}

	level, ok := logLevelMap[cfg.LogLevel]
	if !ok {
		level = log.LevelInfo
	}
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	log.Info("Booting up", "wake", cfg.Activation.WakePhrase, "recognizer", cfg.Backend, "camera", cfg.Camera.Device)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *idle); err != nil {
		log.Error("Daemon failed", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func flagString(fs *cli.FlagSet, name string, target *string, value string) {
	if fs.Changed(name) {
		*target = value
	}
}

func run(ctx context.Context, cfg config.Config, idle bool) error {
	logger := log.Default()

	deps, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	observers := activation.Observers{sessionLog(logger)}

	var bridge *telemetry.Bridge
	var ptcl *protocol.Protocol
	if cfg.BusURL != "" {
		ptcl, err = protocol.NewProtocol(ctx, protocol.PtclConfig{
			Shard:   cfg.Shard,
			Url:     cfg.BusURL,
			Reconn:  2 * time.Second,
			Timeout: 5 * time.Second,
			Logger:  logger,
		})
		if err != nil {
			log.Warn("Hub unavailable, continuing without it", "url", cfg.BusURL, "err", err)
		} else {
			bridge = telemetry.New(cfg.Shard, ptcl, logger)
			ptcl.EmitOut(bridge.Inbound)
			observers = append(observers, bridge)
		}
	}
	deps.Observer = observers

	ctrl, err := activation.New(cfg.Activation, deps, logger)
	if err != nil {
		return err
	}

	srv, err := ipc.Listen(cfg.SocketPath, controlHandler(ctrl), logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			log.Error("Control socket failed", "err", err)
		}
	}()

	if bridge != nil {
		bridge.SetSession(ctrl)
		go bridge.Run(ctx)
		go func() {
			if err := ptcl.Run(ctx); err != nil {
				log.Error("Hub connection failed", "err", err)
			}
		}()
		defer ptcl.Close()
	}

	log.Info("Boot up - successful", "socket", cfg.SocketPath)

	if !idle {
		if err := ctrl.Start(ctx); err != nil {
			// the control socket stays up so the session can be retried
			log.Error("Failed to start session", "err", err)
		}
	}

	<-ctx.Done()
	log.Info("Stopping")
	if err := ctrl.Stop(); err != nil {
		log.Warn("Stop failed", "err", err)
	}
	<-done
	return nil
}

func controlHandler(ctrl *activation.Controller) ipc.Handler {
	return func(ctx context.Context, req ipc.Request) ipc.Response {
		var err error
		switch req.Cmd {
		case ipc.CmdStart:
			err = ctrl.Start(ctx)
		case ipc.CmdStop:
			err = ctrl.Stop()
		case ipc.CmdTrigger:
			err = ctrl.Trigger()
		case ipc.CmdContinuous:
			switch req.Arg {
			case "on":
				ctrl.SetContinuousMode(true)
			case "off":
				ctrl.SetContinuousMode(false)
			default:
				err = errors.New(`continuous takes "on" or "off"`)
			}
		case ipc.CmdStatus:
		default:
			log.Warn("Unknown command", "cmd", req.Cmd)
			err = errors.New("unknown command " + req.Cmd)
		}

		snap := ctrl.Snapshot()
		resp := ipc.Response{
			OK:         err == nil,
			State:      snap.State.String(),
			Continuous: snap.Continuous,
			Status:     snap.Status,
		}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp
	}
}

func sessionLog(logger *log.Logger) activation.Observer {
	return activation.ObserverFuncs{
		OnSpoken: func(text string) {
			logger.Info("spoken", "text", text)
		},
	}
}

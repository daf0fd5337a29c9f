package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"vista/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// vista watches the hub: it logs state broadcasts and can send one command
// to the daemon shard.
func main() {
	url := cli.StringP("url", "u", "ws://localhost:8092", "Url of hub")
	shard := cli.StringP("shard", "n", "MONITOR", "Shard name of this monitor")
	target := cli.StringP("target", "t", "VISTA", "Shard name of the daemon")
	send := cli.StringP("send", "x", "", `Command to send, e.g. "TRIGGER:SESSION" or "SET:CONTINUOUS:OFF"`)
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ptcl, err := protocol.NewProtocol(ctx, protocol.PtclConfig{
		Shard:   *shard,
		Url:     *url,
		Reconn:  2 * time.Second,
		Timeout: 5 * time.Second,
		EmitOut: func(m *protocol.Message) {
			log.Info("frame", "from", m.From, "verb", m.Verb, "noun", m.Noun, "args", m.Args)
		},
	})
	if err != nil {
		log.Error("Failed to connect to hub", "url", *url, "err", err)
		os.Exit(1)
	}
	defer ptcl.Close()

	if *send != "" {
		go func() {
			rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			frame := append([]string{*target}, strings.Split(*send, ":")...)
			resp, err := ptcl.TransmitReceive(rctx, frame)
			if err != nil {
				log.Error("No reply", "err", err)
				return
			}
			log.Info("reply", "verb", resp.Verb, "noun", resp.Noun, "args", resp.Args)
		}()
	}

	if err := ptcl.Run(ctx); err != nil {
		log.Error("Hub connection failed", "err", err)
		os.Exit(1)
	}
}

// Command owld runs the mail engine daemon: it watches the outbox and
// quarantine, drains the outbound queue on change, and enforces
// retention once a minute. SIGINT or SIGTERM sets a shutdown flag that
// is polled every 200 ms.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"owlery.ink/daemon"
	"owlery.ink/envcfg"
	"owlery.ink/layout"
	"owlery.ink/owlog"
)

const defaultEnvPath = "/home/pi/mail/.env"

func main() {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	flagEnv := flag.String("env", defaultEnvPath, "path to the engine .env file")
	flag.Parse()

	if err := run(zlog, *flagEnv); err != nil {
		zlog.Error().Err(err).Msg("owld")
		os.Exit(1)
	}
}

func run(zlog zerolog.Logger, envPath string) error {
	root := filepath.Dir(envPath)
	lay := layout.New(root)
	if err := lay.Ensure(); err != nil {
		return err
	}

	cfg := envcfg.Default()
	if loaded, err := envcfg.Load(envPath); err == nil {
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	level, err := owlog.ParseLevel(cfg.Logging)
	if err != nil {
		return err
	}
	log, err := owlog.New(root, level)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.Start(lay, cfg, log)
	if err != nil {
		return err
	}

	zlog.Info().Str("root", root).Msg("owld started")

	var stop atomic.Bool
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		stop.Store(true)
	}()

	for !stop.Load() {
		time.Sleep(200 * time.Millisecond)
	}

	zlog.Info().Msg("owld shutting down")
	d.Stop()
	return nil
}

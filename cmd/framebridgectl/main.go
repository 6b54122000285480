// framebridgectl is the host side of a frame bridge. Embedded documents
// connect over WebSocket; each connection gets its own bridge bound to a
// shared host router, which is driven from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/framebridge/internal/config"
	"github.com/danmuck/framebridge/internal/logging"
	"github.com/danmuck/framebridge/internal/observability"
	"github.com/danmuck/framebridge/internal/router"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "cmd/framebridgectl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "framebridgectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, listen string
	var noConsole bool
	flags := pflag.NewFlagSet("framebridgectl", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath, "host config file")
	flags.StringVar(&listen, "listen", "", "override listen_addr")
	flags.BoolVar(&noConsole, "no-console", false, "do not read navigation commands from stdin")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logging.ConfigureRuntime()
	logger := logging.Component("framebridgectl")

	cfg, err := config.LoadHostConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	logger.Info().Str("path", configPath).Str("listen", cfg.ListenAddr).Msg("loaded host config")

	host, err := router.New(cfg.InitialPath, cfg.RouteTable()...)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	mapper, err := cfg.Mapper()
	if err != nil {
		return fmt.Errorf("build mapper: %w", err)
	}

	tlsCfg, err := cfg.TLS.ServerTLS()
	if err != nil {
		return fmt.Errorf("host tls: %w", err)
	}

	srv := newServer(cfg, host, mapper, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observability.RequestLogger(logger, srv.handler()),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsCfg,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !noConsole {
		// Not part of the group: a blocked stdin read must not hold up shutdown.
		go func() {
			if err := runConsole(ctx, os.Stdin, os.Stdout, host); err != nil {
				logger.Warn().Err(err).Msg("console stopped")
			}
			stop()
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	var streams net.Listener
	if cfg.UnixSocket != "" {
		_ = os.Remove(cfg.UnixSocket)
		streams, err = net.Listen("unix", cfg.UnixSocket)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.UnixSocket, err)
		}
		g.Go(func() error {
			logger.Info().Str("socket", cfg.UnixSocket).Msg("host listening for stream frames")
			return srv.serveStreams(streams)
		})
	}
	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("ws_path", cfg.WebSocketPath).
			Bool("tls", tlsCfg != nil).
			Msg("host listening")
		var err error
		if tlsCfg != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if streams != nil {
			_ = streams.Close()
		}
		srv.closeAll()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("host stopped")
	return err
}

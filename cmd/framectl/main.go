// framectl plays an embedded document against framebridgectl: it
// answers the handshake, prints navigate commands from the host and
// reports its own navigation typed on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/framebridge/internal/config"
	"github.com/danmuck/framebridge/internal/embedded"
	"github.com/danmuck/framebridge/internal/logging"
	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "cmd/framectl/config.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "framectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	flags := pflag.NewFlagSet("framectl", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath, "frame config file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logging.ConfigureRuntime()
	logger := logging.Component("framectl")

	cfg, err := config.LoadFrameConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	endpoint, err := embedded.Attach(conn, embedded.Config{LogPrefix: cfg.LogPrefix, Logger: &logger})
	if err != nil {
		return err
	}
	defer endpoint.Close()

	doc := &document{path: cfg.InitialPath, out: os.Stdout}
	endpoint.OnCommand(doc.apply)
	logger.Info().Str("url", cfg.URL).Str("path", cfg.InitialPath).Msg("frame attached")

	go func() {
		if err := doc.console(os.Stdin, endpoint); err != nil {
			logger.Warn().Err(err).Msg("console stopped")
		}
		stop()
	}()

	select {
	case <-ctx.Done():
	case <-conn.Done():
		logger.Info().Msg("host closed the connection")
	}
	return nil
}

type transport interface {
	window.Window
	io.Closer
	Done() <-chan struct{}
}

// connect reaches the host over a unix socket or WebSocket, per the url.
func connect(ctx context.Context, cfg config.FrameConfig, logger zerolog.Logger) (transport, error) {
	if path := cfg.SocketPath(); path != "" {
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", path, err)
		}
		return window.NewStream(c, logger), nil
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	backoff := window.DefaultBackoff()
	backoff.MaxAttempts = cfg.MaxAttempts
	tlsCfg, err := cfg.TLS.ClientTLS()
	if err != nil {
		return nil, fmt.Errorf("frame tls: %w", err)
	}
	return window.Dial(ctx, cfg.URL, window.DialOptions{Header: header, Backoff: backoff, TLS: tlsCfg}, logger)
}

// document is the embedded page's own location.
type document struct {
	mu   sync.Mutex
	path string
	out  io.Writer
}

func (d *document) apply(ev protocol.NavigationEvent) {
	d.mu.Lock()
	d.path = ev.Path
	d.mu.Unlock()
	fmt.Fprintf(d.out, "host navigated frame to %s\n", ev.Path)
}

func (d *document) current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

type notifier interface {
	Notify(protocol.NavigationEvent) error
}

func (d *document) console(in io.Reader, n notifier) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "go":
			if len(fields) != 2 {
				fmt.Fprintln(d.out, "usage: go <path>")
				continue
			}
			d.mu.Lock()
			d.path = fields[1]
			d.mu.Unlock()
			if err := n.Notify(protocol.NavigationEvent{Path: fields[1]}); err != nil {
				fmt.Fprintf(d.out, "error: %v\n", err)
			}
		case "show":
			fmt.Fprintf(d.out, "frame at %s\n", d.current())
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(d.out, "unknown command %q (go <path> | show | quit)\n", fields[0])
		}
	}
	return scanner.Err()
}

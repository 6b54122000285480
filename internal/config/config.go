// Package config loads framebridge TOML files. Keys absent from a file
// keep their defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/framebridge/internal/window"
)

var ErrInvalid = errors.New("config: invalid")

type RouteConfig struct {
	Name    string `toml:"name"`
	Pattern string `toml:"pattern"`
}

type tlsFile struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func (f tlsFile) transport() window.TLSConfig {
	return window.TLSConfig{
		Enabled:            f.Enabled,
		Mutual:             f.Mutual,
		CertFile:           strings.TrimSpace(f.CertFile),
		KeyFile:            strings.TrimSpace(f.KeyFile),
		CAFile:             strings.TrimSpace(f.CAFile),
		ServerName:         strings.TrimSpace(f.ServerName),
		InsecureSkipVerify: f.InsecureSkipVerify,
	}
}

type MappingConfig struct {
	HostPrefix  string `toml:"host_prefix"`
	ChildPrefix string `toml:"child_prefix"`
}

// HostConfig drives framebridgectl: one bridge per embedded frame
// connecting to the WebSocket endpoint.
type HostConfig struct {
	LogPrefix          string
	HandshakeWarnAfter time.Duration
	ListenAddr         string
	WebSocketPath      string
	MetricsPath        string
	UnixSocket         string
	AllowedOrigins     []string
	Token              string
	InitialPath        string
	Routes             []RouteConfig
	Mappings           []MappingConfig
	TLS                window.TLSConfig
}

// FrameConfig drives framectl, the embedded side.
type FrameConfig struct {
	LogPrefix   string
	URL         string
	Token       string
	InitialPath string
	MaxAttempts int
	TLS         window.TLSConfig
}

type hostFile struct {
	LogPrefix          string          `toml:"log_prefix"`
	HandshakeWarnAfter string          `toml:"handshake_warn_after"`
	ListenAddr         string          `toml:"listen_addr"`
	WebSocketPath      string          `toml:"ws_path"`
	MetricsPath        string          `toml:"metrics_path"`
	UnixSocket         string          `toml:"unix_socket"`
	AllowedOrigins     []string        `toml:"allowed_origins"`
	Token              string          `toml:"token"`
	InitialPath        string          `toml:"initial_path"`
	Routes             []RouteConfig   `toml:"routes"`
	Mappings           []MappingConfig `toml:"mappings"`
	TLS                tlsFile         `toml:"tls"`
}

type frameFile struct {
	LogPrefix   string  `toml:"log_prefix"`
	URL         string  `toml:"url"`
	Token       string  `toml:"token"`
	InitialPath string  `toml:"initial_path"`
	MaxAttempts int     `toml:"max_connect_attempts"`
	TLS         tlsFile `toml:"tls"`
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		LogPrefix:          "[framebridge]",
		HandshakeWarnAfter: 10 * time.Second,
		ListenAddr:         "127.0.0.1:7400",
		WebSocketPath:      "/bridge",
		MetricsPath:        "/metrics",
		AllowedOrigins:     []string{},
		InitialPath:        "/",
	}
}

func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		LogPrefix:   "[framebridge:embedded]",
		URL:         "ws://127.0.0.1:7400/bridge",
		InitialPath: "/",
	}
}

func LoadHostConfig(path string) (HostConfig, error) {
	cfg := DefaultHostConfig()

	var raw hostFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return HostConfig{}, fmt.Errorf("load host config: %w", err)
	}

	if meta.IsDefined("log_prefix") {
		cfg.LogPrefix = strings.TrimSpace(raw.LogPrefix)
	}
	if meta.IsDefined("handshake_warn_after") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeWarnAfter))
		if err != nil {
			return HostConfig{}, fmt.Errorf("parse handshake_warn_after: %w", err)
		}
		cfg.HandshakeWarnAfter = d
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("ws_path") {
		cfg.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("metrics_path") {
		cfg.MetricsPath = strings.TrimSpace(raw.MetricsPath)
	}
	if meta.IsDefined("unix_socket") {
		cfg.UnixSocket = strings.TrimSpace(raw.UnixSocket)
	}
	if meta.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = normalizeList(raw.AllowedOrigins)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("initial_path") {
		cfg.InitialPath = strings.TrimSpace(raw.InitialPath)
	}
	if meta.IsDefined("routes") {
		cfg.Routes = raw.Routes
	}
	if meta.IsDefined("mappings") {
		cfg.Mappings = raw.Mappings
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS.transport()
	}

	if err := cfg.Validate(); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}

func LoadFrameConfig(path string) (FrameConfig, error) {
	cfg := DefaultFrameConfig()

	var raw frameFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return FrameConfig{}, fmt.Errorf("load frame config: %w", err)
	}
	if meta.IsDefined("log_prefix") {
		cfg.LogPrefix = strings.TrimSpace(raw.LogPrefix)
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("initial_path") {
		cfg.InitialPath = strings.TrimSpace(raw.InitialPath)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("tls") {
		cfg.TLS = raw.TLS.transport()
	}

	if err := cfg.Validate(); err != nil {
		return FrameConfig{}, err
	}
	return cfg, nil
}

func (c HostConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		return fmt.Errorf("%w: ws_path must start with /", ErrInvalid)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%w: metrics_path must start with /", ErrInvalid)
	}
	if c.MetricsPath == c.WebSocketPath {
		return fmt.Errorf("%w: metrics_path and ws_path collide", ErrInvalid)
	}
	if c.HandshakeWarnAfter < 0 {
		return fmt.Errorf("%w: handshake_warn_after must not be negative", ErrInvalid)
	}
	if !strings.HasPrefix(c.InitialPath, "/") {
		return fmt.Errorf("%w: initial_path must start with /", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Routes))
	for i, r := range c.Routes {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("%w: routes[%d] missing name", ErrInvalid, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: routes[%d] duplicate name %q", ErrInvalid, i, name)
		}
		seen[name] = struct{}{}
		if !strings.HasPrefix(strings.TrimSpace(r.Pattern), "/") {
			return fmt.Errorf("%w: routes[%d] pattern must start with /", ErrInvalid, i)
		}
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("%w: at least one [[mappings]] entry is required", ErrInvalid)
	}
	for i, m := range c.Mappings {
		if !strings.HasPrefix(m.HostPrefix, "/") || !strings.HasPrefix(m.ChildPrefix, "/") {
			return fmt.Errorf("%w: mappings[%d] prefixes must start with /", ErrInvalid, i)
		}
	}
	if err := c.TLS.ValidateServer(); err != nil {
		return fmt.Errorf("%w: tls: %w", ErrInvalid, err)
	}
	return nil
}

func (c FrameConfig) Validate() error {
	if c.SocketPath() == "" && !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("%w: url must be ws://, wss:// or unix://", ErrInvalid)
	}
	if !strings.HasPrefix(c.InitialPath, "/") {
		return fmt.Errorf("%w: initial_path must start with /", ErrInvalid)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_connect_attempts must not be negative", ErrInvalid)
	}
	if strings.HasPrefix(c.URL, "wss://") != c.TLS.Enabled {
		return fmt.Errorf("%w: wss:// url and [tls] enabled must agree", ErrInvalid)
	}
	if err := c.TLS.ValidateClient(); err != nil {
		return fmt.Errorf("%w: tls: %w", ErrInvalid, err)
	}
	return nil
}

// SocketPath returns the unix socket path for a unix:// url, or "".
func (c FrameConfig) SocketPath() string {
	if path, ok := strings.CutPrefix(c.URL, "unix://"); ok {
		return path
	}
	return ""
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

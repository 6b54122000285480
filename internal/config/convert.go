package config

import (
	"github.com/danmuck/framebridge/internal/bridge"
	"github.com/danmuck/framebridge/internal/pathmap"
	"github.com/danmuck/framebridge/internal/router"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/rs/zerolog"
)

func (c HostConfig) BridgeConfig(logger *zerolog.Logger) bridge.Config {
	return bridge.Config{
		LogPrefix:          c.LogPrefix,
		Logger:             logger,
		HandshakeWarnAfter: c.HandshakeWarnAfter,
	}
}

func (c HostConfig) RouteTable() []router.Route {
	out := make([]router.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		out = append(out, router.Route{Name: r.Name, Pattern: r.Pattern})
	}
	return out
}

func (c HostConfig) Mapper() (pathmap.Rules, error) {
	rules := make([]pathmap.Rule, 0, len(c.Mappings))
	for _, m := range c.Mappings {
		rules = append(rules, pathmap.Rule{HostPrefix: m.HostPrefix, ChildPrefix: m.ChildPrefix})
	}
	return pathmap.NewRules(rules...)
}

func (c HostConfig) Trust() window.Trust {
	return window.Trust{AllowedOrigins: c.AllowedOrigins, Token: c.Token}
}

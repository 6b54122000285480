// Package navsync decides when host and embedded frame navigation are
// synchronized and applies the mapped result in either direction.
package navsync

import (
	"errors"
	"strings"

	"github.com/danmuck/framebridge/internal/observability"
	"github.com/danmuck/framebridge/internal/pathmap"
	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/router"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FeatureParentToChild = "parent -> child"
	FeatureChildToParent = "child -> parent"

	DefaultLogPrefix = "[framebridge]"
)

const (
	directionParentToChild = "parent_to_child"
	directionChildToParent = "child_to_parent"

	resultSynced     = "synced"
	resultSkipped    = "skipped"
	resultDeclined   = "declined"
	resultFailed     = "failed"
	resultSuperseded = "superseded"
)

// Navigator is the outbound half of a bridge channel.
type Navigator interface {
	Navigate(protocol.NavigationEvent)
}

// Replacer applies a location patch without adding a history entry.
type Replacer interface {
	Replace(router.LocationPatch) error
}

// Policy carries the diagnostics settings shared by both directions.
// The zero value logs through the global logger with DefaultLogPrefix.
type Policy struct {
	LogPrefix string
	Logger    *zerolog.Logger
}

// ShouldSyncParentToChild reports whether a host transition re-renders
// the same logical screen at a different location. Locations compare by
// FullPath, so a query-only change syncs too. A router guard comparing
// the bare path, as vue-router's to.path does, would skip those.
func ShouldSyncParentToChild(t router.Transition) bool {
	return t.To.Name == t.From.Name && t.To.FullPath() != t.From.FullPath()
}

// OnParentTransition forwards a host transition to the embedded frame
// when it applies. It reports whether a command was issued. A mapper
// declining the location is logged as a warning and is not an error.
func (p Policy) OnParentTransition(t router.Transition, mapper pathmap.Mapper, nav Navigator) bool {
	if !ShouldSyncParentToChild(t) {
		observability.RecordSync(directionParentToChild, resultSkipped)
		return false
	}
	childPath := strings.TrimSpace(mapper.ToChildPath(t.To))
	if childPath == "" {
		p.logger().Warn().
			Str("to", t.To.FullPath()).
			Str("route", t.To.Name).
			Msgf("%s %s: path is not found", p.prefix(), FeatureParentToChild)
		observability.RecordSync(directionParentToChild, resultDeclined)
		return false
	}
	nav.Navigate(protocol.NavigationEvent{Path: childPath})
	p.logger().Debug().
		Str("from", t.From.FullPath()).
		Str("to", t.To.FullPath()).
		Str("child_path", childPath).
		Msgf("%s %s", p.prefix(), FeatureParentToChild)
	observability.RecordSync(directionParentToChild, resultSynced)
	return true
}

// OnChildNavigate maps an embedded frame navigation onto the host with
// replace semantics. A declined mapping is logged and returns nil, as is
// a replace superseded by a newer host navigation; only a failure of the
// host replace itself is returned.
func (p Policy) OnChildNavigate(event protocol.NavigationEvent, mapper pathmap.Mapper, host Replacer) error {
	patch := mapper.ToParentPath(event)
	if patch.IsZero() {
		p.logger().Warn().
			Str("child_path", event.Path).
			Msgf("%s %s: path is not found", p.prefix(), FeatureChildToParent)
		observability.RecordSync(directionChildToParent, resultDeclined)
		return nil
	}
	err := host.Replace(patch)
	if errors.Is(err, router.ErrNavigationSuperseded) {
		p.logger().Debug().
			Str("child_path", event.Path).
			Msgf("%s %s: superseded by a newer host navigation", p.prefix(), FeatureChildToParent)
		observability.RecordSync(directionChildToParent, resultSuperseded)
		return nil
	}
	if err != nil {
		p.logger().Warn().
			Err(err).
			Str("child_path", event.Path).
			Msgf("%s %s: host replace failed", p.prefix(), FeatureChildToParent)
		observability.RecordSync(directionChildToParent, resultFailed)
		return err
	}
	p.logger().Debug().
		Str("child_path", event.Path).
		Str("host_path", patch.Path).
		Str("host_route", patch.Name).
		Msgf("%s %s", p.prefix(), FeatureChildToParent)
	observability.RecordSync(directionChildToParent, resultSynced)
	return nil
}

func (p Policy) prefix() string {
	if v := strings.TrimSpace(p.LogPrefix); v != "" {
		return v
	}
	return DefaultLogPrefix
}

func (p Policy) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return &log.Logger
}

// Package pathmap holds the path mapping contract between the host's
// route locations and the embedded frame's own paths.
package pathmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/router"
)

var (
	ErrMissingMapper = errors.New("pathmap: both toChildPath and toParentPath are required")
	ErrInvalidRule   = errors.New("pathmap: invalid rule")
)

// Mapper translates between host locations and embedded frame paths.
// Implementations are pure: no state, no I/O. ToChildPath returning ""
// declines to sync; ToParentPath returning a zero patch declines too.
type Mapper interface {
	ToChildPath(to router.Location) string
	ToParentPath(event protocol.NavigationEvent) router.LocationPatch
}

// Funcs adapts two integrator-supplied functions into a Mapper.
type Funcs struct {
	Child  func(router.Location) string
	Parent func(protocol.NavigationEvent) router.LocationPatch
}

func New(child func(router.Location) string, parent func(protocol.NavigationEvent) router.LocationPatch) (Funcs, error) {
	if child == nil || parent == nil {
		return Funcs{}, ErrMissingMapper
	}
	return Funcs{Child: child, Parent: parent}, nil
}

func (f Funcs) ToChildPath(to router.Location) string {
	return f.Child(to)
}

func (f Funcs) ToParentPath(event protocol.NavigationEvent) router.LocationPatch {
	return f.Parent(event)
}

// Rule rewrites a host path prefix to a child path prefix and back.
type Rule struct {
	HostPrefix  string
	ChildPrefix string
}

// Rules maps by the first rule whose prefix matches on whole path
// segments: "/doc/" matches "/doc" and "/doc/2" but not "/docs/2".
// Query strings ride along unchanged.
type Rules []Rule

func NewRules(rules ...Rule) (Rules, error) {
	for i, r := range rules {
		if !strings.HasPrefix(r.HostPrefix, "/") || !strings.HasPrefix(r.ChildPrefix, "/") {
			return nil, fmt.Errorf("%w: rule[%d] prefixes must start with /", ErrInvalidRule, i)
		}
	}
	return Rules(rules), nil
}

func (rs Rules) ToChildPath(to router.Location) string {
	full := to.FullPath()
	for _, r := range rs {
		if rest, ok := cutSegments(full, r.HostPrefix); ok {
			return join(r.ChildPrefix, rest)
		}
	}
	return ""
}

func (rs Rules) ToParentPath(event protocol.NavigationEvent) router.LocationPatch {
	for _, r := range rs {
		if rest, ok := cutSegments(event.Path, r.ChildPrefix); ok {
			return router.LocationPatch{Path: join(r.HostPrefix, rest)}
		}
	}
	return router.LocationPatch{}
}

// cutSegments strips prefix from p when the match ends at a segment
// boundary. rest is empty or starts with '/' or '?'.
func cutSegments(p, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(p, strings.TrimSuffix(prefix, "/"))
	if !ok {
		return "", false
	}
	if rest == "" || rest[0] == '/' || rest[0] == '?' {
		return rest, true
	}
	return "", false
}

func join(prefix, rest string) string {
	out := strings.TrimSuffix(prefix, "/") + rest
	if out == "" || out[0] == '?' {
		out = "/" + out
	}
	return out
}

// Package lifecycle binds a bridge channel to a host router for the
// mounted lifetime of one embedded frame.
package lifecycle

import (
	"errors"
	"sync"

	"github.com/danmuck/framebridge/internal/bridge"
	"github.com/danmuck/framebridge/internal/navsync"
	"github.com/danmuck/framebridge/internal/pathmap"
	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/router"
	"github.com/danmuck/framebridge/internal/window"
)

var (
	ErrAlreadyMounted = errors.New("lifecycle: bridge already mounted")
	ErrMissingRouter  = errors.New("lifecycle: host router is required")
)

// FrameRef resolves the embedded frame's window at mount time.
type FrameRef func() window.Window

// HostRouter is the part of the host navigation system a bridge needs.
type HostRouter interface {
	Replace(router.LocationPatch) error
	BeforeUpdate(router.Hook) func()
}

type Options struct {
	// Config is forwarded to bridge.Create as is.
	Config bridge.Config
	Mapper pathmap.Mapper
}

// Bridge is mounted at most once at a time. After Unmount it may be
// mounted again, which creates a fresh channel.
type Bridge struct {
	ref    FrameRef
	host   HostRouter
	mapper pathmap.Mapper
	cfg    bridge.Config
	policy navsync.Policy

	mu      sync.Mutex
	channel *bridge.Channel
	detach  []func()
}

// New validates the integration. A missing mapper is reported here,
// before anything is mounted.
func New(ref FrameRef, host HostRouter, opts Options) (*Bridge, error) {
	if host == nil {
		return nil, ErrMissingRouter
	}
	if opts.Mapper == nil {
		return nil, pathmap.ErrMissingMapper
	}
	if f, ok := opts.Mapper.(pathmap.Funcs); ok && (f.Child == nil || f.Parent == nil) {
		return nil, pathmap.ErrMissingMapper
	}
	return &Bridge{
		ref:    ref,
		host:   host,
		mapper: opts.Mapper,
		cfg:    opts.Config,
		policy: navsync.Policy{LogPrefix: opts.Config.LogPrefix, Logger: opts.Config.Logger},
	}, nil
}

// Mount resolves the frame, creates the channel and wires both sync
// directions.
func (b *Bridge) Mount() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		return ErrAlreadyMounted
	}
	var w window.Window
	if b.ref != nil {
		w = b.ref()
	}
	ch, err := bridge.Create(w, b.cfg)
	if err != nil {
		return err
	}
	b.channel = ch
	b.detach = []func(){
		ch.On(func(event protocol.NavigationEvent) {
			// Errors are already logged by the policy; nothing to retry.
			_ = b.policy.OnChildNavigate(event, b.mapper, b.host)
		}),
		b.host.BeforeUpdate(func(t router.Transition) error {
			b.policy.OnParentTransition(t, b.mapper, ch)
			return nil
		}),
	}
	return nil
}

// Channel returns the mounted channel, or nil.
func (b *Bridge) Channel() *bridge.Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel
}

func (b *Bridge) Mounted() bool {
	return b.Channel() != nil
}

// Unmount detaches the route hook and destroys the channel. Idempotent.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	ch := b.channel
	detach := b.detach
	b.channel = nil
	b.detach = nil
	b.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if ch != nil {
		ch.Destroy()
	}
}

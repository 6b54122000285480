// Package embedded is the embedded document's side of a bridge: it
// answers the host handshake, reports its own navigation to the host
// and applies navigate commands coming from the host.
package embedded

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/framebridge/internal/observability"
	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/protocol/schema"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrHostMissing = errors.New("embedded: host window is missing")
	ErrClosed      = errors.New("embedded: endpoint closed")
)

const DefaultLogPrefix = "[framebridge:embedded]"

type Config struct {
	LogPrefix string
	Logger    *zerolog.Logger
}

// CommandHandler applies a host navigate command to the embedded document.
type CommandHandler func(protocol.NavigationEvent)

type handler struct {
	fn     CommandHandler
	active bool
}

// Endpoint is safe for concurrent use. Command handlers run on the
// window's delivery goroutine.
type Endpoint struct {
	win    window.Window
	prefix string
	log    zerolog.Logger

	mu         sync.Mutex
	channel    uuid.UUID
	seq        uint64
	applying   int
	closed     bool
	handlers   []*handler
	stopListen func()
}

// Attach listens on the window toward the host and announces the
// document with a ready carrying no channel id.
func Attach(w window.Window, cfg Config) (*Endpoint, error) {
	if w == nil {
		return nil, ErrHostMissing
	}
	prefix := strings.TrimSpace(cfg.LogPrefix)
	if prefix == "" {
		prefix = DefaultLogPrefix
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	e := &Endpoint{win: w, prefix: prefix, log: logger}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopListen = w.Listen(e.receive)
	if err := e.postLocked(protocol.Ready(uuid.Nil)); err != nil {
		e.stopListen()
		return nil, err
	}
	return e, nil
}

// Channel returns the adopted channel id, or uuid.Nil before any hello.
func (e *Endpoint) Channel() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel
}

func (e *Endpoint) OnCommand(fn CommandHandler) func() {
	h := &handler{fn: fn, active: true}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !h.active {
			return
		}
		h.active = false
		for i, candidate := range e.handlers {
			if candidate == h {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				break
			}
		}
	}
}

// Notify reports the document's own navigation to the host. It is
// dropped before a channel id has been adopted and while a host command
// is being applied, so host-driven navigation never echoes back.
func (e *Endpoint) Notify(event protocol.NavigationEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.channel == uuid.Nil:
		e.log.Debug().Str("path", event.Path).Msgf("%s no channel yet; notification dropped", e.prefix)
		observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeDropped)
		return nil
	case e.applying > 0:
		e.log.Debug().Str("path", event.Path).Msgf("%s applying host command; notification suppressed", e.prefix)
		return nil
	}
	if err := e.postLocked(protocol.Navigate(e.channel, event)); err != nil {
		return err
	}
	observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeDelivered)
	return nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, h := range e.handlers {
		h.active = false
	}
	e.handlers = nil
	stop := e.stopListen
	e.stopListen = nil
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

func (e *Endpoint) receive(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		e.log.Debug().Err(err).Msgf("%s discarding malformed message", e.prefix)
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	switch msg.Kind {
	case schema.KindHello:
		if msg.Channel != e.channel {
			e.log.Debug().
				Str("channel", msg.Channel.String()).
				Str("previous", e.channel.String()).
				Msgf("%s adopting host channel", e.prefix)
			e.channel = msg.Channel
		}
		if err := e.postLocked(protocol.Ready(e.channel)); err != nil {
			e.log.Warn().Err(err).Msgf("%s ready acknowledgment failed", e.prefix)
		}
		e.mu.Unlock()
	case schema.KindNavigate:
		if msg.Channel != e.channel || e.channel == uuid.Nil {
			e.mu.Unlock()
			observability.RecordMessage(observability.DirectionInbound, "navigate", observability.OutcomeStale)
			return
		}
		handlers := make([]*handler, len(e.handlers))
		copy(handlers, e.handlers)
		e.applying++
		e.mu.Unlock()

		observability.RecordMessage(observability.DirectionInbound, "navigate", observability.OutcomeDelivered)
		e.apply(handlers, msg.Event)

		e.mu.Lock()
		e.applying--
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		e.log.Debug().Str("kind", schema.KindName(msg.Kind)).Msgf("%s ignoring unexpected message kind", e.prefix)
	}
}

func (e *Endpoint) apply(handlers []*handler, event protocol.NavigationEvent) {
	for _, h := range handlers {
		e.mu.Lock()
		active := h.active && !e.closed
		e.mu.Unlock()
		if !active {
			continue
		}
		h.fn(event)
	}
}

func (e *Endpoint) postLocked(msg protocol.Message) error {
	e.seq++
	msg.Sequence = e.seq
	msg.TimestampMS = uint64(time.Now().UnixMilli())
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return e.win.PostMessage(b)
}

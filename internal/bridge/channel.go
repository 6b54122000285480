package bridge

import (
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/danmuck/framebridge/internal/observability"
	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/protocol/schema"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrFrameMissing is returned by Create when the frame reference
// resolves to nothing. It is distinct from a frame that exists but has
// not finished its handshake.
var ErrFrameMissing = errors.New("bridge: embedded frame reference is missing")

// NavigateHandler receives navigation notifications from the embedded frame.
type NavigateHandler func(protocol.NavigationEvent)

type subscriber struct {
	fn     NavigateHandler
	active bool
}

// Channel is the host side of one embedded frame's message channel.
// It is safe for concurrent use; handlers run on the window's delivery
// goroutine, one message at a time.
type Channel struct {
	id        uuid.UUID
	win       window.Window
	prefix    string
	log       zerolog.Logger
	createdAt time.Time

	mu          sync.Mutex
	ready       bool
	destroyed   bool
	seq         uint64
	pending     []protocol.NavigationEvent
	subscribers []*subscriber
	stopListen  func()
	warnTimer   *time.Timer
}

// Create binds a new channel to w and starts the handshake. The window
// is resolved once here and never re-resolved.
func Create(w window.Window, cfg Config) (*Channel, error) {
	if isNil(w) {
		return nil, ErrFrameMissing
	}
	c := &Channel{
		id:        uuid.New(),
		win:       w,
		prefix:    cfg.prefix(),
		createdAt: time.Now(),
	}
	c.log = cfg.logger().With().Str("channel", c.id.String()).Logger()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopListen = w.Listen(c.receive)
	if cfg.HandshakeWarnAfter > 0 {
		c.warnTimer = time.AfterFunc(cfg.HandshakeWarnAfter, c.warnUnready)
	}
	c.postLocked(protocol.Hello(c.id))
	return c, nil
}

func isNil(w window.Window) bool {
	if w == nil {
		return true
	}
	v := reflect.ValueOf(w)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// ID is the channel-scoped identifier carried on every message.
func (c *Channel) ID() uuid.UUID {
	return c.id
}

func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Pending reports how many commands wait for the handshake.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Channel) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// On registers fn for every inbound navigate notification. The returned
// func deregisters it and is safe to call more than once.
func (c *Channel) On(fn NavigateHandler) func() {
	sub := &subscriber{fn: fn, active: true}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		c.log.Warn().Msgf("%s on(navigate) called after destroy", c.prefix)
		return func() {}
	}
	c.subscribers = append(c.subscribers, sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !sub.active {
			return
		}
		sub.active = false
		for i, candidate := range c.subscribers {
			if candidate == sub {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Navigate sends a navigate command to the embedded frame, or queues it
// until the handshake completes. After Destroy it only logs a warning.
func (c *Channel) Navigate(event protocol.NavigationEvent) {
	if err := event.Validate(); err != nil {
		c.log.Warn().Err(err).Msgf("%s navigate rejected", c.prefix)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		c.log.Warn().Str("path", event.Path).Msgf("%s navigate called after destroy; ignored", c.prefix)
		observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeDropped)
		return
	}
	if !c.ready {
		c.pending = append(c.pending, event)
		observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeQueued)
		return
	}
	if c.postLocked(protocol.Navigate(c.id, event)) {
		observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeDelivered)
	}
}

// Destroy tears the channel down: subscribers are dropped, queued
// commands are discarded undelivered and the window listener is
// released. Idempotent, and safe from inside a navigate handler.
func (c *Channel) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	for _, sub := range c.subscribers {
		sub.active = false
	}
	c.subscribers = nil
	c.pending = nil
	if c.warnTimer != nil {
		c.warnTimer.Stop()
	}
	stop := c.stopListen
	c.stopListen = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.log.Debug().Msgf("%s channel destroyed", c.prefix)
}

func (c *Channel) receive(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Debug().Err(err).Msgf("%s discarding malformed message", c.prefix)
		observability.RecordMessage(observability.DirectionInbound, "unknown", observability.OutcomeMalformed)
		return
	}
	kind := schema.KindName(msg.Kind)

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		observability.RecordMessage(observability.DirectionInbound, kind, observability.OutcomeStale)
		return
	}

	if msg.Kind == schema.KindReady && msg.Channel == uuid.Nil {
		// The frame booted (or reloaded) without having seen our hello.
		c.postLocked(protocol.Hello(c.id))
		c.mu.Unlock()
		observability.RecordMessage(observability.DirectionInbound, kind, observability.OutcomeDelivered)
		return
	}
	if msg.Channel != c.id {
		c.mu.Unlock()
		c.log.Debug().Str("kind", kind).Str("from_channel", msg.Channel.String()).Msgf("%s discarding message for another channel", c.prefix)
		observability.RecordMessage(observability.DirectionInbound, kind, observability.OutcomeStale)
		return
	}

	switch msg.Kind {
	case schema.KindReady:
		c.markReadyLocked()
		c.mu.Unlock()
		observability.RecordMessage(observability.DirectionInbound, kind, observability.OutcomeDelivered)
	case schema.KindNavigate:
		subs := make([]*subscriber, len(c.subscribers))
		copy(subs, c.subscribers)
		c.mu.Unlock()
		observability.RecordMessage(observability.DirectionInbound, kind, observability.OutcomeDelivered)
		c.deliver(subs, msg.Event)
	default:
		c.mu.Unlock()
		c.log.Debug().Str("kind", kind).Msgf("%s ignoring unexpected message kind", c.prefix)
	}
}

// deliver invokes each subscriber still active at its turn, so a
// handler that destroys the channel stops the remaining ones.
func (c *Channel) deliver(subs []*subscriber, event protocol.NavigationEvent) {
	for _, sub := range subs {
		c.mu.Lock()
		active := sub.active && !c.destroyed
		c.mu.Unlock()
		if !active {
			continue
		}
		sub.fn(event)
	}
}

func (c *Channel) markReadyLocked() {
	if c.ready {
		return
	}
	c.ready = true
	if c.warnTimer != nil {
		c.warnTimer.Stop()
	}
	observability.RecordHandshake(time.Since(c.createdAt))

	queued := c.pending
	c.pending = nil
	for _, event := range queued {
		if c.postLocked(protocol.Navigate(c.id, event)) {
			observability.RecordMessage(observability.DirectionOutbound, "navigate", observability.OutcomeFlushed)
		}
	}
	c.log.Debug().Int("flushed", len(queued)).Msgf("%s handshake complete", c.prefix)
}

// postLocked stamps and sends one message. Transport failures are
// logged, not retried: the next sync supersedes a lost command.
func (c *Channel) postLocked(msg protocol.Message) bool {
	c.seq++
	msg.Sequence = c.seq
	msg.TimestampMS = uint64(time.Now().UnixMilli())
	b, err := protocol.Encode(msg)
	if err != nil {
		c.log.Warn().Err(err).Msgf("%s cannot encode %s", c.prefix, schema.KindName(msg.Kind))
		return false
	}
	if err := c.win.PostMessage(b); err != nil {
		c.log.Warn().Err(err).Msgf("%s post %s failed", c.prefix, schema.KindName(msg.Kind))
		observability.RecordMessage(observability.DirectionOutbound, schema.KindName(msg.Kind), observability.OutcomeFailed)
		return false
	}
	return true
}

func (c *Channel) warnUnready() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready || c.destroyed {
		return
	}
	c.log.Warn().
		Int("pending", len(c.pending)).
		Dur("since_create", time.Since(c.createdAt)).
		Msgf("%s embedded frame has not completed the handshake; commands remain queued", c.prefix)
}

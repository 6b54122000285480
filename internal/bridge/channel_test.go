package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/framebridge/internal/protocol"
	"github.com/danmuck/framebridge/internal/protocol/schema"
	"github.com/danmuck/framebridge/internal/testutil/testlog"
	"github.com/danmuck/framebridge/internal/testutil/wait"
	"github.com/danmuck/framebridge/internal/window"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeFrame plays the embedded document at the raw protocol level.
type fakeFrame struct {
	end *window.PipeEnd
	mu  sync.Mutex
	got []protocol.Message
}

func newFakeFrame(end *window.PipeEnd) *fakeFrame {
	f := &fakeFrame{end: end}
	end.Listen(func(b []byte) {
		m, err := protocol.Decode(b)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.got = append(f.got, m)
		f.mu.Unlock()
	})
	return f
}

func (f *fakeFrame) messages(kind uint32) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, 0)
	for _, m := range f.got {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeFrame) paths() []string {
	out := make([]string, 0)
	for _, m := range f.messages(schema.KindNavigate) {
		out = append(out, m.Event.Path)
	}
	return out
}

func (f *fakeFrame) send(t *testing.T, m protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("encode %s: %v", schema.KindName(m.Kind), err)
	}
	if err := f.end.PostMessage(b); err != nil {
		t.Fatalf("post: %v", err)
	}
}

func newPair(t *testing.T) (*window.PipeEnd, *fakeFrame) {
	t.Helper()
	host, child := window.NewPipe()
	t.Cleanup(func() {
		host.Close()
		child.Close()
	})
	return host, newFakeFrame(child)
}

func quietConfig() Config {
	logger := zerolog.Nop()
	return Config{Logger: &logger}
}

func TestCreateRejectsMissingFrame(t *testing.T) {
	testlog.Start(t)
	if _, err := Create(nil, quietConfig()); !errors.Is(err, ErrFrameMissing) {
		t.Fatalf("expected ErrFrameMissing for nil window, got %v", err)
	}
	var typedNil *window.PipeEnd
	if _, err := Create(typedNil, quietConfig()); !errors.Is(err, ErrFrameMissing) {
		t.Fatalf("expected ErrFrameMissing for typed nil window, got %v", err)
	}
}

func TestCreateSendsHello(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()
	wait.Until(t, "hello", func() bool { return len(frame.messages(schema.KindHello)) == 1 })
	if got := frame.messages(schema.KindHello)[0].Channel; got != c.ID() {
		t.Fatalf("hello carries %s, want %s", got, c.ID())
	}
	if c.Ready() {
		t.Fatalf("channel must not be ready before acknowledgment")
	}
}

func TestQueuedCommandsFlushInOrderAfterReady(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()

	want := []string{"/page/1", "/page/2", "/page/3", "/page/2"}
	for _, p := range want {
		c.Navigate(protocol.NavigationEvent{Path: p})
	}
	if c.Pending() != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), c.Pending())
	}
	wait.Never(t, "navigate before ready", 30*time.Millisecond, func() bool {
		return len(frame.paths()) > 0
	})

	frame.send(t, protocol.Ready(c.ID()))
	wait.Until(t, "flushed commands", func() bool { return len(frame.paths()) == len(want) })
	for i, p := range frame.paths() {
		if p != want[i] {
			t.Fatalf("command %d: got %s want %s", i, p, want[i])
		}
	}
	if !c.Ready() || c.Pending() != 0 {
		t.Fatalf("expected ready with empty queue: ready=%v pending=%d", c.Ready(), c.Pending())
	}

	c.Navigate(protocol.NavigationEvent{Path: "/page/9"})
	wait.Until(t, "direct command", func() bool { return len(frame.paths()) == len(want)+1 })

	// A duplicate acknowledgment must not re-flush anything.
	frame.send(t, protocol.Ready(c.ID()))
	wait.Never(t, "duplicate flush", 30*time.Millisecond, func() bool {
		return len(frame.paths()) != len(want)+1
	})
}

func TestFrameBootingLateReceivesHelloAgain(t *testing.T) {
	testlog.Start(t)
	host, child := window.NewPipe()
	defer host.Close()
	defer child.Close()

	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()
	c.Navigate(protocol.NavigationEvent{Path: "/page/1"})

	// The first hello went nowhere: the frame had no listener yet.
	time.Sleep(20 * time.Millisecond)
	frame := newFakeFrame(child)
	frame.send(t, protocol.Ready(uuid.Nil))

	wait.Until(t, "second hello", func() bool { return len(frame.messages(schema.KindHello)) == 1 })
	if c.Ready() {
		t.Fatalf("boot announcement must not complete the handshake")
	}
	frame.send(t, protocol.Ready(frame.messages(schema.KindHello)[0].Channel))
	wait.Until(t, "flushed command", func() bool { return len(frame.paths()) == 1 })
}

func TestInboundNavigateDeliveredInOrder(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()

	var mu sync.Mutex
	var first, second []string
	c.On(func(e protocol.NavigationEvent) {
		mu.Lock()
		first = append(first, e.Path)
		mu.Unlock()
	})
	unsubscribe := c.On(func(e protocol.NavigationEvent) {
		mu.Lock()
		second = append(second, e.Path)
		mu.Unlock()
	})

	frame.send(t, protocol.Ready(c.ID()))
	for _, p := range []string{"/page/1", "/page/2", "/page/3"} {
		frame.send(t, protocol.Navigate(c.ID(), protocol.NavigationEvent{Path: p}))
	}
	wait.Until(t, "three notifications", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 3
	})
	mu.Lock()
	if first[0] != "/page/1" || first[1] != "/page/2" || first[2] != "/page/3" {
		t.Fatalf("out of order: %v", first)
	}
	if len(second) != 3 {
		t.Fatalf("second subscriber saw %d", len(second))
	}
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	frame.send(t, protocol.Navigate(c.ID(), protocol.NavigationEvent{Path: "/page/4"}))
	wait.Until(t, "fourth notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 4
	})
	mu.Lock()
	defer mu.Unlock()
	if len(second) != 3 {
		t.Fatalf("unsubscribed handler still invoked")
	}
}

func TestStaleAndForeignMessagesDiscarded(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)

	old, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create old: %v", err)
	}
	oldID := old.ID()
	old.Destroy()

	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()

	var mu sync.Mutex
	var got []string
	c.On(func(e protocol.NavigationEvent) {
		mu.Lock()
		got = append(got, e.Path)
		mu.Unlock()
	})

	frame.send(t, protocol.Ready(oldID))
	frame.send(t, protocol.Navigate(oldID, protocol.NavigationEvent{Path: "/stale"}))
	frame.send(t, protocol.Navigate(uuid.New(), protocol.NavigationEvent{Path: "/foreign"}))
	frame.send(t, protocol.Navigate(c.ID(), protocol.NavigationEvent{Path: "/mine"}))

	wait.Until(t, "own notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "/mine" {
		t.Fatalf("unexpected delivery: %v", got)
	}
	if c.Ready() {
		t.Fatalf("ready for a superseded channel must not complete this handshake")
	}
}

func TestMalformedMessagesIgnored(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()
	if err := frame.end.PostMessage([]byte("not a frame")); err != nil {
		t.Fatalf("post: %v", err)
	}
	frame.send(t, protocol.Ready(c.ID()))
	wait.Until(t, "ready after garbage", c.Ready)
}

func TestDestroyFromHandlerStopsFurtherDelivery(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	laterCalls := 0
	c.On(func(protocol.NavigationEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
		c.Destroy()
		c.Destroy()
	})
	c.On(func(protocol.NavigationEvent) {
		mu.Lock()
		laterCalls++
		mu.Unlock()
	})

	frame.send(t, protocol.Ready(c.ID()))
	frame.send(t, protocol.Navigate(c.ID(), protocol.NavigationEvent{Path: "/page/1"}))
	frame.send(t, protocol.Navigate(c.ID(), protocol.NavigationEvent{Path: "/page/2"}))

	wait.Until(t, "destroy", c.Destroyed)
	wait.Never(t, "handler after destroy", 40*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls != 1 || laterCalls != 0
	})
}

func TestNavigateAfterDestroyWarnsAndSendsNothing(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	capture := testlog.NewCapture()
	logger := capture.Logger()
	c, err := Create(host, Config{Logger: &logger})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	frame.send(t, protocol.Ready(c.ID()))
	wait.Until(t, "ready", c.Ready)

	c.Destroy()
	c.Navigate(protocol.NavigationEvent{Path: "/page/1"})
	if n := len(capture.Lines(zerolog.WarnLevel)); n != 1 {
		t.Fatalf("expected one warning, got %d", n)
	}
	wait.Never(t, "navigate after destroy", 30*time.Millisecond, func() bool {
		return len(frame.paths()) > 0
	})
}

func TestDestroyDiscardsQueue(t *testing.T) {
	testlog.Start(t)
	host, frame := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Navigate(protocol.NavigationEvent{Path: "/page/1"})
	c.Navigate(protocol.NavigationEvent{Path: "/page/2"})
	c.Destroy()
	if c.Pending() != 0 {
		t.Fatalf("queue not cleared: %d", c.Pending())
	}
	frame.send(t, protocol.Ready(c.ID()))
	wait.Never(t, "flush after destroy", 30*time.Millisecond, func() bool {
		return len(frame.paths()) > 0
	})
	if c.Ready() {
		t.Fatalf("destroyed channel must not become ready")
	}
}

func TestHandshakeWarningIsEmittedOnce(t *testing.T) {
	testlog.Start(t)
	host, _ := newPair(t)
	capture := testlog.NewCapture()
	logger := capture.Logger()
	c, err := Create(host, Config{Logger: &logger, HandshakeWarnAfter: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()
	c.Navigate(protocol.NavigationEvent{Path: "/page/1"})

	wait.Until(t, "handshake warning", func() bool { return len(capture.Lines(zerolog.WarnLevel)) == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := len(capture.Lines(zerolog.WarnLevel)); n != 1 {
		t.Fatalf("expected exactly one warning, got %d", n)
	}
	if c.Pending() != 1 {
		t.Fatalf("queue must survive the warning")
	}
}

func TestInvalidNavigateIsRejected(t *testing.T) {
	testlog.Start(t)
	host, _ := newPair(t)
	c, err := Create(host, quietConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer c.Destroy()
	c.Navigate(protocol.NavigationEvent{})
	if c.Pending() != 0 {
		t.Fatalf("empty path must not be queued")
	}
}

func TestIndependentChannelsCoexist(t *testing.T) {
	testlog.Start(t)
	hostA, frameA := newPair(t)
	hostB, frameB := newPair(t)
	a, err := Create(hostA, quietConfig())
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	defer a.Destroy()
	b, err := Create(hostB, quietConfig())
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	defer b.Destroy()

	a.Navigate(protocol.NavigationEvent{Path: "/a"})
	b.Navigate(protocol.NavigationEvent{Path: "/b"})
	frameA.send(t, protocol.Ready(a.ID()))

	wait.Until(t, "frame a command", func() bool { return len(frameA.paths()) == 1 })
	if b.Ready() || b.Pending() != 1 {
		t.Fatalf("channel b affected by channel a's handshake")
	}
	frameB.send(t, protocol.Ready(b.ID()))
	wait.Until(t, "frame b command", func() bool { return len(frameB.paths()) == 1 })
	if frameB.paths()[0] != "/b" {
		t.Fatalf("unexpected command on frame b: %v", frameB.paths())
	}
}

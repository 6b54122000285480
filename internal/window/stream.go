package window

import (
	"errors"
	"io"
	"sync"

	"github.com/danmuck/framebridge/internal/protocol/frame"
	"github.com/rs/zerolog"
)

// Stream adapts a byte stream (unix socket, TCP, stdio pipe) into a
// Window. Message boundaries come from the frame header.
type Stream struct {
	rwc       io.ReadWriteCloser
	log       zerolog.Logger
	listeners listeners

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func NewStream(rwc io.ReadWriteCloser, logger zerolog.Logger) *Stream {
	s := &Stream{
		rwc:  rwc,
		log:  logger.With().Str("window", "stream").Logger(),
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Stream) PostMessage(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.rwc.Write(data)
	return err
}

func (s *Stream) Listen(fn func([]byte)) func() {
	return s.listeners.add(fn)
}

// Done is closed once the stream stops reading.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports why reading stopped; nil after a clean EOF or Close.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rwc.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer s.listeners.clear()
	limits := frame.DefaultLimits()
	for {
		f, err := frame.ReadFrame(s.rwc, limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.errMu.Lock()
				s.err = err
				s.errMu.Unlock()
				s.log.Debug().Err(err).Msg("stream read stopped")
			}
			_ = s.Close()
			return
		}
		b, err := frame.Encode(f, limits)
		if err != nil {
			continue
		}
		s.listeners.dispatch(b)
	}
}

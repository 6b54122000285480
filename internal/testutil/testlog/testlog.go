package testlog

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/framebridge/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test=%s", t.Name())
}

// Capture records JSON log lines so tests can assert on diagnostics.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Logger returns a debug-level logger writing into the capture.
func (c *Capture) Logger() zerolog.Logger {
	return zerolog.New(c).Level(zerolog.DebugLevel)
}

// Lines returns captured lines whose level matches.
func (c *Capture) Lines(level zerolog.Level) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	needle := `"level":"` + level.String() + `"`
	out := make([]string, 0)
	for _, line := range strings.Split(c.buf.String(), "\n") {
		if strings.Contains(line, needle) {
			out = append(out, line)
		}
	}
	return out
}

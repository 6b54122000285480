package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/framebridge/internal/router"
)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  push <path>     navigate the host, adding a history entry
  replace <path>  navigate the host in place
  back            return to the previous history entry
  show            print the current location and history
  quit            stop the host
`

// runConsole drives host navigation from line commands until in is
// exhausted, ctx ends or "quit" is read.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, host *router.Router) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, consoleHelp)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		err := execute(strings.Fields(scanner.Text()), out, host)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func execute(fields []string, out io.Writer, host *router.Router) error {
	if len(fields) == 0 {
		return nil
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "push", "replace":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <path>", cmd)
		}
		patch := router.LocationPatch{Path: fields[1]}
		if cmd == "push" {
			return host.Push(patch)
		}
		return host.Replace(patch)
	case "back":
		return host.Back()
	case "show":
		cur := host.Current()
		fmt.Fprintf(out, "current: %s (route %q)\n", cur.FullPath(), cur.Name)
		for i, entry := range host.Entries() {
			fmt.Fprintf(out, "  %d: %s\n", i, entry.FullPath())
		}
		return nil
	case "help":
		fmt.Fprint(out, consoleHelp)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

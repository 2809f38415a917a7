package display

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Controller is the part of the monitor the console commands drive.
type Controller interface {
	RequestKill(itemID string) error
	RequestKillPID(pid int) error
	RequestKillAll() error
	MarkInteraction()
}

// ErrQuit is returned by ReadCommands when the user asked to quit.
var ErrQuit = errors.New("quit")

const help = "commands: k <id> kill item, p <pid> kill pid, a kill all, q quit"

// ReadCommands reads one command per line from in until EOF, quit or ctx
// cancellation. Replies go to out.
func ReadCommands(ctx context.Context, in io.Reader, out io.Writer, c Controller) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := Execute(line, out, c); errors.Is(err, ErrQuit) {
				return ErrQuit
			}
		}
	}
}

// Execute runs one command line.
func Execute(line string, out io.Writer, c Controller) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.MarkInteraction()
		return nil
	}
	var err error
	switch fields[0] {
	case "k", "kill":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: k <id>")
			break
		}
		err = c.RequestKill(fields[1])
	case "p", "pid":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: p <pid>")
			break
		}
		pid, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			err = fmt.Errorf("invalid pid %q", fields[1])
			break
		}
		err = c.RequestKillPID(pid)
	case "a", "all":
		err = c.RequestKillAll()
	case "q", "quit", "exit":
		return ErrQuit
	default:
		c.MarkInteraction()
		fmt.Fprintln(out, help)
		return nil
	}
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return err
	}
	fmt.Fprintln(out, "kill requested")
	return nil
}

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"distfs/internal/dfserrors"
	"distfs/internal/logging"
)

// Shell runs the line-oriented command loop of spec section 6: read a
// line, parse it into a Command, run it against the current Session,
// print the result or a warning, repeat until "quit" or EOF.
type Shell struct {
	Session *Session
	In      io.Reader
	Out     io.Writer
	Log     *slog.Logger
}

func NewShell(session *Session, in io.Reader, out io.Writer, log *slog.Logger) *Shell {
	return &Shell{Session: session, In: in, Out: out, Log: logging.Default(log).With("component", "client.shell")}
}

// Run reads commands until "quit", EOF, or ctx is canceled. A command
// that fails with a *dfserrors.Fault is reported as a warning line and
// the loop continues, matching the original system's
// "log and keep going" policy (spec section 7); any other error also
// continues the loop, since a network blip on one command should not
// end the session.
func (sh *Shell) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(sh.In)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "quit" {
			return nil
		}
		cmd, err := Parse(line)
		if err != nil {
			sh.reportError(err)
			continue
		}
		if cmd == nil {
			continue
		}
		result, err := cmd.Run(ctx, sh.Session)
		if err != nil {
			sh.reportError(err)
			continue
		}
		if result != "" {
			fmt.Fprintln(sh.Out, result)
		}
	}
	return scanner.Err()
}

func (sh *Shell) reportError(err error) {
	var fault *dfserrors.Fault
	if errors.As(err, &fault) {
		sh.Log.Warn(fault.Error(), "kind", fault.Kind)
		return
	}
	sh.Log.Warn("command failed", "error", err)
}

package sidefx

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Announcer speaks the event label by running an external text-to-speech command.
//
// Command is split on whitespace; the text is appended as the last argument, or
// substituted for a "{}" placeholder.
type Announcer struct {
	Command string
	Timeout time.Duration

	// Text builds what is spoken. Defaults to the label.
	Text func(ev *Event) string
}

func (a *Announcer) Name() string {
	return "announce"
}

func (a *Announcer) Do(ctx context.Context, ev *Event) error {
	fields := strings.Fields(a.Command)
	if len(fields) == 0 {
		return nil
	}

	text := ev.Label
	if a.Text != nil {
		text = a.Text(ev)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], announceArgs(fields[1:], text)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "'%s' failed: %s", fields[0], strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *Announcer) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 10 * time.Second
	}
	return a.Timeout
}

func announceArgs(args []string, text string) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, arg := range args {
		if arg == "{}" {
			out = append(out, text)
			substituted = true
			continue
		}
		out = append(out, arg)
	}

	if !substituted {
		out = append(out, text)
	}
	return out
}

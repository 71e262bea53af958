package messenger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Console prints every delivery to a writer.
// On a terminal, string payloads are rendered as markdown and roles are coloured.
type Console struct {
	*Templates

	mu     sync.Mutex
	out    io.Writer
	rich   bool
	render func(string) (string, error)
	output *termenv.Output
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithWriter sets the destination. Defaults to os.Stdout.
func WithWriter(w io.Writer) ConsoleOption {
	return func(c *Console) {
		c.out = w
	}
}

// WithRich forces markdown rendering and colours on or off.
func WithRich(rich bool) ConsoleOption {
	return func(c *Console) {
		c.rich = rich
	}
}

// NewConsole creates a Console. Rich output is on when the writer is a terminal.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		Templates: NewTemplates(),
		out:       os.Stdout,
	}
	if f, ok := c.out.(*os.File); ok {
		c.rich = term.IsTerminal(int(f.Fd()))
	}
	for _, opt := range opts {
		opt(c)
	}

	c.output = termenv.NewOutput(c.out)
	if c.rich {
		if render, err := tui.NewRenderer(); err == nil {
			c.render = render
		}
	}
	return c
}

// Send prints the message registered under key, addressed to roles.
func (c *Console) Send(ctx context.Context, key string, roles []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := c.Lookup(key)
	if err != nil {
		return err
	}

	body, err := c.body(payload)
	if err != nil {
		return fmt.Errorf("failed to render message '%s': %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintf(c.out, "%s %s\n%s\n", c.header(key), c.recipients(roles), strings.TrimRight(body, "\n"))
	return err
}

func (c *Console) header(key string) string {
	label := "[" + key + "]"
	if !c.rich {
		return label
	}
	return c.output.String(label).Bold().String()
}

func (c *Console) recipients(roles []string) string {
	if len(roles) == 0 {
		return "-> (nobody)"
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		if c.rich {
			parts[i] = c.output.String("@" + r).Foreground(c.output.Color("#a78bfa")).String()
		} else {
			parts[i] = "@" + r
		}
	}
	return "-> " + strings.Join(parts, ", ")
}

func (c *Console) body(payload any) (string, error) {
	switch p := payload.(type) {
	case string:
		if c.render != nil {
			return c.render(p)
		}
		return p, nil
	case fmt.Stringer:
		return p.String(), nil
	default:
		out, err := yaml.Marshal(p)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

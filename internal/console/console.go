// Package console is a line-oriented adapter: every input line is one
// command, replies go to the output writer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/keshon/chatkernel/internal/kernel"
	"github.com/keshon/chatkernel/pkg/cmd"
)

const source = "console"

// Dispatcher runs one command. *kernel.Kernel implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, c *cmd.Context) error
}

type Console struct {
	in     io.Reader
	out    io.Writer
	outMu  sync.Mutex
	d      Dispatcher
	prefix string
	user   string
	admin  bool
}

type Option func(*Console)

// WithPrefix accepts lines starting with prefix. Bare lines are accepted
// either way.
func WithPrefix(p string) Option {
	return func(c *Console) { c.prefix = p }
}

// WithUser sets the invoker identity. The console user is admin by default.
func WithUser(name string, admin bool) Option {
	return func(c *Console) {
		c.user = name
		c.admin = admin
	}
}

func New(in io.Reader, out io.Writer, d Dispatcher, opts ...Option) *Console {
	c := &Console{in: in, out: out, d: d, user: "operator", admin: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads lines until EOF, "quit" or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	c.print("> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			line = strings.TrimSpace(line)
			if line == "quit" || line == "exit" {
				return nil
			}
			if line != "" {
				c.Handle(ctx, line)
			}
			c.print("> ")
		}
	}
}

// Handle dispatches one line and prints the reply or rendered error.
func (c *Console) Handle(ctx context.Context, line string) {
	text := strings.TrimPrefix(strings.TrimSpace(line), c.prefix)
	name, args, ok := cmd.Parse("", text)
	if !ok {
		return
	}
	cc := &cmd.Context{
		InvokerID:   c.user,
		InvokerName: c.user,
		ChatID:      source,
		Source:      source,
		Text:        line,
		Args:        args,
		IsAdmin:     c.admin,
		Replier: cmd.ReplyFunc(func(_ context.Context, text string) error {
			c.print(text + "\n")
			return nil
		}),
	}
	err := c.d.Dispatch(ctx, name, cc)
	if msg, ok := kernel.Present(err); ok {
		c.print(msg + "\n")
	} else if err != nil && cmd.KindOf(err) == cmd.KindNotFound {
		c.print(fmt.Sprintf("unknown command %q\n", name))
	}
}

func (c *Console) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = io.WriteString(c.out, s)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand(os.Stdin).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERR", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(in io.Reader) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "kv-cli",
		Short:         "Talk to the KV store and Queue servers",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `Without arguments kv-cli reads commands from stdin, one per line:

  kv put <domain> <key> <value> [ttl]
  kv get <domain> <key>
  queue enqueue <queue> <item>
  queue dequeue <queue>

Values that parse as JSON are sent as JSON, anything else as a string.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.out = cmd.OutOrStdout()
			defer c.close()
			return c.repl(cmd.Context(), in)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.kvAddr, "kv-addr", config.DefaultKVListen, "KV server address")
	flags.StringVar(&c.queueAddr, "queue-addr", config.DefaultQueueListen, "Queue server address")
	flags.StringVar(&c.token, "token", "", "token sent with every request")
	flags.DurationVar(&c.timeout, "timeout", 0, "per-request timeout (0 waits indefinitely)")

	root.AddCommand(
		serviceCommand(c, "kv", "KV store commands", kvCommands),
		serviceCommand(c, "queue", "Queue commands", queueCommands),
	)
	return root
}

func serviceCommand(c *cli, service, short string, table map[string]command) *cobra.Command {
	parent := &cobra.Command{Use: service, Short: short}
	for name, def := range table {
		parent.AddCommand(&cobra.Command{
			Use:   strings.TrimSpace(name + " " + def.usage),
			Short: def.short,
			Args:  cobra.RangeArgs(def.minArgs, def.maxArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				c.out = cmd.OutOrStdout()
				defer c.close()
				return c.exec(cmd.Context(), service, name, args)
			},
		})
	}
	return parent
}

func (c *cli) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "quit") || strings.EqualFold(args[0], "exit") {
			return nil
		}
		if len(args) < 2 {
			fmt.Fprintln(c.out, "ERR usage: <kv|queue> <command> [args...]")
			continue
		}
		if err := c.exec(ctx, strings.ToLower(args[0]), strings.ToLower(args[1]), args[2:]); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(c.out, "ERR", err)
		}
	}
}

func (c *cli) exec(ctx context.Context, service, name string, args []string) error {
	var table map[string]command
	switch service {
	case "kv":
		table = kvCommands
	case "queue":
		table = queueCommands
	default:
		return fmt.Errorf("unknown service %q", service)
	}
	def, ok := table[name]
	if !ok {
		return fmt.Errorf("unknown %s command %q", service, name)
	}
	if len(args) < def.minArgs || len(args) > def.maxArgs {
		return fmt.Errorf("usage: %s %s %s", service, name, def.usage)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return def.run(ctx, c, args)
}

type cli struct {
	kvAddr    string
	queueAddr string
	token     string
	timeout   time.Duration
	out       io.Writer

	kv    *client.KV
	queue *client.Queue
}

func (c *cli) kvClient(ctx context.Context) (*client.KV, error) {
	if c.kv == nil {
		kv, err := client.NewKV(ctx, c.kvAddr, client.WithToken(c.token))
		if err != nil {
			return nil, err
		}
		c.kv = kv
	}
	return c.kv, nil
}

func (c *cli) queueClient(ctx context.Context) (*client.Queue, error) {
	if c.queue == nil {
		q, err := client.NewQueue(ctx, c.queueAddr, client.WithToken(c.token))
		if err != nil {
			return nil, err
		}
		c.queue = q
	}
	return c.queue, nil
}

func (c *cli) close() {
	if c.kv != nil {
		_ = c.kv.Close()
		c.kv = nil
	}
	if c.queue != nil {
		_ = c.queue.Close()
		c.queue = nil
	}
}

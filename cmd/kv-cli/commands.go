package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/loganszeto/sharedstate/internal/protocol"
)

type command struct {
	usage   string
	short   string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, c *cli, args []string) error
}

var kvCommands = map[string]command{
	"ping": {short: "print the server clock", run: func(ctx context.Context, c *cli, _ []string) error {
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		now, err := kv.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, now.UTC().Format(time.RFC3339))
		return nil
	}},
	"put": {usage: "<domain> <key> <value> [ttl]", short: "store a value", minArgs: 3, maxArgs: 4, run: func(ctx context.Context, c *cli, args []string) error {
		var ttl time.Duration
		if len(args) == 4 {
			var err error
			if ttl, err = parseTTL(args[3]); err != nil {
				return err
			}
		}
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		if err := kv.Put(ctx, args[0], args[1], parseValue(args[2]), ttl); err != nil {
			return err
		}
		fmt.Fprintln(c.out, protocol.ReplyOK)
		return nil
	}},
	"get": {usage: "<domain> <key>", short: "read a value", minArgs: 2, maxArgs: 2, run: func(ctx context.Context, c *cli, args []string) error {
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		v, ok, err := kv.Get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printBlob(c, v, ok)
		return nil
	}},
	"has": {usage: "<domain> <key>", short: "check whether a key exists", minArgs: 2, maxArgs: 2, run: func(ctx context.Context, c *cli, args []string) error {
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		ok, err := kv.Has(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printBool(c, ok)
		return nil
	}},
	"del": {usage: "<domain> <key>", short: "delete a key", minArgs: 2, maxArgs: 2, run: func(ctx context.Context, c *cli, args []string) error {
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		ok, err := kv.Del(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printBool(c, ok)
		return nil
	}},
	"delall": {usage: "<domain>", short: "delete every key of a domain", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *cli, args []string) error {
		kv, err := c.kvClient(ctx)
		if err != nil {
			return err
		}
		if err := kv.DelAll(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(c.out, protocol.ReplyOK)
		return nil
	}},
}

var queueCommands = map[string]command{
	"ping": {short: "print the server clock", run: func(ctx context.Context, c *cli, _ []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		now, err := q.Ping(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, now.UTC().Format(time.RFC3339))
		return nil
	}},
	"enqueue": {usage: "<queue> <item>", short: "append an item", minArgs: 2, maxArgs: 2, run: func(ctx context.Context, c *cli, args []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		if err := q.Enqueue(ctx, args[0], parseValue(args[1])); err != nil {
			return err
		}
		fmt.Fprintln(c.out, protocol.ReplyOK)
		return nil
	}},
	"dequeue": {usage: "<queue>", short: "pop the head item", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *cli, args []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		item, ok, err := q.Dequeue(ctx, args[0])
		if err != nil {
			return err
		}
		printBlob(c, item, ok)
		return nil
	}},
	"size": {usage: "<queue>", short: "print the queue length", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *cli, args []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		n, err := q.Size(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, n)
		return nil
	}},
	"delete": {usage: "<queue>", short: "drop a queue", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *cli, args []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		ok, err := q.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		printBool(c, ok)
		return nil
	}},
	"stats": {short: "print queue statistics", run: func(ctx context.Context, c *cli, _ []string) error {
		q, err := c.queueClient(ctx)
		if err != nil {
			return err
		}
		report, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, string(data))
		return nil
	}},
}

// parseValue sends valid JSON as-is and anything else as a JSON string.
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return protocol.Blob(arg)
	}
	return arg
}

// parseTTL accepts a Go duration or a plain number of seconds.
func parseTTL(arg string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q", arg)
	}
	return d, nil
}

func printBlob(c *cli, b protocol.Blob, ok bool) {
	if !ok {
		fmt.Fprintln(c.out, "(nil)")
		return
	}
	fmt.Fprintln(c.out, string(b))
}

func printBool(c *cli, ok bool) {
	if ok {
		fmt.Fprintln(c.out, protocol.ReplyOK)
		return
	}
	fmt.Fprintln(c.out, protocol.ReplyNOK)
}

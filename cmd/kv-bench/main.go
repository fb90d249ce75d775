package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/config"
)

type options struct {
	addr      string
	token     string
	domain    string
	clients   int
	ops       int
	ratioGet  float64
	valueSize string
	keys      int
	ttl       time.Duration
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("kv-bench", pflag.ExitOnError)
	fs.StringVar(&opts.addr, "addr", config.DefaultKVListen, "KV server address")
	fs.StringVar(&opts.token, "token", "", "token sent with every request")
	fs.StringVar(&opts.domain, "domain", "bench", "domain used for all keys")
	fs.IntVar(&opts.clients, "clients", 10, "concurrent connections")
	fs.IntVar(&opts.ops, "ops", 10000, "total operations")
	fs.Float64Var(&opts.ratioGet, "ratio-get", 0.8, "fraction of operations that are GET")
	fs.StringVar(&opts.valueSize, "value-size", "128B", "size of each PUT value")
	fs.IntVar(&opts.keys, "keys", 1000, "distinct keys")
	fs.DurationVar(&opts.ttl, "ttl", 0, "ttl of each PUT (0 never expires)")
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kv-bench:", err)
		stop()
		os.Exit(1)
	}
}

type result struct {
	ops     int64
	elapsed time.Duration
	lats    []time.Duration
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.clients <= 0 || opts.ops <= 0 || opts.keys <= 0 {
		return fmt.Errorf("clients, ops and keys must be > 0")
	}
	size, err := humanize.ParseBytes(opts.valueSize)
	if err != nil {
		return fmt.Errorf("value-size: %w", err)
	}
	res, err := bench(ctx, opts, strings.Repeat("x", int(size)))
	if err != nil {
		return err
	}
	report(out, opts, size, res)
	return nil
}

func bench(ctx context.Context, opts options, value string) (result, error) {
	keys := make([]string, opts.keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key:%d", i)
	}

	var next atomic.Int64
	perWorker := make([][]time.Duration, opts.clients)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := 0; i < opts.clients; i++ {
		g.Go(func() error {
			kv, err := client.NewKV(gctx, opts.addr, client.WithToken(opts.token))
			if err != nil {
				return err
			}
			defer kv.Close()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
			for {
				if next.Add(1) > int64(opts.ops) {
					return nil
				}
				key := keys[rng.Intn(len(keys))]
				began := time.Now()
				if rng.Float64() < opts.ratioGet {
					_, _, err = kv.Get(gctx, opts.domain, key)
				} else {
					err = kv.Put(gctx, opts.domain, key, value, opts.ttl)
				}
				if err != nil {
					return err
				}
				perWorker[i] = append(perWorker[i], time.Since(began))
			}
		})
	}
	err := g.Wait()
	res := result{elapsed: time.Since(start)}
	for _, lats := range perWorker {
		res.lats = append(res.lats, lats...)
	}
	res.ops = int64(len(res.lats))
	return res, err
}

func report(out io.Writer, opts options, size uint64, res result) {
	fmt.Fprintf(out, "Clients: %d\n", opts.clients)
	fmt.Fprintf(out, "Value size: %s\n", humanize.IBytes(size))
	fmt.Fprintf(out, "Total ops: %s\n", humanize.Comma(res.ops))
	fmt.Fprintf(out, "Elapsed: %s\n", res.elapsed)
	if res.elapsed > 0 {
		fmt.Fprintf(out, "Ops/sec: %s\n", humanize.CommafWithDigits(float64(res.ops)/res.elapsed.Seconds(), 2))
	}
	if len(res.lats) == 0 {
		fmt.Fprintln(out, "No latency samples")
		return
	}
	slices.Sort(res.lats)
	for _, p := range []int{50, 95, 99} {
		fmt.Fprintf(out, "p%d: %s\n", p, res.lats[len(res.lats)*p/100])
	}
}

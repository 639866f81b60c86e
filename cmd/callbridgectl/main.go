package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/status"

	"github.com/sebas/callbridge/services/callbridge/transport"
)

const usage = `usage: callbridgectl [flags] <command>

commands:
  invoke <method> [key=value ...]   run a bridge command and print its result
  events [filter]                   print events until interrupted

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := transport.DefaultClientConfig()

	flags := flag.NewFlagSet("callbridgectl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	addr := flags.String("addr", defaults.Address, "callbridge gRPC address")
	timeout := flags.Duration("timeout", 10*time.Second, "timeout for invoke")
	rawArgs := flags.String("args", "", "JSON object of arguments, merged under key=value pairs")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	cfg := defaults
	cfg.Address = *addr
	client, err := transport.Dial(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := flags.Args()[1:]
	switch flags.Arg(0) {
	case "invoke":
		if len(rest) == 0 {
			fmt.Fprintln(stderr, "invoke: method required")
			return 2
		}
		callArgs, err := parseArgs(*rawArgs, rest[1:])
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		return invoke(ctx, client, rest[0], callArgs, stdout, stderr)
	case "events":
		filter := ""
		if len(rest) > 0 {
			filter = rest[0]
		}
		return tail(ctx, client, filter, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", flags.Arg(0))
		flags.Usage()
		return 2
	}
}

func invoke(ctx context.Context, client *transport.Client, method string, args map[string]any, stdout, stderr io.Writer) int {
	result, err := client.Invoke(ctx, method, args)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			fmt.Fprintf(stderr, "%s: %s\n", st.Code(), st.Message())
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func tail(ctx context.Context, client *transport.Client, filter string, stdout, stderr io.Writer) int {
	stream, err := client.Events(ctx, filter)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return 0
			}
			fmt.Fprintln(stderr, err)
			return 1
		}
		_ = enc.Encode(map[string]any{"event": ev.Type, "subject": ev.Subject, "body": ev.Body})
	}
}

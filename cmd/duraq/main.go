// Command duraq operates on an embedded duraq queue file from the shell:
// sending and receiving messages, inspecting and redriving dead letters, and
// running maintenance (purge, retention sweep, stats).
//
// Usage:
//
//	duraq [-config duraq.yaml] <command> [flags]
//
// Commands:
//
//	send      -body <bytes> [-key <dedup-key>]
//	receive
//	ack       -id <message-id>
//	dlq       [-limit n]
//	redrive   -id <message-id>
//	purge
//	purge-dlq
//	sweep
//	stats
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/arthurmilliken/duraq"
	"github.com/arthurmilliken/duraq/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "duraq: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("duraq", flag.ExitOnError)
	configPath := fs.String("config", "duraq.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("missing command (send, receive, ack, dlq, redrive, purge, purge-dlq, sweep, stats)")
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	q, err := duraq.Open(cfg.Path, cfg.Options())
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	switch cmd {
	case "send":
		return cmdSend(q, rest)
	case "receive":
		return cmdReceive(q)
	case "ack":
		return cmdAck(q, rest)
	case "dlq":
		return cmdDLQ(q, rest)
	case "redrive":
		return cmdRedrive(q, rest)
	case "purge":
		n, err := q.Purge()
		return report(n, "purged", err)
	case "purge-dlq":
		n, err := q.PurgeDeadletter()
		return report(n, "purged", err)
	case "sweep":
		n, err := q.SweepDeadMessages()
		return report(n, "swept", err)
	case "stats":
		st, err := q.Stats()
		if err != nil {
			return err
		}
		return printJSON(st)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdSend(q *duraq.Queue, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	body := fs.String("body", "", "message payload")
	key := fs.String("key", "", "dedup key (defaults to body)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stored, err := q.Send([]byte(*body), *key)
	if err != nil {
		return err
	}
	return printJSON(map[string]bool{"stored": stored})
}

func cmdReceive(q *duraq.Queue) error {
	msg, err := q.Receive()
	if err != nil {
		return err
	}
	if msg == nil {
		return printJSON(map[string]any{"message": nil})
	}
	return printJSON(msg)
}

func cmdAck(q *duraq.Queue, args []string) error {
	fs := flag.NewFlagSet("ack", flag.ExitOnError)
	id := fs.Int64("id", 0, "live message id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return q.Ack(&duraq.Message{ID: *id})
}

func cmdDLQ(q *duraq.Queue, args []string) error {
	fs := flag.NewFlagSet("dlq", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum entries to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	msgs, err := q.ListDeadletters(*limit)
	if err != nil {
		return err
	}
	return printJSON(msgs)
}

func cmdRedrive(q *duraq.Queue, args []string) error {
	fs := flag.NewFlagSet("redrive", flag.ExitOnError)
	id := fs.Int64("id", 0, "dead-letter id (original or negated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	msg, err := q.RedriveDeadletter(*id)
	if err != nil {
		return err
	}
	return printJSON(msg)
}

func report(n int, verb string, err error) error {
	if err != nil {
		return err
	}
	return printJSON(map[string]int{verb: n})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command smashers analyses badminton footage from the terminal and keeps
// results in a local history file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `Usage: smashers <command> [flags]

Commands:
  analyze     Analyse a local video or a YouTube link
  history     List, export or clear saved analyses
  estimate    Estimate tokens and cost for a clip length
  check-key   Check that a Gemini API key works

Run "smashers <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	app, err := newApp(stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "smashers: %v\n", err)
		return 1
	}

	switch args[0] {
	case "analyze", "analyse":
		err = app.analyze(ctx, args[1:])
	case "history":
		err = app.history(ctx, args[1:])
	case "estimate":
		err = app.estimate(args[1:])
	case "check-key":
		err = app.checkKey(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "smashers: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "smashers: %v\n", err)
		return 1
	}
	return 0
}

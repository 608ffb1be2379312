package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/autofund-client/internal/bootstrap"
	"github.com/kirillkom/autofund-client/internal/config"
	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/observability/logging"
)

const usage = `usage: autofund <command> [flags]

commands:
  analyze   upload an IES PDF and wait for the analysis
  status    show the status of a task
  result    show the analysis result of a task
  download  save a generated report (excel or json)
  tasks     list tasks known to the backend
  delete    delete a task on the backend
  health    check backend health
  watch     follow status events published by other clients
  history   list recent analyses recorded locally
  inspect   summarize a downloaded xlsx report
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	app    *bootstrap.App
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	name, rest := args[0], args[1:]

	handlers := map[string]func(context.Context, *cli, []string) error{
		"analyze":  analyzeCmd,
		"status":   statusCmd,
		"result":   resultCmd,
		"download": downloadCmd,
		"tasks":    tasksCmd,
		"delete":   deleteCmd,
		"health":   healthCmd,
		"watch":    watchCmd,
		"history":  historyCmd,
	}

	c := &cli{stdout: stdout, stderr: stderr}
	if name == "inspect" {
		return c.exit(inspectCmd(ctx, c, rest))
	}
	handler, ok := handlers[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}
	slog.SetDefault(logging.New(stderr, "autofund-cli", cfg.LogLevel))

	app, err := bootstrap.New(ctx, cfg, "autofund-cli")
	if err != nil {
		fmt.Fprintf(stderr, "bootstrap error: %v\n", err)
		return 1
	}
	defer app.Close()
	c.app = app

	return c.exit(handler(ctx, c, rest))
}

// exit prints err the way an end user should see it and maps it to a
// process exit code.
func (c *cli) exit(err error) int {
	if err == nil {
		return 0
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(c.stderr, "%s\n", uerr.msg)
		return 2
	}
	if c.app == nil {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.stderr, "error: %s\n", c.app.Client.UserMessage(err))
	if f := domain.AsFailure(err); f.Code == domain.CodeUnknown {
		fmt.Fprintf(c.stderr, "  %v\n", err)
	}
	slog.Debug("command_failed", "error", err)
	return 1
}

type usageError struct {
	msg string
}

func (e usageError) Error() string {
	return e.msg
}

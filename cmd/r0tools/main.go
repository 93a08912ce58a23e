package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and maps the outcome to an exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if a.metrics != nil && a.cfg.Metrics.TextfilePath != "" {
		if werr := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); werr != nil {
			a.log.Warnf("metrics textfile: %v", werr)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "r0tools: %v\n", err)
	}
	return exitCode(err)
}

// usageError marks a bad command line.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		usage   *usageError
		missing *config.MissingError
		arg     *query.MissingArgumentError
	)
	if errors.As(err, &usage) || errors.As(err, &missing) || errors.As(err, &arg) {
		return 2
	}
	return 1
}

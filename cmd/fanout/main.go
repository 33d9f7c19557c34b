package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"fanout/internal/cli"
)

// main resolves the invocation before any task is spawned; an interrupt
// cancels in-flight tasks and surfaces as a task failure.
func main() {
	inv, err := cli.ParseInvocation(os.Args[1:])
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	result, execErr := cli.Execute(ctx, inv, os.Stdout, os.Stderr)
	stop()
	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
	}
	os.Exit(result.ExitCode)
}

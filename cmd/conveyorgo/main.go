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

	"github.com/specialistvlad/conveyorgo/internal/app"
	"github.com/specialistvlad/conveyorgo/internal/cli"
	"github.com/specialistvlad/conveyorgo/internal/model"
)

// main is the entrypoint for the conveyorgo application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The first interrupt cancels the run; the scheduler then settles every
	// job before the process exits through the normal reporting path.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		var valErr *model.ValidationError
		if errors.As(err, &valErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. A workflow that executed and failed surfaces as an ExitError
// carrying the run's exit code, not as a raw error.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, parseErr := cli.Parse(args, outW)
	if parseErr != nil {
		return parseErr
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical startup errors, so we recover here to
	// translate them into a clean exit for the user.
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = fmt.Errorf("application startup panicked | %w", rErr)
				return
			}
			err = fmt.Errorf("application startup panicked | %v", r)
		}
	}()

	conveyorApp := app.NewApp(outW, appConfig)

	rep, runErr := conveyorApp.Run(ctx)
	if runErr != nil {
		return runErr
	}

	if code := rep.ExitCode(); code != 0 {
		return &cli.ExitError{
			Code:    code,
			Message: fmt.Sprintf("run %s finished with outcome %s", rep.RunID, rep.Outcome),
		}
	}
	return nil
}

package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/conveyorgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("conveyorgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
ConveyorGo - A declarative CI/CD pipeline orchestration engine.

Usage:
  conveyorgo [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a workflow definition file (.yaml, .yml or .hcl).

Options:
`)
		flagSet.PrintDefaults()
	}

	workflowFlag := flagSet.String("workflow", "", "Path to the workflow definition file.")
	wFlag := flagSet.String("w", "", "Path to the workflow definition file (shorthand).")
	eventFlag := flagSet.String("event", "push", "Event name this run is triggered by.")
	branchFlag := flagSet.String("branch", "", "Branch name this run is triggered for.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent job workers. 0 uses the engine default.")
	stepTimeoutFlag := flagSet.Duration("step-timeout", 0, "Timeout for steps without one of their own. 0 uses the engine default.")
	secretsFileFlag := flagSet.String("secrets-file", "", "Path to a YAML file of secret values.")
	artifactsDirFlag := flagSet.String("artifacts-dir", "", "Directory artifacts are written to after the run. Empty keeps them in memory.")
	historyDBFlag := flagSet.String("history-db", "", "Path to the SQLite run journal. Empty disables history.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *workflowFlag != "" {
		path = *workflowFlag
	} else if *wFlag != "" {
		path = *wFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Workflow path determined.", "path", path)

	if path == "" {
		slog.Debug("No workflow path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		WorkflowPath: path,
		Event:        *eventFlag,
		Branch:       *branchFlag,
		Workers:      *workersFlag,
		StepTimeout:  *stepTimeoutFlag,
		SecretsFile:  *secretsFileFlag,
		ArtifactsDir: *artifactsDirFlag,
		HistoryDB:    *historyDBFlag,
		StatusPort:   *statusPortFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

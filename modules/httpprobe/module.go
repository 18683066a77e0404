// Package httpprobe polls an HTTP endpoint until it answers with a 2xx
// status. Deploy-style jobs use it to gate on a service actually coming up
// instead of sleeping a fixed amount.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

const defaultInterval = 2 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run probes the configured URL until it returns a 2xx status or the step's
// context expires. Arguments: url (required), method (default GET), interval
// between attempts (default 2s, Go duration syntax).
func Run(ctx context.Context, task *runner.Task) (*runner.Result, error) {
	logger := ctxlog.FromContext(ctx)

	url := task.With["url"]
	if url == "" {
		return nil, fmt.Errorf("httpprobe: 'url' argument is required")
	}
	method := task.With["method"]
	if method == "" {
		method = http.MethodGet
	}
	interval := defaultInterval
	if raw := task.With["interval"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("httpprobe: invalid interval '%s': %w", raw, err)
		}
		interval = parsed
	}

	client := &http.Client{}
	attempt := 0
	for {
		attempt++
		status, err := probe(ctx, client, method, url)
		if err == nil && status >= 200 && status < 300 {
			logger.Info("Probe succeeded.", "url", url, "status", status, "attempts", attempt)
			return &runner.Result{Stdout: fmt.Sprintf("status %d after %d attempt(s)\n", status, attempt)}, nil
		}
		if err != nil {
			logger.Debug("Probe attempt failed.", "url", url, "attempt", attempt, "error", err)
		} else {
			logger.Debug("Probe attempt returned non-2xx.", "url", url, "attempt", attempt, "status", status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("httpprobe: %s did not become healthy after %d attempt(s): %w", url, attempt, context.Cause(ctx))
		case <-time.After(interval):
		}
	}
}

func probe(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused between attempts.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("httpprobe", runner.Func(Run))
}

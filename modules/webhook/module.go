// Package webhook delivers an HTTP notification as a pipeline step.
// Announce-style jobs use it to tell chat rooms and deployment trackers
// what a run did.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/specialistvlad/conveyorgo/internal/ctxlog"
	"github.com/specialistvlad/conveyorgo/internal/registry"
	"github.com/specialistvlad/conveyorgo/internal/runner"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run sends one HTTP request. Arguments: url (required), method (default
// POST), body (optional), content-type (default application/json when a
// body is present). Webhook URLs often embed tokens, so the URL is redacted
// before it reaches any log line or error.
func Run(ctx context.Context, task *runner.Task) (*runner.Result, error) {
	logger := ctxlog.FromContext(ctx)

	url := task.With["url"]
	if url == "" {
		return nil, fmt.Errorf("webhook: 'url' argument is required")
	}
	method := task.With["method"]
	if method == "" {
		method = http.MethodPost
	}

	var payload io.Reader
	if body := task.With["body"]; body != "" {
		payload = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to create request: %s", task.Redacted(err.Error()))
	}
	if payload != nil {
		contentType := task.With["content-type"]
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}

	logger.Info("Sending webhook.", "method", method, "url", task.Redacted(url))
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: request failed: %s", task.Redacted(err.Error()))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to read response body: %w", err)
	}
	logger.Info("Webhook answered.", "status", resp.Status)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("webhook: endpoint answered %s", resp.Status)
	}

	out := fmt.Sprintf("delivered: %s\n", resp.Status)
	if len(bodyBytes) > 0 {
		out += task.Redacted(string(bodyBytes))
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
	}
	return &runner.Result{Stdout: out}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("webhook", runner.Func(Run))
}

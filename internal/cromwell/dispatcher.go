package cromwell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/choppy/internal/config"
)

// Dispatcher submits to engines picked by name from the configuration.
type Dispatcher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDispatcher returns a Dispatcher resolving servers through cfg.
func NewDispatcher(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, logger: logger}
}

// Client builds a client for the named server ("" is localhost).
func (d *Dispatcher) Client(server string) (*Client, error) {
	s, err := d.cfg.Server(server)
	if err != nil {
		return nil, err
	}
	cc := DefaultConfig()
	cc.BaseURL = s.URL()
	if s.Username != "" {
		cc = cc.WithAuth(s.Username, s.Password)
	}
	return NewClient(cc, d.logger), nil
}

// Submit sends one workflow to server. labels are "key:value" strings; the
// username label is added (the configured user when username is empty).
func (d *Dispatcher) Submit(ctx context.Context, workflowPath, inputsPath, depsPath string, labels []string, username, server string) (string, error) {
	labelMap, err := ParseLabels(labels)
	if err != nil {
		return "", err
	}
	if username == "" {
		username = d.cfg.General.Username
	}
	labelMap[UsernameLabel] = username

	c, err := d.Client(server)
	if err != nil {
		return "", err
	}
	status, err := c.Submit(ctx, &SubmitRequest{
		WorkflowPath:     workflowPath,
		InputsPath:       inputsPath,
		DependenciesPath: depsPath,
		Labels:           labelMap,
	})
	if err != nil {
		return "", err
	}
	if status.ID == "" {
		return "", fmt.Errorf("submit: engine returned no workflow id")
	}
	return status.ID, nil
}

package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/me/choppy/internal/command"
)

// ErrExtractor marks failures to run the schema extractor itself, as opposed
// to problems with the input values being validated.
var ErrExtractor = errors.New("schema extractor failed")

// Extractor produces the parameter schema of a workflow definition.
type Extractor interface {
	GetParameterTypes(ctx context.Context, workflowPath string) (*Schema, error)
}

// Womtool extracts parameter types with `java -jar womtool.jar inputs`.
type Womtool struct {
	JarPath string
	Java    string

	runner command.Runner
	logger *slog.Logger
}

// NewWomtool creates an extractor for the womtool jar at jarPath.
func NewWomtool(jarPath string, runner command.Runner, logger *slog.Logger) *Womtool {
	if runner == nil {
		runner = command.OSRunner{}
	}
	return &Womtool{
		JarPath: jarPath,
		Java:    "java",
		runner:  runner,
		logger:  logger.With("component", "womtool"),
	}
}

// GetParameterTypes runs womtool from the workflow's directory so relative
// imports resolve.
func (w *Womtool) GetParameterTypes(ctx context.Context, workflowPath string) (*Schema, error) {
	if w.JarPath == "" {
		return nil, fmt.Errorf("%w: womtool path is not configured", ErrExtractor)
	}
	wdl, err := filepath.Abs(workflowPath)
	if err != nil {
		return nil, fmt.Errorf("resolve workflow path: %w", err)
	}
	jar, err := filepath.Abs(w.JarPath)
	if err != nil {
		return nil, fmt.Errorf("resolve womtool path: %w", err)
	}

	w.logger.Debug("extracting inputs", "workflow", wdl, "jar", jar)
	stdout, stderr, code, err := w.runner.Run(ctx, filepath.Dir(wdl), w.Java, "-jar", jar, "inputs", wdl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractor, err)
	}
	if code != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		return nil, fmt.Errorf("%w: womtool exited %d: %s (make sure any subworkflow wdl files are present)", ErrExtractor, code, msg)
	}

	s, err := Parse([]byte(stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractor, err)
	}
	w.logger.Debug("extracted inputs", "params", s.Len())
	return s, nil
}

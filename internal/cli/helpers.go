package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/me/choppy/internal/app"
	"github.com/me/choppy/internal/batch"
	"github.com/me/choppy/internal/command"
	"github.com/me/choppy/internal/cromwell"
	"github.com/me/choppy/internal/deps"
	"github.com/me/choppy/internal/render"
	"github.com/me/choppy/internal/schema"
	"github.com/me/choppy/internal/store"
	"github.com/me/choppy/pkg/model"
)

// runner is swapped in tests.
var runner command.Runner = command.OSRunner{}

// resolveApp finds an installed app by its listed name ("wes",
// "choppy/wes-latest") or by reference ("choppy/wes:latest").
func resolveApp(name string) (*app.App, error) {
	a, err := app.OpenNamed(cfg.General.AppRootDir, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, model.ErrInvalidApp) {
		return nil, err
	}
	ref, perr := app.ParseAppName(name)
	if perr != nil {
		return nil, err
	}
	return app.OpenNamed(cfg.General.AppRootDir, ref.InstallDir())
}

// openStore opens and migrates the history database.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	path := cfg.General.DBPath
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return st, nil
}

func newPackager() *deps.Packager {
	return deps.NewPackager(deps.NewAutoArchiver(runner, logger), logger)
}

func newExtractor() schema.Extractor {
	return schema.NewWomtool(cfg.General.WomtoolPath, runner, logger)
}

// newOrchestrator wires the renderer, packager and dispatcher. Runs are
// recorded when the history database opens; the returned close func is
// always safe to call.
func newOrchestrator(ctx context.Context) (*batch.Orchestrator, func()) {
	o := batch.New(render.New(), newPackager(), cromwell.NewDispatcher(cfg, logger), logger)
	o.SetRunner(runner)

	st, err := openStore(ctx)
	if err != nil {
		logger.Warn("batch history disabled", "error", err)
		return o, func() {}
	}
	o.SetRecorder(st)
	return o, func() { st.Close() }
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

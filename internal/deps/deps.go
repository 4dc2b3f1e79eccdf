// Package deps packages an app's task-dependency directory into the zip
// archive the execution engine imports from.
package deps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/me/choppy/internal/fsutil"
)

// TopDir is the directory every archived dependency sits under.
const TopDir = "tasks"

// Artifact is a packaged dependency archive and its scratch directory.
type Artifact struct {
	Path string
	Dir  string
	Size int64
}

// Cleanup removes the artifact's scratch directory.
func (a *Artifact) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Packager stages and archives dependency directories.
type Packager struct {
	// TempRoot holds one uuid-named scratch directory per artifact.
	// Empty means os.TempDir().
	TempRoot string
	archiver Archiver
	logger   *slog.Logger
}

// NewPackager returns a Packager that archives with a.
func NewPackager(a Archiver, logger *slog.Logger) *Packager {
	return &Packager{
		archiver: a,
		logger:   logger.With("component", "packager"),
	}
}

// Package copies depsDir to <scratch>/tasks and zips it to
// <scratch>/tasks.zip.
func (p *Packager) Package(ctx context.Context, depsDir string) (*Artifact, error) {
	src, err := filepath.Abs(depsDir)
	if err != nil {
		return nil, err
	}
	root := p.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	scratch := filepath.Join(root, uuid.New().String())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	art := &Artifact{Dir: scratch, Path: filepath.Join(scratch, TopDir+".zip")}

	if err := fsutil.CopyDir(src, filepath.Join(scratch, TopDir)); err != nil {
		art.Cleanup()
		return nil, fmt.Errorf("stage dependencies: %w", err)
	}
	if err := p.archiver.Archive(ctx, scratch, TopDir, art.Path); err != nil {
		art.Cleanup()
		return nil, err
	}
	if info, err := os.Stat(art.Path); err == nil {
		art.Size = info.Size()
	}

	p.logger.Debug("dependencies packaged",
		"src", src,
		"archive", art.Path,
		"archiver", p.archiver.Name(),
		"size", humanize.Bytes(uint64(art.Size)),
	)
	return art, nil
}

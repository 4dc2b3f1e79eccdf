package deps

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/me/choppy/internal/command"
)

// Archiver writes baseDir/entry into a zip at dest, with archive paths
// relative to baseDir (so every file sits under entry/).
type Archiver interface {
	Name() string
	Archive(ctx context.Context, baseDir, entry, dest string) error
}

// ExternalZip shells out to the zip binary.
type ExternalZip struct {
	Runner command.Runner
}

func (z ExternalZip) runner() command.Runner {
	if z.Runner == nil {
		return command.OSRunner{}
	}
	return z.Runner
}

func (ExternalZip) Name() string { return "zip" }

// Available reports whether zip is on PATH.
func (z ExternalZip) Available() bool {
	_, err := z.runner().LookPath("zip")
	return err == nil
}

func (z ExternalZip) Archive(ctx context.Context, baseDir, entry, dest string) error {
	_, stderr, code, err := z.runner().Run(ctx, baseDir, "zip", "-r", "-q", dest, entry)
	if err != nil {
		return fmt.Errorf("run zip: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("zip exited with code %d: %s", code, strings.TrimSpace(stderr))
	}
	return nil
}

// BuiltinZip writes the archive in-process.
//
// Every entry it writes declares "version needed to extract" 2.0. Cromwell
// releases that only accept 1.0 archives fail to unpack these, which is why
// AutoArchiver uses it only when the zip binary is missing.
type BuiltinZip struct{}

func (BuiltinZip) Name() string { return "builtin" }

func (BuiltinZip) Archive(ctx context.Context, baseDir, entry, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)

	root := filepath.Join(baseDir, entry)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
			_, err := zw.CreateHeader(hdr)
			return err
		}
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		os.Remove(dest)
		return fmt.Errorf("archive %s: %w", root, walkErr)
	}
	return nil
}

// AutoArchiver prefers the zip binary and falls back to BuiltinZip.
type AutoArchiver struct {
	External ExternalZip
	Builtin  BuiltinZip
	logger   *slog.Logger
}

// NewAutoArchiver returns an AutoArchiver using runner for the zip binary.
func NewAutoArchiver(runner command.Runner, logger *slog.Logger) *AutoArchiver {
	return &AutoArchiver{
		External: ExternalZip{Runner: runner},
		logger:   logger.With("component", "archiver"),
	}
}

// Name reports the archiver that Archive would use right now.
func (a *AutoArchiver) Name() string {
	if a.External.Available() {
		return a.External.Name()
	}
	return a.Builtin.Name()
}

func (a *AutoArchiver) Archive(ctx context.Context, baseDir, entry, dest string) error {
	if a.External.Available() {
		return a.External.Archive(ctx, baseDir, entry, dest)
	}
	a.logger.Warn("zip not found on PATH, using builtin archiver; the engine may reject its zip version",
		"dest", dest)
	return a.Builtin.Archive(ctx, baseDir, entry, dest)
}

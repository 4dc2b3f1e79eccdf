package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/me/choppy/internal/command"
	"github.com/me/choppy/pkg/model"
)

// Version describes the git checkout of an app directory: remote origin,
// HEAD commit and tags. Fields that git cannot provide are left empty.
func Version(ctx context.Context, dir string, runner command.Runner, logger *slog.Logger) model.VersionInfo {
	if runner == nil {
		runner = command.OSRunner{}
	}
	git := func(args ...string) string {
		out, stderr, code, err := runner.Run(ctx, dir, "git", args...)
		if err != nil || code != 0 {
			msg := strings.TrimSpace(stderr)
			if err != nil {
				msg = err.Error()
			}
			logger.Warn("git query failed", "dir", dir, "args", strings.Join(args, " "), "error", msg)
			return ""
		}
		return strings.TrimSpace(out)
	}

	return model.VersionInfo{
		AppName:  git("remote", "get-url", "origin"),
		CommitID: git("rev-parse", "HEAD"),
		Version:  git("tag"),
	}
}


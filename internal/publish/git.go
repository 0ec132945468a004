package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

// GitRunFunc runs a command in dir and returns its combined output.
type GitRunFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// Git commits feed changes in a local checkout and pushes them.
type Git struct {
	repoDir string
	remote  string
	branch  string
	run     GitRunFunc
	logger  *slog.Logger
}

// NewGit returns a publisher for the checkout at repoDir.
func NewGit(repoDir, remote, branch string, logger *slog.Logger) *Git {
	return &Git{
		repoDir: repoDir,
		remote:  remote,
		branch:  branch,
		run:     defaultGitRun,
		logger:  logging.NewComponentLogger(logger, "publish-git"),
	}
}

// WithRunner replaces the command runner. Intended for tests.
func (g *Git) WithRunner(run GitRunFunc) *Git {
	if run != nil {
		g.run = run
	}
	return g
}

// HasPendingChanges reports whether the working tree differs from HEAD.
func (g *Git) HasPendingChanges(ctx context.Context) (bool, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// Publish stages files (everything when empty), commits and pushes.
func (g *Git) Publish(ctx context.Context, label string, files []string) error {
	addArgs := []string{"add", "-A"}
	if rel := g.relativePaths(files); len(rel) > 0 {
		addArgs = append(addArgs, "--")
		addArgs = append(addArgs, rel...)
	}
	if _, err := g.git(ctx, addArgs...); err != nil {
		return err
	}
	out, err := g.git(ctx, "commit", "-m", CommitMessage(label))
	if err != nil {
		if strings.Contains(string(out), "nothing to commit") || strings.Contains(err.Error(), "nothing to commit") {
			g.logger.Info("nothing to publish")
			return nil
		}
		return err
	}
	if _, err := g.git(ctx, "push", g.remote, g.branch); err != nil {
		return err
	}
	g.logger.Info("feed published", logging.String("label", label), logging.String("branch", g.branch))
	return nil
}

func (g *Git) relativePaths(files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		rel, err := filepath.Rel(g.repoDir, file)
		if err != nil || strings.HasPrefix(rel, "..") {
			g.logger.Warn("file outside repository skipped", logging.String("path", file))
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func (g *Git) git(ctx context.Context, args ...string) ([]byte, error) {
	out, err := g.run(ctx, g.repoDir, "git", args...)
	if err != nil {
		return out, services.Wrap(
			services.ErrTransient,
			"publishing",
			"git "+args[0],
			fmt.Sprintf("git %s failed: %s", args[0], strings.TrimSpace(string(out))),
			err,
		)
	}
	return out, nil
}

func defaultGitRun(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

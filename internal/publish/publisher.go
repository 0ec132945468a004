package publish

import (
	"context"
	"fmt"
	"log/slog"

	"yt2pod/internal/config"
)

// Publisher pushes the local feed and media to their public location.
type Publisher interface {
	HasPendingChanges(ctx context.Context) (bool, error)
	Publish(ctx context.Context, label string, files []string) error
}

// New returns the publisher selected by publish.mode.
func New(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	switch cfg.Publish.Mode {
	case config.PublishManual, "":
		return Noop{}, nil
	case config.PublishGitHub:
		return NewGit(cfg.Publish.GitRepoDir, cfg.Publish.GitRemote, cfg.Publish.GitBranch, logger), nil
	case config.PublishObjectStore:
		return NewObjectStoreFromConfig(cfg, logger)
	default:
		return nil, fmt.Errorf("publish.mode: unsupported value %q", cfg.Publish.Mode)
	}
}

// Noop is used in manual mode; the operator publishes by other means.
type Noop struct{}

func (Noop) HasPendingChanges(context.Context) (bool, error) { return false, nil }

func (Noop) Publish(context.Context, string, []string) error { return nil }

// CommitMessage is the message recorded for an episode publish.
func CommitMessage(label string) string {
	if label == "" {
		return "Update podcast feed"
	}
	return "Add episode: " + label
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"yt2pod/internal/config"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/logging"
)

const runtimeCloseTimeout = 10 * time.Second

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// logger writes human output to stderr and JSON to the CLI log file.
func (c *commandContext) logger(stderr io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		level = *c.logLevelFlag
	}
	opts := logging.Options{
		Level:      level,
		Format:     "console",
		Console:    stderr,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.RetentionDays,
		Compress:   cfg.Logging.Compress,
	}
	if cfg.Paths.LogDir != "" {
		opts.FilePath = filepath.Join(cfg.Paths.LogDir, "yt2pod.log")
	}
	return logging.New(opts)
}

// withRuntime builds the in-process services for fn and releases them
// afterwards. Transcript workers still running at that point stay
// in_progress for the daemon to resume.
func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(*config.Config, *daemonrun.Runtime) error) error {
	return c.withRuntimeConfig(cmd, nil, fn)
}

// withRuntimeConfig is withRuntime with adjust applied to a copy of the
// loaded config before the runtime is built.
func (c *commandContext) withRuntimeConfig(cmd *cobra.Command, adjust func(*config.Config), fn func(*config.Config, *daemonrun.Runtime) error) (err error) {
	loaded, err := c.ensureConfig()
	if err != nil {
		return err
	}
	cfg := loaded
	if adjust != nil {
		copied := *loaded
		adjust(&copied)
		cfg = &copied
	}
	logger, err := c.logger(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	rt, err := daemonrun.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), runtimeCloseTimeout)
		defer cancel()
		if closeErr := rt.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(cfg, rt)
}

func (c *commandContext) withClient(fn func(*daemonctl.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	client, err := daemonctl.NewClient(cfg)
	if err != nil {
		return err
	}
	return fn(client)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

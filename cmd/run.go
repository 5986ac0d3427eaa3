package cmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leefowlercu/cmxbatch/internal/auth"
	"github.com/leefowlercu/cmxbatch/internal/cmdutil"
	"github.com/leefowlercu/cmxbatch/internal/cmxapi"
	"github.com/leefowlercu/cmxbatch/internal/config"
	"github.com/leefowlercu/cmxbatch/internal/coordinator"
	"github.com/leefowlercu/cmxbatch/internal/logging"
	"github.com/leefowlercu/cmxbatch/internal/metrics"
	"github.com/leefowlercu/cmxbatch/internal/report"
	"github.com/leefowlercu/cmxbatch/internal/tasks"
	"github.com/leefowlercu/cmxbatch/internal/version"
)

// metricsShutdownTimeout bounds the metrics server shutdown at exit.
const metricsShutdownTimeout = 5 * time.Second

func runTask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := logManager.Logger()

	dir, err := cmdutil.ResourcesDir(resourcesPath)
	if err != nil {
		return err
	}
	task, err := tasks.DefaultRegistry().Lookup(taskName)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	started := time.Now()
	info := version.Get()

	cfg, err := config.Load(dir)
	if err != nil {
		return finish(out, logger, tasks.Failed(task.Name(), runID, err, started), dir)
	}
	upgradeLogging(logger, cfg)

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, logger)
		if err != nil {
			logger.Warn("metrics endpoint disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}
	metrics.StartRun(task.Name(), runID, info.Version, started)

	// Task files are checked before any network call.
	if err := task.Configure(dir); err != nil {
		return finish(out, logger, tasks.Failed(task.Name(), runID, err, started), dir)
	}

	logger.Info("configuration loaded",
		"properties", cfg.Path,
		"core_url", cfg.CMX.Core.URL,
		"store_id", cfg.CMX.Core.StoreID,
		"version", info.Version,
	)
	res := tasks.Execute(ctx, task, newEnv(cfg, runID, info, logger))
	return finish(out, logger, res, dir)
}

// upgradeLogging applies the configured level and log file. A log file that
// cannot be opened leaves logging on the console.
func upgradeLogging(logger *slog.Logger, cfg *config.Config) {
	level, ok := logging.ParseLevel(cfg.Log.Level)
	if !ok {
		level = logging.DefaultLevel
	}

	file := logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	if file.Path != "" && !filepath.IsAbs(file.Path) {
		file.Path = filepath.Join(cfg.ResourcesPath, file.Path)
	}

	if err := logManager.Upgrade(file, level); err != nil {
		logger.Warn("failed to enable file logging, continuing with console only", "error", err)
	}
}

// newEnv wires the credential manager and the document-store client of a run.
func newEnv(cfg *config.Config, runID string, info version.Info, logger *slog.Logger) *tasks.Env {
	core := cfg.CMX.Core
	policy := coordinator.Policy{
		MaxRetry:  core.MaxRetry,
		BaseDelay: core.RetryBaseDelay,
		MaxDelay:  core.RetryMaxDelay,
	}

	credentials := auth.NewManager(auth.Config{
		TokenURL:     cfg.CMX.MAAM.URL,
		ClientID:     cfg.CMX.MAAM.User,
		ClientSecret: cfg.CMX.MAAM.Password,
		Scopes:       cfg.CMX.MAAM.Scope,
		Margin:       cfg.CMX.MAAM.TokenMargin,
	},
		auth.WithHTTPClient(&http.Client{Timeout: core.Timeout}),
		auth.WithLogger(logger),
	)

	client := cmxapi.New(cmxapi.Config{
		BaseURL:   core.URL,
		StoreID:   core.StoreID,
		Profile:   core.Profile,
		UserAgent: info.UserAgent(),
		RateLimit: core.RateLimit,
		Policy:    policy,
	},
		cmxapi.WithHTTPClient(&http.Client{
			Timeout:   core.Timeout,
			Transport: &auth.Transport{Manager: credentials},
		}),
		cmxapi.WithInvalidator(credentials),
		cmxapi.WithLogger(logger),
	)

	return &tasks.Env{
		Store:         client,
		Policy:        policy,
		Workers:       core.NbThreads,
		PageSize:      core.PageSize,
		ItemTimeout:   core.ItemTimeout,
		ResourcesPath: cfg.ResourcesPath,
		RunID:         runID,
		Logger:        logger,
	}
}

// finish prints the run summary, writes the YAML report and records the
// exit code. It never fails the command: the exit code carries the outcome.
func finish(out io.Writer, logger *slog.Logger, res tasks.Result, dir string) error {
	report.Render(out, res)

	path := report.Path(res, dir)
	if err := report.WriteYAML(path, res); err != nil {
		logger.Warn("run report not written", "path", path, "error", err)
	} else {
		logger.Info("run report written", "path", path)
	}

	exitCode = res.ExitCode()
	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schemamirror/sfsync/internal/cli/config"
	"github.com/schemamirror/sfsync/internal/cli/ui"
	"github.com/schemamirror/sfsync/internal/mirror"
	"github.com/schemamirror/sfsync/internal/runlock"
	"github.com/schemamirror/sfsync/internal/scheduler"
	"github.com/schemamirror/sfsync/internal/sfcli"
	"github.com/schemamirror/sfsync/internal/store"
)

// environment is what both the sync and the report need: config, logger and an open store
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func (e *environment) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openEnvironment loads configuration, builds the logger and opens the store
func openEnvironment(ctx context.Context, logOut io.Writer, opts *rootOptions) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, configError(err)
	}

	logger, err := newLogger(logOut, strings.ToLower(cfg.Log.Level), opts.noColor || color.NoColor)
	if err != nil {
		return nil, configError(err)
	}

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, databaseError(err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, databaseError(err)
	}

	logger.Debug("database ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("dialect", st.Dialect().String()),
	)

	return &environment{cfg: cfg, logger: logger, store: st}, nil
}

func runSync(cmd *cobra.Command, opts *rootOptions) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	env, err := openEnvironment(ctx, cmd.ErrOrStderr(), opts)
	if err != nil {
		return err
	}
	defer env.close()

	cfg := env.cfg
	if err := cfg.ValidateForSync(); err != nil {
		return configError(err)
	}
	if !cfg.AnyPhaseEnabled() {
		fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("All sync phases are disabled; nothing to do.", opts.noColor))
		return nil
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return configError(err)
	}
	defer closeLocker()

	cli := sfcli.New(sfcli.Config{
		Path:    cfg.Salesforce.CLIPath,
		Org:     cfg.Salesforce.Org,
		FlowDir: cfg.Sync.FlowOutputDir,
	}, sfcli.WithLogger(env.logger.Named("sf")))

	syncOpts := []mirror.Option{
		mirror.WithLogger(env.logger),
		mirror.WithLocker(locker),
	}

	var bar *ui.ProgressBar
	if opts.progress {
		bar = ui.NewProgressBar(cmd.ErrOrStderr(), ui.ProgressBarOptions{
			Message: "Describing objects",
			NoColor: opts.noColor,
		})
		syncOpts = append(syncOpts, mirror.WithObjectProgress(func(done, total int, objectName string) {
			bar.Update(done, total, objectName)
		}))
	}

	syncer := mirror.NewSyncer(env.store, cli, mirror.Options{
		Org:                cfg.Salesforce.Org,
		APIVersion:         cfg.Salesforce.APIVersion,
		SyncFields:         cfg.Sync.Fields,
		SyncFieldUsage:     cfg.Sync.FieldUsage,
		SyncFlows:          cfg.Sync.Flows,
		KeepFlowFiles:      cfg.Sync.KeepFlowFiles,
		VerboseFlowLogging: cfg.Sync.VerboseFlowLogging,
	}, syncOpts...)

	cycle := func(ctx context.Context) error {
		sum, err := syncer.Run(ctx)
		if bar != nil && sum != nil && sum.ObjectsProcessed > 0 {
			bar.Finish(fmt.Sprintf("Described %d objects", sum.ObjectsProcessed))
		}
		if sum != nil {
			printSummary(cmd.OutOrStdout(), sum, opts.noColor)
		}
		return classifySyncError(err)
	}

	if opts.every <= 0 {
		return cycle(ctx)
	}

	sched, err := scheduler.New(opts.every, cycle, env.logger.Named("scheduler"))
	if err != nil {
		return configError(err)
	}
	env.logger.Info("interval mode", zap.Duration("every", opts.every))
	return sched.Run(ctx)
}

// classifySyncError marks store failures for database rendering
func classifySyncError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, runlock.ErrHeld):
		return err
	default:
		return databaseError(err)
	}
}

// newLocker returns a Redis run lock when REDIS_URL is set and a no-op otherwise
func newLocker(ctx context.Context, cfg *config.Config) (runlock.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		return runlock.Noop{}, func() {}, nil
	}
	locker, err := runlock.NewRedisLockerFromURL(ctx, cfg.Redis.URL, cfg.Redis.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	return locker, func() { _ = locker.Close() }, nil
}

// printSummary writes the per-phase outcome of a cycle
func printSummary(w io.Writer, sum *mirror.Summary, noColor bool) {
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Run", sum.RunID)
	if !sum.FinishedAt.IsZero() {
		kv.AddRow("Elapsed", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond).String())
	}

	if sum.FieldsSkipped {
		kv.AddRow("Fields", "skipped (object list unavailable)")
	} else {
		kv.AddRow("Fields", formatCounts(sum.Fields))
		kv.AddRow("Objects described", fmt.Sprintf("%d", sum.ObjectsProcessed))
		kv.AddRow("Fields marked deleted", fmt.Sprintf("%d", sum.FieldsStale))
	}

	if sum.FieldUsageSkipped {
		kv.AddRow("Field usage", "skipped (Tooling API unavailable)")
	} else {
		kv.AddRow("Field usage", formatCounts(sum.FieldUsage))
	}

	if sum.FlowsSkipped {
		kv.AddRow("Flow usage", "skipped (retrieve failed)")
	} else {
		kv.AddRow("Flow usage", formatCounts(sum.FlowUsage))
		kv.AddRow("Flows parsed", fmt.Sprintf("%d (%d failed)", sum.FlowsParsed, sum.FlowsFailed()))
	}
	kv.Render()

	if !sum.FinishedAt.IsZero() {
		ui.WriteSuccess(w, "Sync complete", noColor)
	}
}

func formatCounts(c mirror.Counts) string {
	return fmt.Sprintf("%d inserted, %d updated, %d unchanged", c.Inserted, c.Updated, c.Unchanged)
}

// Package mirror runs sync cycles that copy org schema metadata into the store.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/schemamirror/sfsync/internal/flow"
	"github.com/schemamirror/sfsync/internal/runlock"
	"github.com/schemamirror/sfsync/internal/sfcli"
	"github.com/schemamirror/sfsync/internal/store"
	"github.com/schemamirror/sfsync/internal/tooling"
)

// Store is the persistence the sync writes through
type Store interface {
	MarkAllFieldsDeleted(ctx context.Context) (int64, error)
	UpsertField(ctx context.Context, f store.Field) (store.UpsertResult, error)
	UpsertFieldUsage(ctx context.Context, u store.FieldUsage) (store.UpsertResult, error)
	UpsertFlowFieldUsage(ctx context.Context, u store.FlowFieldUsage) (store.UpsertResult, error)
}

// DependencyFetcher returns component dependencies on custom fields
type DependencyFetcher interface {
	FieldDependencies(ctx context.Context) ([]tooling.Dependency, error)
}

// DependencyFetcherFactory builds a fetcher for an authenticated session
type DependencyFetcherFactory func(auth sfcli.AuthContext) DependencyFetcher

// Options selects what a sync cycle does
type Options struct {
	Org                string
	APIVersion         string
	SyncFields         bool
	SyncFieldUsage     bool
	SyncFlows          bool
	KeepFlowFiles      bool
	VerboseFlowLogging bool
}

// Syncer runs sync cycles. Phases run one after another; nothing is concurrent.
type Syncer struct {
	store    Store
	cli      sfcli.Client
	newDeps  DependencyFetcherFactory
	locker   runlock.Locker
	logger   *zap.Logger
	opts     Options
	onObject func(done, total int, objectName string)
}

// Option configures a Syncer
type Option func(*Syncer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithLocker sets the run lock; the default never blocks
func WithLocker(locker runlock.Locker) Option {
	return func(s *Syncer) {
		s.locker = locker
	}
}

// WithDependencyFetcherFactory replaces the Tooling API client
func WithDependencyFetcherFactory(fn DependencyFetcherFactory) Option {
	return func(s *Syncer) {
		s.newDeps = fn
	}
}

// WithObjectProgress is called after each object's fields are stored
func WithObjectProgress(fn func(done, total int, objectName string)) Option {
	return func(s *Syncer) {
		s.onObject = fn
	}
}

// NewSyncer creates a Syncer
func NewSyncer(st Store, cli sfcli.Client, opts Options, options ...Option) *Syncer {
	s := &Syncer{
		store:  st,
		cli:    cli,
		locker: runlock.Noop{},
		logger: zap.NewNop(),
		opts:   opts,
	}
	s.newDeps = func(auth sfcli.AuthContext) DependencyFetcher {
		return tooling.NewClient(auth, s.opts.APIVersion)
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Run executes one sync cycle over the enabled phases. Fetch failures are
// logged and skip data; store failures end the run with an error.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	logger := s.logger.With(zap.String("run_id", sum.RunID), zap.String("org", s.opts.Org))

	lease, err := s.locker.Acquire(ctx, s.opts.Org)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	logger.Info("sync started",
		zap.Bool("fields", s.opts.SyncFields),
		zap.Bool("field_usage", s.opts.SyncFieldUsage),
		zap.Bool("flows", s.opts.SyncFlows),
	)

	if s.opts.SyncFields {
		if err := s.syncFields(ctx, logger, sum); err != nil {
			return sum, err
		}
	}

	if s.opts.SyncFieldUsage {
		if err := s.syncFieldUsage(ctx, logger, sum); err != nil {
			return sum, err
		}
	}

	if s.opts.SyncFlows {
		if err := s.syncFlows(ctx, logger, sum); err != nil {
			return sum, err
		}
	}

	sum.FinishedAt = time.Now().UTC()
	logger.Info("sync complete", zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)))
	return sum, nil
}

func (s *Syncer) syncFields(ctx context.Context, logger *zap.Logger, sum *Summary) error {
	objects, err := s.cli.ListObjects(ctx)
	if err != nil {
		// Without an object list nothing was observed; flagging every row deleted would be wrong.
		logger.Warn("failed to list objects, skipping field sync", zap.Error(err))
		sum.FieldsSkipped = true
		return nil
	}

	flagged, err := s.store.MarkAllFieldsDeleted(ctx)
	if err != nil {
		return err
	}
	logger.Info("found objects", zap.Int("count", len(objects)), zap.Int64("fields_flagged", flagged))

	for idx, objectName := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Debug("processing object",
			zap.Int("index", idx+1),
			zap.Int("total", len(objects)),
			zap.String("object", objectName),
		)

		fields, err := s.cli.DescribeFields(ctx, objectName)
		if err != nil {
			logger.Warn("failed to describe object", zap.String("object", objectName), zap.Error(err))
		}
		if len(fields) == 0 {
			logger.Warn("no fields returned", zap.String("object", objectName))
		}

		for _, fd := range fields {
			if fd.Name == "" {
				logger.Warn("skipping field without a name", zap.String("object", objectName))
				continue
			}

			result, err := s.store.UpsertField(ctx, store.Field{
				ObjectName: objectName,
				FieldName:  fd.Name,
				Label:      fd.Label,
				DataType:   fd.Type,
			})
			if err != nil {
				return err
			}
			sum.Fields.add(result)

			if result != store.Unchanged {
				logger.Info("field "+result.String(),
					zap.String("object", objectName),
					zap.String("field", fd.Name),
					zap.String("label", fd.Label),
					zap.String("type", fd.Type),
				)
			}
		}

		sum.ObjectsProcessed++
		if s.onObject != nil {
			s.onObject(idx+1, len(objects), objectName)
		}
	}

	// Every previously stored field seen again was either updated or unchanged.
	sum.FieldsStale = flagged - int64(sum.Fields.Updated+sum.Fields.Unchanged)
	logger.Info("field sync complete",
		zap.Int("inserted", sum.Fields.Inserted),
		zap.Int("updated", sum.Fields.Updated),
		zap.Int("unchanged", sum.Fields.Unchanged),
		zap.Int64("stale", sum.FieldsStale),
	)
	return nil
}

func (s *Syncer) syncFieldUsage(ctx context.Context, logger *zap.Logger, sum *Summary) error {
	auth, err := s.cli.AuthContext(ctx)
	if err != nil {
		logger.Warn("failed to authenticate, skipping field usage sync", zap.Error(err))
		sum.FieldUsageSkipped = true
		return nil
	}

	deps, err := s.newDeps(auth).FieldDependencies(ctx)
	if err != nil {
		logger.Warn("dependency query failed, skipping field usage sync", zap.Error(err))
		sum.FieldUsageSkipped = true
		return nil
	}
	logger.Info("found field dependencies", zap.Int("count", len(deps)))

	for _, d := range deps {
		result, err := s.store.UpsertFieldUsage(ctx, store.FieldUsage{
			ComponentType:    d.MetadataComponentType,
			ComponentName:    d.MetadataComponentName,
			RefComponentName: d.RefMetadataComponentName,
			RefComponentType: d.RefMetadataComponentType,
		})
		if err != nil {
			return err
		}
		sum.FieldUsage.add(result)
	}

	logger.Info("field usage sync complete",
		zap.Int("inserted", sum.FieldUsage.Inserted),
		zap.Int("updated", sum.FieldUsage.Updated),
		zap.Int("unchanged", sum.FieldUsage.Unchanged),
	)
	return nil
}

func (s *Syncer) syncFlows(ctx context.Context, logger *zap.Logger, sum *Summary) error {
	paths, err := s.cli.RetrieveFlows(ctx)
	if err != nil {
		logger.Warn("failed to retrieve flows, skipping flow sync", zap.Error(err))
		sum.FlowsSkipped = true
		return nil
	}
	logger.Info("retrieved flows", zap.Int("count", len(paths)))

	if !s.opts.KeepFlowFiles {
		defer removeFiles(logger, paths)
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		fl, err := flow.ParseFile(path)
		if err != nil {
			logger.Warn("failed to parse flow", zap.String("path", path), zap.Error(err))
			sum.FlowErrors = multierror.Append(sum.FlowErrors, err)
			continue
		}
		sum.FlowsParsed++

		for _, ref := range fl.References {
			if s.opts.VerboseFlowLogging {
				logger.Info("flow field reference",
					zap.String("flow", fl.Name),
					zap.String("status", fl.Status),
					zap.String("field", ref),
				)
			}

			result, err := s.store.UpsertFlowFieldUsage(ctx, store.FlowFieldUsage{
				FlowName:   fl.Name,
				FieldName:  ref,
				FlowStatus: fl.Status,
			})
			if err != nil {
				return err
			}
			sum.FlowUsage.add(result)
		}
	}

	logger.Info("flow sync complete",
		zap.Int("parsed", sum.FlowsParsed),
		zap.Int("failed", sum.FlowsFailed()),
		zap.Int("inserted", sum.FlowUsage.Inserted),
		zap.Int("updated", sum.FlowUsage.Updated),
		zap.Int("unchanged", sum.FlowUsage.Unchanged),
	)
	return nil
}

func removeFiles(logger *zap.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove flow file", zap.String("path", p), zap.Error(err))
		}
	}
}

package cron_manager

import (
	"context"
	"strings"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
)

// ConfigRefresher periodically pulls the catalog and corrects the engine:
// cron drift, enable/disable state, unloaded enabled rows and orphans.
// Sync is catalog -> engine only, live state is never written back.
type ConfigRefresher struct {
	manager *SchedulerManager
	catalog repository.CatalogRepository
	sweep   SweepStrategy
	logger  Logger
}

func newConfigRefresher(m *SchedulerManager, catalog repository.CatalogRepository,
	sweep SweepStrategy, logger Logger) *ConfigRefresher {
	return &ConfigRefresher{
		manager: m,
		catalog: catalog,
		sweep:   sweep,
		logger:  logger,
	}
}

func (r *ConfigRefresher) Name() string {
	return _const.ReconcileJobName
}

// Execute runs one cycle. Cycle failures are logged and never returned, the
// next firing retries from scratch.
func (r *ConfigRefresher) Execute(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("config refresh cycle failed",
			Field{Key: "failures", Val: len(multierr.Errors(err))}, Err(err))
	}
	return nil
}

// Refresh runs one reconciliation cycle and returns every per-row failure.
func (r *ConfigRefresher) Refresh(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = multierr.Append(err, errors.Newf("config refresh panic: %v", rec))
		}
	}()

	rows, err := r.catalog.List(ctx, domain.TaskFilter{})
	if err != nil {
		return errors.Wrap(err, "list catalog")
	}

	names := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		names[row.Name] = struct{}{}
		if rerr := r.reconcileRow(ctx, row); rerr != nil {
			err = multierr.Append(err, errors.Wrapf(rerr, "reconcile %s", row.Name))
		}
	}

	if len(rows) > 0 && r.sweep.ShouldSweep() {
		err = multierr.Append(err, r.sweepOrphans(names))
	}
	return err
}

func (r *ConfigRefresher) reconcileRow(ctx context.Context, row domain.JobSpec) error {
	m := r.manager
	live, ok := m.engine.LiveJob(m.jobKey(row.Name))
	if !ok {
		if !row.Enabled {
			return nil
		}
		target, found := m.lookupTarget(row.Name)
		if !found {
			// 可能是其他进程部署的任务
			return nil
		}
		return m.addSpec(row, target)
	}

	sameCron := strings.EqualFold(strings.TrimSpace(row.CronExpression), strings.TrimSpace(live.CronExpression))
	liveEnabled := live.Enabled()
	if sameCron && row.Enabled == liveEnabled {
		return nil
	}

	if (row.Enabled || liveEnabled) && !sameCron {
		if _, err := m.ModifyJob(live.TriggerName, live.TriggerGroup, row.CronExpression); err != nil {
			return err
		}
	}

	switch {
	case row.Enabled && !liveEnabled:
		r.logger.Info("resume job from catalog", String("job", row.Name))
		return m.ResumeJob(live.Name, live.Group)
	case !row.Enabled && liveEnabled:
		r.logger.Info("pause job from catalog", String("job", row.Name))
		return m.PauseJob(live.Name, live.Group)
	}
	return nil
}

// sweepOrphans deletes every live job that has no catalog row. Deleted jobs
// are gone from the engine for good and must be re-added by hand.
func (r *ConfigRefresher) sweepOrphans(names map[string]struct{}) error {
	var err error
	for _, live := range r.manager.engine.ListAll() {
		if live.Name == _const.ReconcileJobName {
			continue
		}
		if _, ok := names[live.Name]; ok {
			continue
		}

		r.logger.Warn("DANGER: deleting orphan job absent from catalog, this cannot be undone",
			String("job", live.Name), String("group", live.Group),
			String("mode", r.sweep.Mode().String()))
		if _, derr := r.manager.DeleteJob(live.Name, live.Group); derr != nil {
			err = multierr.Append(err, errors.Wrapf(derr, "delete orphan %s", live.Name))
		}
	}
	return err
}

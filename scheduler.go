package cron_manager

import (
	"context"
	"sort"
	"strings"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/cockroachdb/errors"
)

type Options func(m *SchedulerManager)

// WithPersistence 开启持久化模式, 任务配置以目录为准
func WithPersistence(catalog repository.CatalogRepository) Options {
	return func(m *SchedulerManager) {
		m.catalog = catalog
		m.persistence = catalog != nil
	}
}

// WithRunTask false 时启动阶段不加载任何任务
func WithRunTask(run bool) Options {
	return func(m *SchedulerManager) {
		m.runTask = run
	}
}

func WithGroups(jobGroup, triggerGroup string) Options {
	return func(m *SchedulerManager) {
		if jobGroup != "" {
			m.jobGroup = jobGroup
		}
		if triggerGroup != "" {
			m.triggerGroup = triggerGroup
		}
	}
}

// WithReconcileCron 配置自动刷新任务在目录中缺失时使用的表达式
func WithReconcileCron(expr string) Options {
	return func(m *SchedulerManager) {
		if strings.TrimSpace(expr) != "" {
			m.reconcileCron = expr
		}
	}
}

func WithSweepStrategy(s SweepStrategy) Options {
	return func(m *SchedulerManager) {
		if s != nil {
			m.sweep = s
		}
	}
}

// SchedulerManager translates job specs into engine calls. The persistence
// mode is fixed at construction.
type SchedulerManager struct {
	logger   Logger
	engine   Engine
	registry *Registry
	catalog  repository.CatalogRepository
	// 是否持久化模式
	persistence   bool
	runTask       bool
	jobGroup      string
	triggerGroup  string
	reconcileCron string
	sweep         SweepStrategy
	refresher     *ConfigRefresher
	// 启动加载阶段缓存目录中的任务, 加载完成后清空
	cache Cache[domain.JobSpec]
}

func NewSchedulerManager(engine Engine, registry *Registry, logger Logger, opts ...Options) *SchedulerManager {
	m := &SchedulerManager{
		logger:        logger,
		engine:        engine,
		registry:      registry,
		runTask:       true,
		jobGroup:      _const.DefaultJobGroup,
		triggerGroup:  _const.DefaultTriggerGroup,
		reconcileCron: _const.DefaultCron,
		cache:         NewLocalCache[domain.JobSpec](16),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sweep == nil {
		m.sweep = NewRandomSweep(_const.DefaultProbability, nil)
	}
	if m.persistence {
		m.refresher = newConfigRefresher(m, m.catalog, m.sweep, logger)
	}
	return m
}

// RegisterJobs loads and activates every job, then starts the engine. Any
// activation failure aborts the load and the engine is left unstarted.
func (m *SchedulerManager) RegisterJobs(ctx context.Context) error {
	if !m.runTask {
		m.logger.Info("run task disabled, no job loaded")
		return nil
	}

	names, err := m.startupNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		target, ok := m.lookupTarget(name)
		if !ok {
			m.logger.Info("task has no target in this process, skip", String("job", name))
			continue
		}
		if err = m.AddJob(ctx, name, target); err != nil {
			return errors.Wrapf(err, "register job %s", name)
		}
	}

	m.engine.Start()
	m.cache.Clear()
	m.logger.Info("scheduler started", Field{Key: "jobs", Val: len(names)},
		Field{Key: "persistence", Val: m.persistence})
	return nil
}

func (m *SchedulerManager) startupNames(ctx context.Context) ([]string, error) {
	var names []string
	if !m.persistence {
		for _, name := range m.registry.Names() {
			if name == _const.ReconcileJobName {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}

	rows, err := m.catalog.List(ctx, domain.ByStatus(_const.TaskStatusEnable))
	if err != nil {
		return nil, errors.Wrap(err, "list enabled tasks")
	}
	if len(rows) == 0 {
		m.logger.Warn("no enabled task in catalog")
	}
	for _, row := range rows {
		m.cache.Set(row.Name, row)
		names = append(names, row.Name)
	}
	if _, ok := m.cache.Get(_const.ReconcileJobName); !ok {
		m.cache.Set(_const.ReconcileJobName, domain.JobSpec{
			Name:           _const.ReconcileJobName,
			CronExpression: m.reconcileCron,
			Method:         _const.DefaultMethod,
			Enabled:        true,
		})
		names = append(names, _const.ReconcileJobName)
	}
	return names, nil
}

// AddJob activates one job unless it is already live. In persistence mode the
// job configuration comes from the catalog and the row must exist.
func (m *SchedulerManager) AddJob(ctx context.Context, name string, target Target) error {
	if strings.TrimSpace(name) == "" {
		return validationErrorf("job name is blank")
	}
	if target == nil {
		return errors.Wrapf(ErrUnsupportedTarget, "nil target for %s", name)
	}
	if m.engine.Exists(m.jobKey(name)) {
		return nil
	}

	spec, err := m.resolveSpec(ctx, name, target)
	if err != nil {
		return err
	}
	return m.activateOnce(spec, target)
}

// addSpec activates a job from an already loaded catalog row.
func (m *SchedulerManager) addSpec(spec domain.JobSpec, target Target) error {
	if m.engine.Exists(m.jobKey(spec.Name)) {
		return nil
	}
	return m.activateOnce(spec, target)
}

// activateOnce tolerates losing a race with a concurrent add of the same job.
func (m *SchedulerManager) activateOnce(spec domain.JobSpec, target Target) error {
	err := m.activate(spec, target)
	if errors.Is(err, ErrJobExists) && m.engine.Exists(m.jobKey(spec.Name)) {
		return nil
	}
	return err
}

func (m *SchedulerManager) resolveSpec(ctx context.Context, name string, target Target) (domain.JobSpec, error) {
	if !m.persistence {
		meta := target.Meta()
		if strings.TrimSpace(meta.Cron) == "" {
			return domain.JobSpec{}, validationErrorf("cron of %s is required", name)
		}
		return domain.JobSpec{
			Name:            name,
			CronExpression:  meta.Cron,
			Method:          meta.Method,
			AllowConcurrent: meta.AllowConcurrent,
			Enabled:         true,
			Description:     meta.Description,
		}, nil
	}

	if spec, ok := m.cache.Get(name); ok {
		return spec, nil
	}
	spec, ok, err := m.catalog.GetOne(ctx, domain.ByName(name))
	if err != nil {
		return domain.JobSpec{}, errors.Wrapf(err, "get task %s", name)
	}
	if !ok {
		return domain.JobSpec{}, errors.Wrapf(ErrJobNotFound, "task %s is not in catalog", name)
	}
	return spec, nil
}

func (m *SchedulerManager) activate(spec domain.JobSpec, target Target) error {
	run, err := resolveRun(target, spec.Method)
	if err != nil {
		return errors.Wrapf(err, "resolve target of %s", spec.Name)
	}

	err = m.engine.ScheduleCron(JobDefinition{
		Key:             m.jobKey(spec.Name),
		Trigger:         m.triggerKey(spec.Name),
		CronExpression:  spec.CronExpression,
		Description:     spec.Description,
		AllowConcurrent: spec.AllowConcurrent,
		Run:             run,
	})
	if err != nil {
		return err
	}

	msg := "load job(RAM)"
	if m.persistence {
		msg = "load job(DB)"
	}
	m.logger.Info(msg, String("job", spec.Name), String("cron", spec.CronExpression),
		Field{Key: "allowConcurrent", Val: spec.AllowConcurrent})
	return nil
}

// ModifyJob replaces the cron of a live trigger. A missing trigger is
// RescheduleNotFound without error.
func (m *SchedulerManager) ModifyJob(triggerName, triggerGroup, cronExpr string) (RescheduleResult, error) {
	res, err := m.engine.Reschedule(TriggerKey{Name: triggerName, Group: triggerGroup}, cronExpr)
	if err != nil {
		return res, err
	}
	if res == RescheduleChanged {
		m.logger.Info("modify job cron", String("trigger", triggerName), String("cron", cronExpr))
	}
	return res, nil
}

func (m *SchedulerManager) PauseJob(name, group string) error {
	key := JobKey{Name: name, Group: group}
	if !m.engine.Exists(key) {
		m.logger.Info("pause ignored, job not loaded", String("job", name))
		return nil
	}
	return m.engine.Pause(key)
}

func (m *SchedulerManager) ResumeJob(name, group string) error {
	key := JobKey{Name: name, Group: group}
	if !m.engine.Exists(key) {
		m.logger.Info("resume ignored, job not loaded", String("job", name))
		return nil
	}
	return m.engine.Resume(key)
}

func (m *SchedulerManager) RunJobNow(name, group string) error {
	key := JobKey{Name: name, Group: group}
	if !m.engine.Exists(key) {
		m.logger.Info("run now ignored, job not loaded", String("job", name))
		return nil
	}
	return m.engine.TriggerNow(key)
}

func (m *SchedulerManager) DeleteJob(name, group string) (bool, error) {
	return m.engine.Delete(JobKey{Name: name, Group: group})
}

func (m *SchedulerManager) PauseAll() error {
	return m.engine.PauseAll()
}

func (m *SchedulerManager) ResumeAll() error {
	return m.engine.ResumeAll()
}

func (m *SchedulerManager) IsLoaded(name, group string) bool {
	return m.engine.Exists(JobKey{Name: name, Group: group})
}

func (m *SchedulerManager) GetJob(name, group string) (domain.LiveJobView, bool, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(group) == "" {
		return domain.LiveJobView{}, false, validationErrorf("job name or job group is blank")
	}
	v, ok := m.engine.LiveJob(JobKey{Name: name, Group: group})
	return v, ok, nil
}

func (m *SchedulerManager) ListJobs() []domain.LiveJobView {
	return m.engine.ListAll()
}

func (m *SchedulerManager) TriggerState(triggerName, triggerGroup string) _const.TriggerState {
	return m.engine.TriggerState(TriggerKey{Name: triggerName, Group: triggerGroup})
}

// Stop stops the engine, waiting for running executions until ctx is done.
func (m *SchedulerManager) Stop(ctx context.Context) error {
	return m.engine.Stop(ctx)
}

func (m *SchedulerManager) Persistence() bool { return m.persistence }

func (m *SchedulerManager) Catalog() repository.CatalogRepository { return m.catalog }

func (m *SchedulerManager) JobGroup() string { return m.jobGroup }

func (m *SchedulerManager) TriggerGroup() string { return m.triggerGroup }

// Refresher is the reconciliation job, nil unless persistence is enabled.
func (m *SchedulerManager) Refresher() *ConfigRefresher { return m.refresher }

// lookupTarget resolves a job name to its target. The reconciliation job is
// owned by the manager and only exists in persistence mode.
func (m *SchedulerManager) lookupTarget(name string) (Target, bool) {
	if name == _const.ReconcileJobName {
		if m.refresher == nil {
			return nil, false
		}
		return &DirectJob{Job: m.refresher, Task: TaskMeta{Cron: m.reconcileCron}}, true
	}
	return m.registry.Lookup(name)
}

func (m *SchedulerManager) jobKey(name string) JobKey {
	return JobKey{Name: name, Group: m.jobGroup}
}

func (m *SchedulerManager) triggerKey(name string) TriggerKey {
	return TriggerKey{Name: name, Group: m.triggerGroup}
}

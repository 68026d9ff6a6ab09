package cron_manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/TimeWtr/cron_manager/repository/dao"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) repository.CatalogRepository {
	t.Helper()
	db, err := dao.Open(":memory:")
	require.NoError(t, err)
	return repository.NewCatalogRepository(dao.NewTaskDAO(db))
}

func newTestEngine(t *testing.T, opts ...EngineOptions) *CronEngine {
	t.Helper()
	e := NewCronEngine(NewNopLogger(), opts...)
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
	})
	return e
}

func saveRow(t *testing.T, catalog repository.CatalogRepository, spec domain.JobSpec) {
	t.Helper()
	require.NoError(t, catalog.Save(context.Background(), spec))
}

func mustRow(t *testing.T, catalog repository.CatalogRepository, name string) domain.JobSpec {
	t.Helper()
	spec, ok, err := catalog.GetOne(context.Background(), domain.ByName(name))
	require.NoError(t, err)
	require.True(t, ok, "row %s", name)
	return spec
}

func defaultKey(name string) JobKey {
	return JobKey{Name: name, Group: _const.DefaultJobGroup}
}

func defaultTrigger(name string) TriggerKey {
	return TriggerKey{Name: name, Group: _const.DefaultTriggerGroup}
}

// countingJob counts executions.
type countingJob struct {
	name  string
	count atomic.Int32
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Execute(ctx context.Context) error {
	c.count.Add(1)
	return nil
}

func directJob(name, cron string) (*countingJob, *DirectJob) {
	job := &countingJob{name: name}
	return job, &DirectJob{Job: job, Task: TaskMeta{Cron: cron, Description: name + " job"}}
}

// memRecorder keeps every execution record.
type memRecorder struct {
	mu   sync.Mutex
	recs []domain.ExecutionRecord
}

func (m *memRecorder) Record(rec domain.ExecutionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
}

func (m *memRecorder) records() []domain.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), m.recs...)
}

// countingEngine counts the state-changing calls made on the wrapped engine.
type countingEngine struct {
	Engine
	mu    sync.Mutex
	calls map[string]int
}

func newCountingEngine(e Engine) *countingEngine {
	return &countingEngine{Engine: e, calls: map[string]int{}}
}

func (c *countingEngine) inc(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *countingEngine) mutations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingEngine) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingEngine) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = map[string]int{}
}

func (c *countingEngine) ScheduleCron(def JobDefinition) error {
	c.inc("schedule")
	return c.Engine.ScheduleCron(def)
}

func (c *countingEngine) Reschedule(trigger TriggerKey, expr string) (RescheduleResult, error) {
	c.inc("reschedule")
	return c.Engine.Reschedule(trigger, expr)
}

func (c *countingEngine) Pause(key JobKey) error {
	c.inc("pause")
	return c.Engine.Pause(key)
}

func (c *countingEngine) Resume(key JobKey) error {
	c.inc("resume")
	return c.Engine.Resume(key)
}

func (c *countingEngine) PauseAll() error {
	c.inc("pauseAll")
	return c.Engine.PauseAll()
}

func (c *countingEngine) ResumeAll() error {
	c.inc("resumeAll")
	return c.Engine.ResumeAll()
}

func (c *countingEngine) Delete(key JobKey) (bool, error) {
	c.inc("delete")
	return c.Engine.Delete(key)
}

func (c *countingEngine) TriggerNow(key JobKey) error {
	c.inc("trigger")
	return c.Engine.TriggerNow(key)
}

func (c *countingEngine) Start() {
	c.inc("start")
	c.Engine.Start()
}

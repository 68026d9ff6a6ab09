package cron_manager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// JobKey 任务标识
type JobKey struct {
	Name  string
	Group string
}

// TriggerKey 触发器标识
type TriggerKey struct {
	Name  string
	Group string
}

// JobDefinition is what the manager hands to the engine to schedule one job.
type JobDefinition struct {
	Key     JobKey
	Trigger TriggerKey
	// CronExpression 调度表达式, 支持可选的秒字段和 ? 占位符
	CronExpression string
	Description    string
	// AllowConcurrent false 时同一任务同一时刻最多只有一个执行在进行, 重叠的触发被丢弃
	AllowConcurrent bool
	Run             ExecutorFunc
}

type RescheduleResult int

const (
	RescheduleNotFound RescheduleResult = iota
	RescheduleUnchanged
	RescheduleChanged
)

func (r RescheduleResult) String() string {
	switch r {
	case RescheduleNotFound:
		return "NotFound"
	case RescheduleUnchanged:
		return "Unchanged"
	case RescheduleChanged:
		return "Changed"
	default:
		return "Unknown"
	}
}

// Engine is the scheduling engine the manager drives. Implementations are safe
// for concurrent use.
type Engine interface {
	ScheduleCron(def JobDefinition) error
	// Reschedule replaces the cron of the trigger. An expression equal to the
	// held one (trimmed, case-insensitive) is Unchanged.
	Reschedule(trigger TriggerKey, expr string) (RescheduleResult, error)
	Pause(key JobKey) error
	Resume(key JobKey) error
	PauseAll() error
	ResumeAll() error
	Delete(key JobKey) (bool, error)
	TriggerNow(key JobKey) error
	Exists(key JobKey) bool
	LiveJob(key JobKey) (domain.LiveJobView, bool)
	ListAll() []domain.LiveJobView
	TriggerState(trigger TriggerKey) _const.TriggerState
	Start()
	Stop(ctx context.Context) error
}

// Recorder receives one record per firing.
type Recorder interface {
	Record(rec domain.ExecutionRecord)
}

type EngineOptions func(e *CronEngine)

// WithEngineLimiter 限制整个引擎同时执行的任务数量
func WithEngineLimiter(limiter int64) EngineOptions {
	return func(e *CronEngine) {
		if limiter > 0 {
			e.limiter = semaphore.NewWeighted(limiter)
		}
	}
}

func WithEngineLocation(loc *time.Location) EngineOptions {
	return func(e *CronEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithRecorder(r Recorder) EngineOptions {
	return func(e *CronEngine) {
		e.recorder = r
	}
}

type cronEntry struct {
	key             JobKey
	trigger         TriggerKey
	description     string
	allowConcurrent bool
	run             ExecutorFunc

	// 以下字段由CronEngine.mu保护
	expr     string
	schedule cron.Schedule
	entryID  cron.EntryID
	paused   bool

	guard    *jobGuard
	prevFire atomic.Int64
}

// jobGuard 按任务标识保存重入保护和执行计数, 删除后重新添加的同名任务沿用同一个guard,
// 直到最后一个执行结束
type jobGuard struct {
	sem *semaphore.Weighted
	// 由CronEngine.mu保护
	running int32
}

// CronEngine adapts robfig/cron to Engine. Paused triggers are removed from
// the cron and re-added on resume.
type CronEngine struct {
	mu       sync.Mutex
	c        *cron.Cron
	logger   Logger
	loc      *time.Location
	limiter  *semaphore.Weighted
	recorder Recorder

	entries  map[JobKey]*cronEntry
	triggers map[TriggerKey]JobKey
	guards   map[JobKey]*jobGuard
	started  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	// 立即执行的任务
	manual sync.WaitGroup
}

func NewCronEngine(logger Logger, opts ...EngineOptions) *CronEngine {
	e := &CronEngine{
		logger:   logger,
		loc:      time.Local,
		entries:  map[JobKey]*cronEntry{},
		triggers: map[TriggerKey]JobKey{},
		guards:   map[JobKey]*jobGuard{},
	}
	for _, opt := range opts {
		opt(e)
	}

	cl := cronLogger{l: logger}
	e.c = cron.New(
		cron.WithParser(_const.Parser),
		cron.WithLocation(e.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

func (e *CronEngine) ScheduleCron(def JobDefinition) error {
	name := def.Key.Name
	if strings.TrimSpace(name) == "" {
		return engineErr("schedule", name, validationErrorf("blank job name"))
	}
	if def.Run == nil {
		return engineErr("schedule", name, errors.Wrap(ErrUnsupportedTarget, "nil run function"))
	}
	if def.Trigger == (TriggerKey{}) {
		def.Trigger = TriggerKey(def.Key)
	}

	expr := strings.TrimSpace(def.CronExpression)
	schedule, err := _const.Parser.Parse(expr)
	if err != nil {
		return engineErr("schedule", name, errors.Wrapf(ErrInvalidCron, "%q: %v", expr, err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return engineErr("schedule", name, ErrEngineStopped)
	}
	if _, ok := e.entries[def.Key]; ok {
		return engineErr("schedule", name, ErrJobExists)
	}
	if _, ok := e.triggers[def.Trigger]; ok {
		return engineErr("schedule", name, errors.Wrapf(ErrJobExists, "trigger %s.%s", def.Trigger.Group, def.Trigger.Name))
	}

	ent := &cronEntry{
		key:             def.Key,
		trigger:         def.Trigger,
		description:     def.Description,
		allowConcurrent: def.AllowConcurrent,
		run:             def.Run,
		expr:            expr,
		schedule:        schedule,
	}
	g, ok := e.guards[def.Key]
	if !ok {
		g = &jobGuard{sem: semaphore.NewWeighted(1)}
		e.guards[def.Key] = g
	}
	ent.guard = g
	ent.entryID = e.c.Schedule(schedule, e.cronJob(ent))
	e.entries[def.Key] = ent
	e.triggers[def.Trigger] = def.Key
	return nil
}

func (e *CronEngine) Reschedule(trigger TriggerKey, expr string) (RescheduleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.triggers[trigger]
	if !ok {
		return RescheduleNotFound, nil
	}
	ent := e.entries[key]

	expr = strings.TrimSpace(expr)
	if strings.EqualFold(ent.expr, expr) {
		return RescheduleUnchanged, nil
	}
	schedule, err := _const.Parser.Parse(expr)
	if err != nil {
		return RescheduleNotFound, engineErr("reschedule", key.Name, errors.Wrapf(ErrInvalidCron, "%q: %v", expr, err))
	}
	if e.stopped {
		return RescheduleNotFound, engineErr("reschedule", key.Name, ErrEngineStopped)
	}

	ent.expr = expr
	ent.schedule = schedule
	// 暂停中的任务只替换表达式, 恢复时按新表达式调度
	if !ent.paused {
		e.c.Remove(ent.entryID)
		ent.entryID = e.c.Schedule(schedule, e.cronJob(ent))
	}
	return RescheduleChanged, nil
}

func (e *CronEngine) Pause(key JobKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[key]
	if !ok {
		return engineErr("pause", key.Name, ErrJobNotFound)
	}
	e.pauseLocked(ent)
	return nil
}

func (e *CronEngine) Resume(key JobKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[key]
	if !ok {
		return engineErr("resume", key.Name, ErrJobNotFound)
	}
	if e.stopped {
		return engineErr("resume", key.Name, ErrEngineStopped)
	}
	e.resumeLocked(ent)
	return nil
}

func (e *CronEngine) PauseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.entries {
		e.pauseLocked(ent)
	}
	return nil
}

func (e *CronEngine) ResumeAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return engineErr("resume all", "", ErrEngineStopped)
	}
	for _, ent := range e.entries {
		e.resumeLocked(ent)
	}
	return nil
}

func (e *CronEngine) pauseLocked(ent *cronEntry) {
	if ent.paused {
		return
	}
	e.c.Remove(ent.entryID)
	ent.entryID = 0
	ent.paused = true
}

func (e *CronEngine) resumeLocked(ent *cronEntry) {
	if !ent.paused {
		return
	}
	ent.entryID = e.c.Schedule(ent.schedule, e.cronJob(ent))
	ent.paused = false
}

// Delete unschedules the job. A firing already running is not interrupted.
func (e *CronEngine) Delete(key JobKey) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[key]
	if !ok {
		return false, nil
	}
	if !ent.paused {
		e.c.Remove(ent.entryID)
	}
	delete(e.entries, key)
	delete(e.triggers, ent.trigger)
	if ent.guard.running == 0 {
		delete(e.guards, key)
	}
	return true, nil
}

// TriggerNow fires the job once, outside of its schedule. The call returns as
// soon as the firing has been admitted; a non-reentrant job already running
// is skipped.
func (e *CronEngine) TriggerNow(key JobKey) error {
	e.mu.Lock()
	ent, ok := e.entries[key]
	stopped := e.stopped
	admitted := false
	if ok && !stopped {
		admitted = e.admitLocked(ent)
		if admitted {
			e.manual.Add(1)
		}
	}
	e.mu.Unlock()
	if !ok {
		return engineErr("trigger", key.Name, ErrJobNotFound)
	}
	if stopped {
		return engineErr("trigger", key.Name, ErrEngineStopped)
	}

	if !admitted {
		e.skip(ent, true)
		return nil
	}
	go func() {
		defer e.manual.Done()
		e.execute(ent, true)
	}()
	return nil
}

func (e *CronEngine) Exists(key JobKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.entries[key]
	return ok
}

func (e *CronEngine) LiveJob(key JobKey) (domain.LiveJobView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[key]
	if !ok {
		return domain.LiveJobView{}, false
	}
	return e.viewLocked(ent, time.Now()), true
}

// ListAll returns every live job ordered by group and name.
func (e *CronEngine) ListAll() []domain.LiveJobView {
	e.mu.Lock()
	now := time.Now()
	res := make([]domain.LiveJobView, 0, len(e.entries))
	for _, ent := range e.entries {
		res = append(res, e.viewLocked(ent, now))
	}
	e.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Group != res[j].Group {
			return res[i].Group < res[j].Group
		}
		return res[i].Name < res[j].Name
	})
	return res
}

func (e *CronEngine) TriggerState(trigger TriggerKey) _const.TriggerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.triggers[trigger]
	if !ok {
		return _const.TriggerStateNone
	}
	return e.stateLocked(e.entries[key], time.Now())
}

func (e *CronEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	e.c.Start()
}

// Stop stops firing and waits for running executions until ctx is done. The
// context handed to executions is cancelled on return.
func (e *CronEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	defer e.cancel()

	done := make(chan struct{})
	go func() {
		<-e.c.Stop().Done()
		e.manual.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *CronEngine) viewLocked(ent *cronEntry, now time.Time) domain.LiveJobView {
	v := domain.LiveJobView{
		Name:            ent.key.Name,
		Group:           ent.key.Group,
		TriggerName:     ent.trigger.Name,
		TriggerGroup:    ent.trigger.Group,
		CronExpression:  ent.expr,
		TriggerState:    e.stateLocked(ent, now),
		AllowConcurrent: ent.allowConcurrent,
		Description:     ent.description,
	}
	if !ent.paused {
		v.NextFireTime = ent.schedule.Next(now.In(e.loc))
	}
	if prev := ent.prevFire.Load(); prev > 0 {
		v.PrevFireTime = time.Unix(0, prev).In(e.loc)
	}
	return v
}

func (e *CronEngine) stateLocked(ent *cronEntry, now time.Time) _const.TriggerState {
	switch {
	case ent.paused:
		return _const.TriggerStatePaused
	case !ent.allowConcurrent && ent.guard.running > 0:
		return _const.TriggerStateBlocked
	case ent.schedule.Next(now.In(e.loc)).IsZero():
		return _const.TriggerStateComplete
	default:
		return _const.TriggerStateNormal
	}
}

func (e *CronEngine) cronJob(ent *cronEntry) cron.Job {
	return cron.FuncJob(func() {
		e.mu.Lock()
		// 触发已在Pause或Delete之前派发
		if e.entries[ent.key] != ent || ent.paused {
			e.mu.Unlock()
			return
		}
		admitted := e.admitLocked(ent)
		e.mu.Unlock()

		if !admitted {
			e.skip(ent, false)
			return
		}
		e.execute(ent, false)
	})
}

// admitLocked admits one firing. It fails only for a non-reentrant job whose
// previous firing, possibly of a deleted entry with the same key, still holds
// the guard.
func (e *CronEngine) admitLocked(ent *cronEntry) bool {
	if !ent.allowConcurrent && !ent.guard.sem.TryAcquire(1) {
		return false
	}
	ent.guard.running++
	return true
}

func (e *CronEngine) release(ent *cronEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := ent.guard
	g.running--
	if !ent.allowConcurrent {
		g.sem.Release(1)
	}
	if _, ok := e.entries[ent.key]; !ok && g.running == 0 && e.guards[ent.key] == g {
		delete(e.guards, ent.key)
	}
}

func (e *CronEngine) skip(ent *cronEntry, manual bool) {
	e.logger.Debug("skip firing, previous execution still running",
		String("job", ent.key.Name), String("group", ent.key.Group))
	e.record(domain.ExecutionRecord{
		JobName:   ent.key.Name,
		Group:     ent.key.Group,
		Manual:    manual,
		Skipped:   true,
		StartedAt: time.Now(),
	})
}

func (e *CronEngine) execute(ent *cronEntry, manual bool) {
	defer e.release(ent)

	if e.limiter != nil {
		if err := e.limiter.Acquire(e.ctx, 1); err != nil {
			e.record(domain.ExecutionRecord{
				JobName:   ent.key.Name,
				Group:     ent.key.Group,
				Manual:    manual,
				StartedAt: time.Now(),
				Error:     err.Error(),
			})
			return
		}
		defer e.limiter.Release(1)
	}

	start := time.Now()
	ent.prevFire.Store(start.UnixNano())
	err := safeRun(e.ctx, ent.run)
	rec := domain.ExecutionRecord{
		JobName:   ent.key.Name,
		Group:     ent.key.Group,
		Manual:    manual,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		rec.Error = err.Error()
		e.logger.Error("failed to execute job",
			String("job", ent.key.Name), String("group", ent.key.Group), Err(err))
	}
	e.record(rec)
}

func (e *CronEngine) record(rec domain.ExecutionRecord) {
	if e.recorder != nil {
		e.recorder.Record(rec)
	}
}

func safeRun(ctx context.Context, fn ExecutorFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

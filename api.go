package cron_manager

import (
	"context"
	"fmt"
	"strings"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/cockroachdb/errors"
)

const (
	msgEmptyResult  = "empty result set"
	msgNoJobs       = "all jobs does not exist"
	msgCronIsNull   = "cron is null, ignore update scheduler operation"
	msgNotModified  = "job is not modified"
	msgTargetAbsent = "the task to be run is empty"
)

// JobRequest 管理接口的请求参数
type JobRequest struct {
	JobName        string
	JobGroup       string
	Trigger        string
	TriggerGroup   string
	CronExpression string
	Method         string
	// AllowConcurrent/Description 为nil时不更新
	AllowConcurrent *bool
	Description     *string
}

// Result 管理接口的响应
type Result[T any] struct {
	Code    _const.ResultCode
	Message string
	Data    T
}

func (r Result[T]) Success() bool {
	return r.Code == _const.ResultSuccess
}

func successResult[T any](data T, msg string) Result[T] {
	if msg == "" {
		msg = _const.ResultSuccess.String()
	}
	return Result[T]{Code: _const.ResultSuccess, Message: msg, Data: data}
}

func failResult[T any](data T, msg string) Result[T] {
	return Result[T]{Code: _const.ResultFail, Message: msg, Data: data}
}

// TaskManagerAPI is the administrative surface a transport binds to. Every
// operation returns a Result, errors and panics never escape. In persistence mode the catalog is
// written before the engine, so a concurrent refresh cycle sees the new state.
type TaskManagerAPI struct {
	manager *SchedulerManager
	catalog repository.CatalogRepository
	logger  Logger
}

func NewTaskManagerAPI(manager *SchedulerManager, logger Logger) *TaskManagerAPI {
	return &TaskManagerAPI{
		manager: manager,
		catalog: manager.Catalog(),
		logger:  logger,
	}
}

func (a *TaskManagerAPI) RunJobNow(ctx context.Context, req JobRequest) (res Result[bool]) {
	defer a.recoverResult("runJobNow", &res)
	if err := a.verify(req, "runJobNow"); err != nil {
		return apiFail(a.logger, false, "runJobNow", err)
	}

	name, group := req.JobName, req.JobGroup
	if !a.manager.IsLoaded(name, group) {
		target, ok := a.manager.lookupTarget(name)
		if !ok {
			return failResult(false, msgTargetAbsent)
		}
		if a.manager.Persistence() {
			if _, err := a.catalog.Update(ctx, domain.SetStatus(_const.TaskStatusEnable),
				domain.ByName(name).WithStatus(_const.TaskStatusDisable)); err != nil {
				return apiFail(a.logger, false, "runJobNow", err)
			}
		}
		if err := a.manager.AddJob(ctx, name, target); err != nil {
			return apiFail(a.logger, false, "runJobNow", err)
		}
	}

	if err := a.manager.RunJobNow(name, group); err != nil {
		return apiFail(a.logger, false, "runJobNow", err)
	}
	a.logger.Info("api response, runJobNow successfully", String("job", name), String("group", group))
	return successResult(true, "")
}

// ModifyJob updates the catalog columns present in req and reschedules the
// live trigger when a cron is given. Method and concurrency changes only take
// effect on the next process start.
func (a *TaskManagerAPI) ModifyJob(ctx context.Context, req JobRequest) (res Result[bool]) {
	defer a.recoverResult("modifyJob", &res)
	a.logger.Info("api request, modifyJob", String("trigger", req.Trigger),
		String("triggerGroup", req.TriggerGroup), String("cron", req.CronExpression),
		Field{Key: "persistence", Val: a.manager.Persistence()})
	if isBlank(req.Trigger) || isBlank(req.TriggerGroup) {
		return apiFail(a.logger, false, "modifyJob", validationErrorf("trigger name or group is null"))
	}
	cronExpr := strings.TrimSpace(req.CronExpression)
	if cronExpr != "" {
		if _, err := _const.Parser.Parse(cronExpr); err != nil {
			return apiFail(a.logger, false, "modifyJob", errors.Mark(
				errors.Wrapf(ErrInvalidCron, "%q: %v", cronExpr, err), ErrValidation))
		}
	}

	updated := false
	if a.manager.Persistence() {
		update := domain.TaskUpdate{
			AllowConcurrent: req.AllowConcurrent,
			Description:     req.Description,
		}
		if cronExpr != "" {
			update.CronExpression = &cronExpr
		}
		if method := strings.TrimSpace(req.Method); method != "" {
			update.Method = &method
		}
		if !update.IsEmpty() {
			var err error
			updated, err = a.catalog.Update(ctx, update, domain.ByName(req.Trigger))
			if err != nil {
				return apiFail(a.logger, false, "modifyJob", err)
			}
		}
	}

	if cronExpr == "" {
		return successResult(true, msgCronIsNull)
	}
	rescheduled, err := a.manager.ModifyJob(req.Trigger, req.TriggerGroup, cronExpr)
	if err != nil {
		return apiFail(a.logger, false, "modifyJob", err)
	}
	a.logger.Info("api response, modifyJob", String("trigger", req.Trigger),
		Field{Key: "catalog", Val: updated}, String("scheduler", rescheduled.String()))
	if updated || rescheduled == RescheduleChanged {
		return successResult(true, "")
	}
	return failResult(false, msgNotModified)
}

func (a *TaskManagerAPI) PauseJob(ctx context.Context, req JobRequest) (res Result[bool]) {
	defer a.recoverResult("pauseJob", &res)
	if err := a.verify(req, "pauseJob"); err != nil {
		return apiFail(a.logger, false, "pauseJob", err)
	}
	name, group := req.JobName, req.JobGroup
	if !a.manager.IsLoaded(name, group) {
		return failResult(false, notLoadedMessage(name))
	}

	if a.manager.Persistence() {
		if _, err := a.catalog.Update(ctx, domain.SetStatus(_const.TaskStatusDisable),
			domain.ByName(name).WithStatus(_const.TaskStatusEnable)); err != nil {
			return apiFail(a.logger, false, "pauseJob", err)
		}
	}
	if err := a.manager.PauseJob(name, group); err != nil {
		return apiFail(a.logger, false, "pauseJob", err)
	}
	a.logger.Info("api response, pauseJob successfully", String("job", name), String("group", group))
	return successResult(true, "")
}

func (a *TaskManagerAPI) PauseAll(ctx context.Context) (res Result[bool]) {
	defer a.recoverResult("pauseAll", &res)
	a.logger.Info("api request, pause all jobs", Field{Key: "persistence", Val: a.manager.Persistence()})
	if a.manager.Persistence() {
		if _, err := a.catalog.Update(ctx, domain.SetStatus(_const.TaskStatusDisable),
			domain.ByStatus(_const.TaskStatusEnable)); err != nil {
			return apiFail(a.logger, false, "pauseAll", err)
		}
	}
	if err := a.manager.PauseAll(); err != nil {
		return apiFail(a.logger, false, "pauseAll", err)
	}
	return successResult(true, "")
}

// ResumeJob may target a job not loaded yet: it is activated from the
// registry when this process has a target for it.
func (a *TaskManagerAPI) ResumeJob(ctx context.Context, req JobRequest) (res Result[bool]) {
	defer a.recoverResult("resumeJob", &res)
	if err := a.verify(req, "resumeJob"); err != nil {
		return apiFail(a.logger, false, "resumeJob", err)
	}
	name, group := req.JobName, req.JobGroup

	updated := false
	if a.manager.Persistence() {
		var err error
		updated, err = a.catalog.Update(ctx, domain.SetStatus(_const.TaskStatusEnable),
			domain.ByName(name).WithStatus(_const.TaskStatusDisable))
		if err != nil {
			return apiFail(a.logger, false, "resumeJob", err)
		}
	}

	loaded := a.manager.IsLoaded(name, group)
	if !loaded {
		if target, ok := a.manager.lookupTarget(name); ok {
			if err := a.manager.AddJob(ctx, name, target); err != nil {
				return apiFail(a.logger, false, "resumeJob", err)
			}
			loaded = true
		}
	}
	if !loaded && !updated {
		return failResult(false, notLoadedMessage(name))
	}

	if err := a.manager.ResumeJob(name, group); err != nil {
		return apiFail(a.logger, false, "resumeJob", err)
	}
	a.logger.Info("api response, resumeJob successfully", String("job", name), String("group", group))
	return successResult(true, "")
}

func (a *TaskManagerAPI) ResumeAll(ctx context.Context) (res Result[bool]) {
	defer a.recoverResult("resumeAll", &res)
	a.logger.Info("api request, resume all jobs", Field{Key: "persistence", Val: a.manager.Persistence()})
	if a.manager.Persistence() {
		if _, err := a.catalog.Update(ctx, domain.SetStatus(_const.TaskStatusEnable),
			domain.ByStatus(_const.TaskStatusDisable)); err != nil {
			return apiFail(a.logger, false, "resumeAll", err)
		}
	}
	if err := a.manager.ResumeAll(); err != nil {
		return apiFail(a.logger, false, "resumeAll", err)
	}
	return successResult(true, "")
}

// DeleteJob removes the catalog row and the live job. Absence on either side
// is not a failure.
func (a *TaskManagerAPI) DeleteJob(ctx context.Context, req JobRequest) (res Result[bool]) {
	defer a.recoverResult("deleteJob", &res)
	if err := a.verify(req, "deleteJob"); err != nil {
		return apiFail(a.logger, false, "deleteJob", err)
	}
	name, group := req.JobName, req.JobGroup

	removed := false
	if a.manager.Persistence() {
		var err error
		removed, err = a.catalog.Remove(ctx, domain.ByName(name))
		if err != nil {
			return apiFail(a.logger, false, "deleteJob", err)
		}
	}
	deleted, err := a.manager.DeleteJob(name, group)
	if err != nil {
		return apiFail(a.logger, false, "deleteJob", err)
	}
	a.logger.Info("api response, deleteJob", String("job", name),
		Field{Key: "catalog", Val: removed}, Field{Key: "scheduler", Val: deleted})
	return successResult(true, "")
}

func (a *TaskManagerAPI) GetJobMessage(ctx context.Context, req JobRequest) (res Result[*domain.JobInfo]) {
	defer a.recoverResult("getJobMessage", &res)
	if err := a.verify(req, "getJobMessage"); err != nil {
		return apiFail[*domain.JobInfo](a.logger, nil, "getJobMessage", err)
	}

	info := &domain.JobInfo{}
	if a.manager.Persistence() {
		spec, ok, err := a.catalog.GetOne(ctx, domain.ByName(req.JobName))
		if err != nil {
			return apiFail[*domain.JobInfo](a.logger, nil, "getJobMessage", err)
		}
		if ok {
			a.applySpec(info, spec)
		}
	}
	live, ok, err := a.manager.GetJob(req.JobName, req.JobGroup)
	if err != nil {
		return apiFail[*domain.JobInfo](a.logger, nil, "getJobMessage", err)
	}
	if ok {
		info.ApplyLive(live)
	}

	if info.JobName == "" {
		return successResult[*domain.JobInfo](nil, msgEmptyResult)
	}
	return successResult(info, "")
}

// ListJobMessages merges catalog rows and live jobs by name. Live jobs without
// a row are listed after the rows.
func (a *TaskManagerAPI) ListJobMessages(ctx context.Context) (res Result[[]domain.JobInfo]) {
	defer a.recoverResult("listJobMessages", &res)
	a.logger.Info("api request, list all jobs")

	lives := a.manager.ListJobs()
	var infos []domain.JobInfo
	index := map[string]int{}
	if a.manager.Persistence() {
		rows, err := a.catalog.List(ctx, domain.TaskFilter{})
		if err != nil {
			return apiFail[[]domain.JobInfo](a.logger, nil, "listJobMessages", err)
		}
		if len(rows) == 0 && len(lives) == 0 {
			return failResult[[]domain.JobInfo](nil, msgNoJobs)
		}
		infos = make([]domain.JobInfo, 0, len(rows)+len(lives))
		for _, row := range rows {
			var info domain.JobInfo
			a.applySpec(&info, row)
			index[row.Name] = len(infos)
			infos = append(infos, info)
		}
	}

	for _, live := range lives {
		if i, ok := index[live.Name]; ok && live.Group == a.manager.JobGroup() {
			infos[i].ApplyLive(live)
			continue
		}
		var info domain.JobInfo
		info.ApplyLive(live)
		infos = append(infos, info)
	}

	a.logger.Info("api response, list all jobs", Field{Key: "size", Val: len(infos)})
	if len(infos) == 0 {
		return successResult[[]domain.JobInfo](nil, msgEmptyResult)
	}
	return successResult(infos, "")
}

// applySpec fills a view from a catalog row. Rows live in the default groups.
func (a *TaskManagerAPI) applySpec(info *domain.JobInfo, spec domain.JobSpec) {
	info.ApplySpec(spec)
	info.JobGroup = a.manager.JobGroup()
	info.TriggerGroup = a.manager.TriggerGroup()
}

func (a *TaskManagerAPI) verify(req JobRequest, op string) error {
	a.logger.Info("api request, "+op, String("job", req.JobName), String("group", req.JobGroup),
		Field{Key: "persistence", Val: a.manager.Persistence()})
	if isBlank(req.JobName) || isBlank(req.JobGroup) {
		return validationErrorf("job name or job group is null")
	}
	return nil
}

func (a *TaskManagerAPI) recoverResult(op string, res any) {
	r := recover()
	if r == nil {
		return
	}
	err := errors.Newf("%s panic: %v", op, r)
	a.logger.Error("api invoke failed", String("op", op), Err(err))
	switch rr := res.(type) {
	case *Result[bool]:
		*rr = failResult(false, err.Error())
	case *Result[*domain.JobInfo]:
		*rr = failResult[*domain.JobInfo](nil, err.Error())
	case *Result[[]domain.JobInfo]:
		*rr = failResult[[]domain.JobInfo](nil, err.Error())
	}
}

func notLoadedMessage(name string) string {
	return fmt.Sprintf("%s is not loaded by the scheduler, ignore this operation", name)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func apiFail[T any](logger Logger, data T, op string, err error) Result[T] {
	logger.Error("api invoke failed", String("op", op), Err(err))
	return failResult(data, err.Error())
}

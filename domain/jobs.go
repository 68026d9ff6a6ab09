package domain

import (
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
)

// JobSpec is the declarative definition of one job, as held by the catalog.
type JobSpec struct {
	// Name 任务名, 在默认分组内唯一
	Name string
	// CronExpression cron表达式
	CronExpression string
	// Method 方法型任务执行的方法名
	Method string
	// AllowConcurrent 是否允许同一任务的多次触发并行执行
	AllowConcurrent bool
	// Enabled 是否启用
	Enabled bool
	// Description 任务描述
	Description string
	// CreatedTime 创建时间
	CreatedTime time.Time
	// UpdatedTime 更新时间
	UpdatedTime time.Time
}

func (s JobSpec) Status() _const.TaskStatus {
	return _const.StatusOf(s.Enabled)
}

// LiveJobView is a read-only snapshot of what the engine currently holds for a job.
type LiveJobView struct {
	Name           string
	Group          string
	TriggerName    string
	TriggerGroup   string
	CronExpression string
	TriggerState   _const.TriggerState
	// AllowConcurrent false means the engine runs the job behind a non-reentrant guard.
	AllowConcurrent bool
	Description     string
	// NextFireTime/PrevFireTime are zero while the trigger is paused or never fired.
	NextFireTime time.Time
	PrevFireTime time.Time
}

// Enabled is derived from the trigger state: NORMAL or BLOCKED.
func (v LiveJobView) Enabled() bool {
	return v.TriggerState.Enabled()
}

func (v LiveJobView) Status() _const.TaskStatus {
	return _const.StatusOf(v.Enabled())
}

// JobInfo is the merged view exposed to administrators: catalog fields overlaid
// with live fields. Either side may be missing.
type JobInfo struct {
	JobName         string
	JobGroup        string
	Trigger         string
	TriggerGroup    string
	CronExpression  string
	Method          string
	AllowConcurrent bool
	Status          _const.TaskStatus
	TriggerState    _const.TriggerState
	Description     string
	NextFireTime    time.Time
	PrevFireTime    time.Time
	CreatedTime     time.Time
	UpdatedTime     time.Time
	// Persisted/Live tell which sides contributed to this view.
	Persisted bool
	Live      bool
}

// ApplySpec copies catalog fields into the view.
func (j *JobInfo) ApplySpec(s JobSpec) {
	j.JobName = s.Name
	// 只有目录中的任务时触发器名等同任务名
	if j.Trigger == "" {
		j.Trigger = s.Name
	}
	j.CronExpression = s.CronExpression
	j.Method = s.Method
	j.AllowConcurrent = s.AllowConcurrent
	j.Status = s.Status()
	j.Description = s.Description
	j.CreatedTime = s.CreatedTime
	j.UpdatedTime = s.UpdatedTime
	j.Persisted = true
}

// ApplyLive overlays engine fields on the view. Method and timestamps are
// unknown to the engine and keep their catalog values.
func (j *JobInfo) ApplyLive(v LiveJobView) {
	j.JobName = v.Name
	j.JobGroup = v.Group
	j.Trigger = v.TriggerName
	j.TriggerGroup = v.TriggerGroup
	j.CronExpression = v.CronExpression
	j.AllowConcurrent = v.AllowConcurrent
	j.Status = v.Status()
	j.TriggerState = v.TriggerState
	j.Description = v.Description
	j.NextFireTime = v.NextFireTime
	j.PrevFireTime = v.PrevFireTime
	j.Live = true
}

// TaskFilter selects catalog rows by exact name and/or status. Zero fields match anything.
type TaskFilter struct {
	Name   string
	Status *_const.TaskStatus
}

// ByName is a filter on the task name only.
func ByName(name string) TaskFilter {
	return TaskFilter{Name: name}
}

// ByStatus is a filter on the task status only.
func ByStatus(status _const.TaskStatus) TaskFilter {
	return TaskFilter{Status: &status}
}

// WithStatus narrows the filter to the given status.
func (f TaskFilter) WithStatus(status _const.TaskStatus) TaskFilter {
	f.Status = &status
	return f
}

func (f TaskFilter) IsEmpty() bool {
	return f.Name == "" && f.Status == nil
}

// TaskUpdate carries the columns to change; nil fields are left untouched.
type TaskUpdate struct {
	CronExpression  *string
	Method          *string
	AllowConcurrent *bool
	Status          *_const.TaskStatus
	Description     *string
}

func (u TaskUpdate) IsEmpty() bool {
	return u.CronExpression == nil && u.Method == nil && u.AllowConcurrent == nil &&
		u.Status == nil && u.Description == nil
}

// SetStatus is an update touching only the status column.
func SetStatus(status _const.TaskStatus) TaskUpdate {
	return TaskUpdate{Status: &status}
}

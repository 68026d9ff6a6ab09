package cron_manager

import (
	"context"
	"testing"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiSuite struct {
	catalog repository.CatalogRepository
	manager *SchedulerManager
	api     *TaskManagerAPI
	report  *countingJob
}

func newAPISuite(t *testing.T, persist bool) *apiSuite {
	t.Helper()
	s := &apiSuite{}
	report, reportTarget := directJob("sendReport", "0 0 * * * ?")
	s.report = report
	registry := newRegistry(t, map[string]Target{"sendReport": reportTarget})

	var opts []Options
	if persist {
		s.catalog = newTestCatalog(t)
		// 刷新任务每年触发一次, 不干扰用例
		opts = append(opts, WithPersistence(s.catalog), WithReconcileCron("0 0 0 1 1 ?"))
	}
	s.manager = NewSchedulerManager(newTestEngine(t), registry, NewNopLogger(), opts...)
	s.api = NewTaskManagerAPI(s.manager, NewNopLogger())
	return s
}

func jobReq(name string) JobRequest {
	return JobRequest{JobName: name, JobGroup: _const.DefaultJobGroup}
}

func triggerReq(name, cron string) JobRequest {
	return JobRequest{Trigger: name, TriggerGroup: _const.DefaultTriggerGroup, CronExpression: cron}
}

func TestTaskManagerAPI_Validation(t *testing.T) {
	s := newAPISuite(t, false)
	ctx := context.Background()

	results := []Result[bool]{
		s.api.RunJobNow(ctx, JobRequest{JobGroup: "g"}),
		s.api.PauseJob(ctx, JobRequest{JobName: "x"}),
		s.api.ResumeJob(ctx, JobRequest{JobName: " ", JobGroup: "g"}),
		s.api.DeleteJob(ctx, JobRequest{}),
		s.api.ModifyJob(ctx, JobRequest{Trigger: "x"}),
	}
	for _, res := range results {
		assert.Equal(t, _const.ResultFail, res.Code)
		assert.False(t, res.Data)
		assert.Contains(t, res.Message, "is null")
	}

	info := s.api.GetJobMessage(ctx, JobRequest{JobName: "x"})
	assert.Equal(t, _const.ResultFail, info.Code)
	assert.Nil(t, info.Data)
}

func TestTaskManagerAPI_PauseNotLoaded(t *testing.T) {
	s := newAPISuite(t, false)
	res := s.api.PauseJob(context.Background(), JobRequest{JobName: "x", JobGroup: "g"})
	assert.False(t, res.Success())
	assert.Equal(t, "x is not loaded by the scheduler, ignore this operation", res.Message)
}

func TestTaskManagerAPI_PauseResumeDB(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?", Enabled: true})
	require.NoError(t, s.manager.RegisterJobs(ctx))

	res := s.api.PauseJob(ctx, jobReq("sendReport"))
	require.True(t, res.Success(), res.Message)
	assert.False(t, mustRow(t, s.catalog, "sendReport").Enabled)
	assert.Equal(t, _const.TriggerStatePaused, s.manager.TriggerState("sendReport", _const.DefaultTriggerGroup))

	res = s.api.ResumeJob(ctx, jobReq("sendReport"))
	require.True(t, res.Success(), res.Message)
	assert.True(t, mustRow(t, s.catalog, "sendReport").Enabled)
	assert.Equal(t, _const.TriggerStateNormal, s.manager.TriggerState("sendReport", _const.DefaultTriggerGroup))
}

func TestTaskManagerAPI_ResumeActivatesUnloaded(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 10 * * * ?", Enabled: false})
	require.NoError(t, s.manager.RegisterJobs(ctx))
	require.False(t, s.manager.IsLoaded("sendReport", _const.DefaultJobGroup))

	res := s.api.ResumeJob(ctx, jobReq("sendReport"))
	require.True(t, res.Success(), res.Message)
	assert.True(t, mustRow(t, s.catalog, "sendReport").Enabled)

	v, ok, err := s.manager.GetJob("sendReport", _const.DefaultJobGroup)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0 10 * * * ?", v.CronExpression)
	assert.Equal(t, _const.TriggerStateNormal, v.TriggerState)

	// 既未加载也无目录记录
	res = s.api.ResumeJob(ctx, jobReq("ghost"))
	assert.False(t, res.Success())
	assert.Equal(t, "ghost is not loaded by the scheduler, ignore this operation", res.Message)
}

func TestTaskManagerAPI_RunJobNow(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?",
		AllowConcurrent: true, Enabled: false})

	res := s.api.RunJobNow(ctx, jobReq("sendReport"))
	require.True(t, res.Success(), res.Message)
	require.Eventually(t, func() bool { return s.report.count.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.manager.IsLoaded("sendReport", _const.DefaultJobGroup))
	assert.True(t, mustRow(t, s.catalog, "sendReport").Enabled)

	res = s.api.RunJobNow(ctx, jobReq("sendReport"))
	require.True(t, res.Success(), res.Message)
	require.Eventually(t, func() bool { return s.report.count.Load() == 2 }, time.Second, 5*time.Millisecond)

	res = s.api.RunJobNow(ctx, jobReq("unknown"))
	assert.False(t, res.Success())
	assert.Equal(t, msgTargetAbsent, res.Message)
}

func TestTaskManagerAPI_ModifyJob(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?", Method: "run", Enabled: true})
	require.NoError(t, s.manager.RegisterJobs(ctx))

	desc := "new description"
	concurrent := true
	req := triggerReq("sendReport", "")
	req.Description = &desc
	req.AllowConcurrent = &concurrent
	res := s.api.ModifyJob(ctx, req)
	require.True(t, res.Success())
	assert.Equal(t, msgCronIsNull, res.Message)
	row := mustRow(t, s.catalog, "sendReport")
	assert.Equal(t, desc, row.Description)
	assert.True(t, row.AllowConcurrent)

	// 并发标识只写目录, 下次启动生效
	v, _, _ := s.manager.GetJob("sendReport", _const.DefaultJobGroup)
	assert.False(t, v.AllowConcurrent)

	res = s.api.ModifyJob(ctx, triggerReq("sendReport", "0 20 * * * ?"))
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "0 20 * * * ?", mustRow(t, s.catalog, "sendReport").CronExpression)
	v, _, _ = s.manager.GetJob("sendReport", _const.DefaultJobGroup)
	assert.Equal(t, "0 20 * * * ?", v.CronExpression)

	res = s.api.ModifyJob(ctx, triggerReq("sendReport", "every day"))
	assert.False(t, res.Success())
	assert.Equal(t, "0 20 * * * ?", mustRow(t, s.catalog, "sendReport").CronExpression)
}

func TestTaskManagerAPI_ModifyJobRAM(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, false)
	require.NoError(t, s.manager.RegisterJobs(ctx))

	res := s.api.ModifyJob(ctx, triggerReq("sendReport", "0 20 * * * ?"))
	require.True(t, res.Success(), res.Message)

	// 表达式未变化且没有目录可写
	res = s.api.ModifyJob(ctx, triggerReq("sendReport", "0 20 * * * ?"))
	assert.False(t, res.Success())
	assert.Equal(t, msgNotModified, res.Message)

	res = s.api.ModifyJob(ctx, triggerReq("missing", "0 20 * * * ?"))
	assert.False(t, res.Success())
}

func TestTaskManagerAPI_PauseAllResumeAll(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?", Enabled: true})
	saveRow(t, s.catalog, domain.JobSpec{Name: "other", CronExpression: "0 0 * * * ?", Enabled: true})
	require.NoError(t, s.manager.RegisterJobs(ctx))

	require.True(t, s.api.PauseAll(ctx).Success())
	assert.False(t, mustRow(t, s.catalog, "sendReport").Enabled)
	assert.False(t, mustRow(t, s.catalog, "other").Enabled)
	assert.Equal(t, _const.TriggerStatePaused, s.manager.TriggerState("sendReport", _const.DefaultTriggerGroup))
	assert.Equal(t, _const.TriggerStatePaused, s.manager.TriggerState(_const.ReconcileJobName, _const.DefaultTriggerGroup))

	require.True(t, s.api.ResumeAll(ctx).Success())
	assert.True(t, mustRow(t, s.catalog, "other").Enabled)
	assert.Equal(t, _const.TriggerStateNormal, s.manager.TriggerState("sendReport", _const.DefaultTriggerGroup))
}

func TestTaskManagerAPI_DeleteJob(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?", Enabled: true})
	require.NoError(t, s.manager.RegisterJobs(ctx))

	require.True(t, s.api.DeleteJob(ctx, jobReq("sendReport")).Success())
	assert.False(t, s.manager.IsLoaded("sendReport", _const.DefaultJobGroup))
	_, ok, err := s.catalog.GetOne(ctx, domain.ByName("sendReport"))
	require.NoError(t, err)
	assert.False(t, ok)

	// 两侧都不存在时依然成功
	assert.True(t, s.api.DeleteJob(ctx, jobReq("sendReport")).Success())
}

func TestTaskManagerAPI_GetJobMessage(t *testing.T) {
	ctx := context.Background()
	s := newAPISuite(t, true)
	saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?",
		Method: "run", Enabled: true, Description: "hourly"})
	saveRow(t, s.catalog, domain.JobSpec{Name: "dormant", CronExpression: "0 0 1 * * ?", Method: "sweep", Enabled: false})
	require.NoError(t, s.manager.RegisterJobs(ctx))

	res := s.api.GetJobMessage(ctx, jobReq("sendReport"))
	require.True(t, res.Success())
	require.NotNil(t, res.Data)
	info := res.Data
	assert.True(t, info.Persisted)
	assert.True(t, info.Live)
	assert.Equal(t, "run", info.Method)
	assert.Equal(t, "hourly", info.Description)
	assert.Equal(t, _const.TaskStatusEnable, info.Status)
	assert.Equal(t, _const.TriggerStateNormal, info.TriggerState)
	assert.False(t, info.NextFireTime.IsZero())
	assert.False(t, info.CreatedTime.IsZero())

	res = s.api.GetJobMessage(ctx, jobReq("dormant"))
	require.True(t, res.Success())
	require.NotNil(t, res.Data)
	assert.True(t, res.Data.Persisted)
	assert.False(t, res.Data.Live)
	assert.Equal(t, "dormant", res.Data.Trigger)
	assert.Equal(t, _const.DefaultJobGroup, res.Data.JobGroup)
	assert.Equal(t, _const.TaskStatusDisable, res.Data.Status)
	assert.Equal(t, _const.TriggerStateNone, res.Data.TriggerState)

	res = s.api.GetJobMessage(ctx, jobReq("nothing"))
	assert.True(t, res.Success())
	assert.Nil(t, res.Data)
	assert.Equal(t, msgEmptyResult, res.Message)
}

func TestTaskManagerAPI_ListJobMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("persistence empty", func(t *testing.T) {
		s := newAPISuite(t, true)
		res := s.api.ListJobMessages(ctx)
		assert.False(t, res.Success())
		assert.Equal(t, msgNoJobs, res.Message)
	})

	t.Run("ram empty", func(t *testing.T) {
		s := newAPISuite(t, false)
		res := s.api.ListJobMessages(ctx)
		assert.True(t, res.Success())
		assert.Equal(t, msgEmptyResult, res.Message)
		assert.Empty(t, res.Data)
	})

	t.Run("merged", func(t *testing.T) {
		s := newAPISuite(t, true)
		saveRow(t, s.catalog, domain.JobSpec{Name: "sendReport", CronExpression: "0 0 * * * ?", Method: "run", Enabled: true})
		saveRow(t, s.catalog, domain.JobSpec{Name: "dormant", CronExpression: "0 0 1 * * ?", Enabled: false})
		require.NoError(t, s.manager.RegisterJobs(ctx))

		res := s.api.ListJobMessages(ctx)
		require.True(t, res.Success())
		byName := map[string]domain.JobInfo{}
		for _, info := range res.Data {
			byName[info.JobName] = info
		}
		require.Len(t, byName, 3)
		assert.True(t, byName["sendReport"].Live)
		assert.True(t, byName["sendReport"].Persisted)
		assert.Equal(t, "run", byName["sendReport"].Method)
		assert.False(t, byName["dormant"].Live)
		// 刷新任务只存在于引擎中
		assert.True(t, byName[_const.ReconcileJobName].Live)
		assert.False(t, byName[_const.ReconcileJobName].Persisted)
	})

	t.Run("ram", func(t *testing.T) {
		s := newAPISuite(t, false)
		require.NoError(t, s.manager.RegisterJobs(ctx))
		res := s.api.ListJobMessages(ctx)
		require.True(t, res.Success())
		require.Len(t, res.Data, 1)
		assert.Equal(t, "sendReport", res.Data[0].JobName)
		assert.Equal(t, _const.TaskStatusEnable, res.Data[0].Status)
	})
}

type panickingEngine struct {
	Engine
}

func (panickingEngine) Exists(JobKey) bool { return true }

func (panickingEngine) Pause(JobKey) error { panic("engine bug") }

func (panickingEngine) ListAll() []domain.LiveJobView { panic("engine bug") }

func TestTaskManagerAPI_RecoverPanic(t *testing.T) {
	m := NewSchedulerManager(panickingEngine{}, newRegistry(t, nil), NewNopLogger())
	api := NewTaskManagerAPI(m, NewNopLogger())

	res := api.PauseJob(context.Background(), jobReq("x"))
	assert.Equal(t, _const.ResultFail, res.Code)
	assert.Contains(t, res.Message, "engine bug")

	list := api.ListJobMessages(context.Background())
	assert.Equal(t, _const.ResultFail, list.Code)
	assert.Contains(t, list.Message, "engine bug")
}

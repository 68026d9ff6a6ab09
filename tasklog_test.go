package cron_manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/TimeWtr/cron_manager/repository/dao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogRepo(t *testing.T) repository.TaskLogRepository {
	t.Helper()
	db, err := dao.Open(":memory:")
	require.NoError(t, err)
	return repository.NewTaskLogRepository(dao.NewTaskLogDAO(db))
}

func TestTaskLogStore_Async(t *testing.T) {
	ctx := context.Background()
	store := NewTaskLogStore(newTestLogRepo(t), NewNopLogger(), WithAsyncLog(4))

	for i := 0; i < 20; i++ {
		store.Record(domain.ExecutionRecord{
			JobName:   "sendReport",
			Group:     "g",
			StartedAt: time.Now(),
			Duration:  time.Duration(i) * time.Millisecond,
		})
	}
	store.Close()
	store.Close()

	recs, err := store.Recent(ctx, "sendReport", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 20)

	// 关闭后同步写入
	store.Record(domain.ExecutionRecord{JobName: "sendReport", StartedAt: time.Now(), Error: "late"})
	recs, err = store.Recent(ctx, "sendReport", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "late", recs[0].Error)
}

func TestTaskLogStore_Sync(t *testing.T) {
	ctx := context.Background()
	store := NewTaskLogStore(newTestLogRepo(t), NewNopLogger())
	defer store.Close()

	store.Record(domain.ExecutionRecord{JobName: "heartbeat", Manual: true, StartedAt: time.Now()})
	store.Record(domain.ExecutionRecord{JobName: "heartbeat", Skipped: true, StartedAt: time.Now()})

	recs, err := store.Recent(ctx, "heartbeat", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Skipped)
	assert.True(t, recs[1].Manual)
}

func TestTaskLogStore_EngineRecorder(t *testing.T) {
	ctx := context.Background()
	store := NewTaskLogStore(newTestLogRepo(t), NewNopLogger(), WithAsyncLog(16))
	e := newTestEngine(t, WithRecorder(store))

	require.NoError(t, e.ScheduleCron(definition("failing", "0 0 * * * ?", true, func(context.Context) error {
		return fmt.Errorf("upstream timeout")
	})))
	require.NoError(t, e.TriggerNow(defaultKey("failing")))
	require.NoError(t, e.Stop(ctx))
	store.Close()

	recs, err := store.Recent(ctx, "failing", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Manual)
	assert.Equal(t, "upstream timeout", recs[0].Error)
}

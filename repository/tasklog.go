package repository

import (
	"context"
	"time"

	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository/dao"
)

const (
	logTypeInfo  = "INFO"
	logTypeWarn  = "WARN"
	logTypeError = "ERROR"

	skippedContent = "skipped, previous execution still running"
)

// TaskLogRepository 任务执行日志存储
type TaskLogRepository interface {
	Save(ctx context.Context, recs ...domain.ExecutionRecord) error
	// ListByTask 最近的执行记录, 新的在前
	ListByTask(ctx context.Context, task string, limit int) ([]domain.ExecutionRecord, error)
}

type taskLogRepository struct {
	dao dao.TaskLogDAO
}

func NewTaskLogRepository(d dao.TaskLogDAO) TaskLogRepository {
	return &taskLogRepository{dao: d}
}

func (r *taskLogRepository) Save(ctx context.Context, recs ...domain.ExecutionRecord) error {
	now := time.Now().Unix()
	logs := make([]dao.TaskLog, 0, len(recs))
	for _, rec := range recs {
		l := dao.TaskLog{
			Task:        rec.JobName,
			TaskGroup:   rec.Group,
			Type:        logTypeInfo,
			Content:     "ok",
			StartedTime: rec.StartedAt.UnixMilli(),
			DurationMs:  rec.Duration.Milliseconds(),
			CreatedTime: now,
		}
		if rec.Manual {
			l.Manual = 1
		}
		switch {
		case rec.Skipped:
			l.Type, l.Content = logTypeWarn, skippedContent
		case rec.Error != "":
			l.Type, l.Content = logTypeError, rec.Error
		}
		logs = append(logs, l)
	}
	return r.dao.Insert(ctx, logs...)
}

func (r *taskLogRepository) ListByTask(ctx context.Context, task string, limit int) ([]domain.ExecutionRecord, error) {
	logs, err := r.dao.ListByTask(ctx, task, limit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.ExecutionRecord, 0, len(logs))
	for _, l := range logs {
		rec := domain.ExecutionRecord{
			JobName:   l.Task,
			Group:     l.TaskGroup,
			Manual:    l.Manual == 1,
			Skipped:   l.Type == logTypeWarn,
			StartedAt: time.UnixMilli(l.StartedTime),
			Duration:  time.Duration(l.DurationMs) * time.Millisecond,
		}
		if l.Type == logTypeError {
			rec.Error = l.Content
		}
		res = append(res, rec)
	}
	return res, nil
}

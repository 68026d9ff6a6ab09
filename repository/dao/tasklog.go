package dao

import (
	"context"

	"gorm.io/gorm"
)

// TaskLog 任务执行日志表
type TaskLog struct {
	ID int `gorm:"column:id;type:integer;primaryKey;autoIncrement" json:"id"`
	// Task 任务名
	Task string `gorm:"column:task;type:varchar(255);index;not null" json:"task"`
	// TaskGroup 任务分组
	TaskGroup string `gorm:"column:task_group;type:varchar(255);not null" json:"task_group"`
	// Type 日志类型: INFO 正常执行, WARN 跳过, ERROR 执行失败
	Type string `gorm:"column:type;type:varchar(16);not null" json:"type"`
	// Manual 1立即执行触发, 0定时触发
	Manual int `gorm:"column:manual;type:int;not null" json:"manual"`
	// Content 日志内容
	Content string `gorm:"column:content;type:text;not null" json:"content"`
	// StartedTime 开始执行时间(毫秒)
	StartedTime int64 `gorm:"column:started_time;type:int;not null" json:"started_time"`
	// DurationMs 执行耗时(毫秒)
	DurationMs int64 `gorm:"column:duration_ms;type:int;not null" json:"duration_ms"`
	// CreatedTime 创建时间
	CreatedTime int64 `gorm:"column:created_time;type:int;not null" json:"created_time"`
}

func (TaskLog) TableName() string {
	return "t_cron_task_log"
}

type TaskLogDAO interface {
	Insert(ctx context.Context, logs ...TaskLog) error
	// ListByTask 按任务名查询最近的日志, limit<=0 不限制
	ListByTask(ctx context.Context, task string, limit int) ([]TaskLog, error)
}

type GormTaskLogDAO struct {
	db *gorm.DB
}

func NewTaskLogDAO(db *gorm.DB) TaskLogDAO {
	return &GormTaskLogDAO{db: db}
}

func (d *GormTaskLogDAO) Insert(ctx context.Context, logs ...TaskLog) error {
	if len(logs) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Create(&logs).Error
}

func (d *GormTaskLogDAO) ListByTask(ctx context.Context, task string, limit int) ([]TaskLog, error) {
	var logs []TaskLog
	q := d.db.WithContext(ctx).Where("task = ?", task).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}

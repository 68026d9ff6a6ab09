package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrMissingFilter = errors.New("filter required")

// Task 任务目录表
type Task struct {
	// ID 在数据库中的ID信息
	ID int `gorm:"column:id;type:integer;primaryKey;autoIncrement" json:"id"`
	// TaskName 任务名, 唯一
	TaskName string `gorm:"column:task_name;type:varchar(255);uniqueIndex;not null" json:"task_name"`
	// CronExpression cron表达式
	CronExpression string `gorm:"column:cron_expression;type:varchar(255);not null" json:"cron_expression"`
	// Method 方法型任务的执行方法
	Method string `gorm:"column:method;type:varchar(255);not null" json:"method"`
	// AllowConcurrent 1允许并发执行, 0不允许
	AllowConcurrent int `gorm:"column:allow_concurrent;type:int;not null" json:"allow_concurrent"`
	// Status 1启用, 0关闭
	Status int `gorm:"column:status;type:int;not null" json:"status"`
	// Description 任务描述
	Description string `gorm:"column:description;type:text;not null" json:"description"`
	// UpdatedTime 更新时间
	UpdatedTime int64 `gorm:"column:updated_time;type:int;not null" json:"updated_time"`
	// CreatedTime 创建时间
	CreatedTime int64 `gorm:"column:created_time;type:int;not null" json:"created_time"`
}

func (Task) TableName() string {
	return "t_cron_task"
}

// TaskQuery 精确匹配的查询条件, 零值字段不参与匹配
type TaskQuery struct {
	TaskName string
	Status   *int
}

func (q TaskQuery) where() map[string]interface{} {
	cond := map[string]interface{}{}
	if q.TaskName != "" {
		cond["task_name"] = q.TaskName
	}
	if q.Status != nil {
		cond["status"] = *q.Status
	}
	return cond
}

type TaskDAO interface {
	// List 按条件查询, 空条件返回全部
	List(ctx context.Context, q TaskQuery) ([]Task, error)
	// GetOne 查询单条, 不存在时返回gorm.ErrRecordNotFound
	GetOne(ctx context.Context, q TaskQuery) (Task, error)
	// Update 按条件更新给定的列, 返回是否有记录被更新
	Update(ctx context.Context, values map[string]interface{}, q TaskQuery) (bool, error)
	// Remove 按条件删除, 返回是否有记录被删除
	Remove(ctx context.Context, q TaskQuery) (bool, error)
	// Upsert 按任务名插入或整行覆盖
	Upsert(ctx context.Context, task Task) error
}

type GormTaskDAO struct {
	db *gorm.DB
}

func NewTaskDAO(db *gorm.DB) TaskDAO {
	return &GormTaskDAO{db: db}
}

func (d *GormTaskDAO) List(ctx context.Context, q TaskQuery) ([]Task, error) {
	var tasks []Task
	err := d.scope(ctx, q).Order("id").Find(&tasks).Error
	return tasks, err
}

func (d *GormTaskDAO) GetOne(ctx context.Context, q TaskQuery) (Task, error) {
	var task Task
	err := d.scope(ctx, q).First(&task).Error
	return task, err
}

func (d *GormTaskDAO) scope(ctx context.Context, q TaskQuery) *gorm.DB {
	db := d.db.WithContext(ctx)
	if cond := q.where(); len(cond) > 0 {
		db = db.Where(cond)
	}
	return db
}

func (d *GormTaskDAO) Update(ctx context.Context, values map[string]interface{}, q TaskQuery) (bool, error) {
	cond := q.where()
	if len(cond) == 0 {
		return false, ErrMissingFilter
	}
	if len(values) == 0 {
		return false, nil
	}
	values["updated_time"] = time.Now().Unix()
	res := d.db.WithContext(ctx).Model(&Task{}).Where(cond).Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *GormTaskDAO) Remove(ctx context.Context, q TaskQuery) (bool, error) {
	cond := q.where()
	if len(cond) == 0 {
		return false, ErrMissingFilter
	}
	res := d.db.WithContext(ctx).Where(cond).Delete(&Task{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *GormTaskDAO) Upsert(ctx context.Context, task Task) error {
	now := time.Now().Unix()
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old Task
		err := tx.Where("task_name = ?", task.TaskName).First(&old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			task.ID = 0
			task.CreatedTime = now
			task.UpdatedTime = now
			return tx.Create(&task).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&Task{}).Where("id = ?", old.ID).
			Updates(map[string]interface{}{
				"cron_expression":  task.CronExpression,
				"method":           task.Method,
				"allow_concurrent": task.AllowConcurrent,
				"status":           task.Status,
				"description":      task.Description,
				"updated_time":     now,
			}).Error
	})
}

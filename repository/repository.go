package repository

import (
	"context"
	"errors"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository/dao"
	"gorm.io/gorm"
)

// CatalogRepository 任务目录存储
type CatalogRepository interface {
	// List 按条件查询, 空条件返回全部
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.JobSpec, error)
	// GetOne 查询单条, 不存在时 ok 为 false
	GetOne(ctx context.Context, filter domain.TaskFilter) (domain.JobSpec, bool, error)
	// Update 按条件更新, 返回是否有记录被更新
	Update(ctx context.Context, update domain.TaskUpdate, filter domain.TaskFilter) (bool, error)
	// Remove 按条件删除, 返回是否有记录被删除
	Remove(ctx context.Context, filter domain.TaskFilter) (bool, error)
	// Save 按任务名插入或覆盖
	Save(ctx context.Context, spec domain.JobSpec) error
}

type catalogRepository struct {
	dao dao.TaskDAO
}

func NewCatalogRepository(d dao.TaskDAO) CatalogRepository {
	return &catalogRepository{dao: d}
}

func (r *catalogRepository) List(ctx context.Context, filter domain.TaskFilter) ([]domain.JobSpec, error) {
	tasks, err := r.dao.List(ctx, toQuery(filter))
	if err != nil {
		return nil, err
	}
	res := make([]domain.JobSpec, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, toSpec(t))
	}
	return res, nil
}

func (r *catalogRepository) GetOne(ctx context.Context, filter domain.TaskFilter) (domain.JobSpec, bool, error) {
	t, err := r.dao.GetOne(ctx, toQuery(filter))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.JobSpec{}, false, nil
	}
	if err != nil {
		return domain.JobSpec{}, false, err
	}
	return toSpec(t), true, nil
}

func (r *catalogRepository) Update(ctx context.Context, update domain.TaskUpdate, filter domain.TaskFilter) (bool, error) {
	values := map[string]interface{}{}
	if update.CronExpression != nil {
		values["cron_expression"] = *update.CronExpression
	}
	if update.Method != nil {
		values["method"] = *update.Method
	}
	if update.AllowConcurrent != nil {
		values["allow_concurrent"] = boolToInt(*update.AllowConcurrent)
	}
	if update.Status != nil {
		values["status"] = int(*update.Status)
	}
	if update.Description != nil {
		values["description"] = *update.Description
	}
	return r.dao.Update(ctx, values, toQuery(filter))
}

func (r *catalogRepository) Remove(ctx context.Context, filter domain.TaskFilter) (bool, error) {
	return r.dao.Remove(ctx, toQuery(filter))
}

func (r *catalogRepository) Save(ctx context.Context, spec domain.JobSpec) error {
	return r.dao.Upsert(ctx, dao.Task{
		TaskName:        spec.Name,
		CronExpression:  spec.CronExpression,
		Method:          spec.Method,
		AllowConcurrent: boolToInt(spec.AllowConcurrent),
		Status:          int(spec.Status()),
		Description:     spec.Description,
	})
}

func toQuery(filter domain.TaskFilter) dao.TaskQuery {
	q := dao.TaskQuery{TaskName: filter.Name}
	if filter.Status != nil {
		s := int(*filter.Status)
		q.Status = &s
	}
	return q
}

func toSpec(t dao.Task) domain.JobSpec {
	return domain.JobSpec{
		Name:            t.TaskName,
		CronExpression:  t.CronExpression,
		Method:          t.Method,
		AllowConcurrent: t.AllowConcurrent == 1,
		Enabled:         _const.TaskStatus(t.Status).Enabled(),
		Description:     t.Description,
		CreatedTime:     time.Unix(t.CreatedTime, 0),
		UpdatedTime:     time.Unix(t.UpdatedTime, 0),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

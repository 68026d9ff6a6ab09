package main

import (
	"context"

	cm "github.com/TimeWtr/cron_manager"
)

// reportBean 方法型任务, 由目录中的 method 列决定调用的方法
type reportBean struct {
	logger cm.Logger
}

func (r *reportBean) Run(ctx context.Context) error {
	r.logger.Info("send report")
	return nil
}

func (r *reportBean) Cleanup() error {
	r.logger.Info("cleanup report files")
	return nil
}

func demoRegistry(logger cm.Logger) (*cm.Registry, error) {
	return cm.NewRegistry(map[string]cm.Target{
		"heartbeat": &cm.DirectJob{
			Job: cm.ExecutorFuncOf("heartbeat", func(ctx context.Context) error {
				logger.Info("heartbeat")
				return nil
			}),
			Task: cm.TaskMeta{Cron: "*/30 * * * * ?", Description: "liveness log line"},
		},
		"sendReport": &cm.MethodTarget{
			Bean: &reportBean{logger: logger},
			Task: cm.TaskMeta{Cron: "0 0 * * * ?", Description: "hourly report"},
		},
		"cleanupReport": &cm.MethodTarget{
			Bean: &reportBean{logger: logger},
			Task: cm.TaskMeta{Cron: "0 30 3 * * ?", Method: "cleanup", Description: "nightly cleanup"},
		},
	})
}

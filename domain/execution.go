package domain

import "time"

// ExecutionRecord describes one firing of a job.
type ExecutionRecord struct {
	JobName string
	Group   string
	// Manual 是否由立即执行触发
	Manual bool
	// Skipped 不可并发的任务因上一次执行未结束而跳过
	Skipped   bool
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

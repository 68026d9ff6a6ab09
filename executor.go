package cron_manager

import "context"

// ExecutorFunc 一次触发的执行体
type ExecutorFunc func(ctx context.Context) error

// Executor 执行器抽象, 直接实现该接口的任务即为Job接口型任务
type Executor interface {
	// Name Executor名称
	Name() string
	// Execute 执行方法
	Execute(ctx context.Context) error
}

// ExecutorFuncOf adapts a function into an Executor with the given name.
func ExecutorFuncOf(name string, fn ExecutorFunc) Executor {
	return &funcExecutor{name: name, fn: fn}
}

type funcExecutor struct {
	name string
	fn   ExecutorFunc
}

func (f *funcExecutor) Name() string { return f.name }

func (f *funcExecutor) Execute(ctx context.Context) error {
	return f.fn(ctx)
}

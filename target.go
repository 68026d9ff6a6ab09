package cron_manager

import (
	"context"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/cockroachdb/errors"
)

// TaskMeta 任务声明的元数据, 非持久化模式下直接作为任务配置
type TaskMeta struct {
	// Cron 非持久化模式必填, 没有默认值
	Cron string
	// Method 方法型任务执行的方法, 为空时使用 run
	Method          string
	AllowConcurrent bool
	Description     string
}

// Target is something the manager can schedule under a job name. It is one of
// *DirectJob or *MethodTarget.
type Target interface {
	Meta() TaskMeta
}

// DirectJob 直接实现Executor的Job接口型任务
type DirectJob struct {
	Job  Executor
	Task TaskMeta
}

func (d *DirectJob) Meta() TaskMeta { return d.Task }

// MethodTarget 方法型任务, 按方法名反射调用Bean上的方法
type MethodTarget struct {
	Bean any
	Task TaskMeta
}

func (m *MethodTarget) Meta() TaskMeta { return m.Task }

// Registry is the immutable mapping from job name to target, built once at
// process start.
type Registry struct {
	targets map[string]Target
}

func NewRegistry(targets map[string]Target) (*Registry, error) {
	res := make(map[string]Target, len(targets))
	for name, t := range targets {
		if strings.TrimSpace(name) == "" {
			return nil, validationErrorf("blank target name")
		}
		if t == nil || isNilPointer(t) {
			return nil, validationErrorf("nil target for %q", name)
		}
		res[name] = t
	}
	return &Registry{targets: res}, nil
}

func isNilPointer(t Target) bool {
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (r *Registry) Lookup(name string) (Target, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.targets[name]
	return t, ok
}

// Names 注册的所有任务名, 无序
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	res := make([]string, 0, len(r.targets))
	for name := range r.targets {
		res = append(res, name)
	}
	return res
}

// resolveRun turns a target into the function run on every firing. A method
// target whose bean implements Executor is run as a DirectJob.
func resolveRun(t Target, method string) (ExecutorFunc, error) {
	switch tt := t.(type) {
	case *DirectJob:
		if tt.Job == nil {
			return nil, errors.Wrap(ErrUnsupportedTarget, "direct job without executor")
		}
		return tt.Job.Execute, nil
	case *MethodTarget:
		if tt.Bean == nil {
			return nil, errors.Wrap(ErrUnsupportedTarget, "method target without bean")
		}
		if ex, ok := tt.Bean.(Executor); ok {
			return ex.Execute, nil
		}
		return resolveMethod(tt.Bean, method)
	default:
		return nil, errors.Wrapf(ErrUnsupportedTarget, "%T", t)
	}
}

func resolveMethod(bean any, method string) (ExecutorFunc, error) {
	name := exportedName(method)
	m := reflect.ValueOf(bean).MethodByName(name)
	if !m.IsValid() {
		return nil, errors.Wrapf(ErrMethodNotFound, "%T.%s", bean, name)
	}

	switch fn := m.Interface().(type) {
	case func(context.Context) error:
		return fn, nil
	case func() error:
		return func(context.Context) error { return fn() }, nil
	case func():
		return func(context.Context) error {
			fn()
			return nil
		}, nil
	default:
		return nil, errors.Wrapf(ErrMethodNotFound, "%T.%s has unsupported signature %s",
			bean, name, m.Type())
	}
}

func exportedName(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		method = _const.DefaultMethod
	}
	r, size := utf8.DecodeRuneInString(method)
	return string(unicode.ToUpper(r)) + method[size:]
}

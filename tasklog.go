package cron_manager

import (
	"context"
	"sync"
	"time"

	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
)

const defaultLogTimeout = 3 * time.Second

type TaskLogOptions func(s *TaskLogStore)

// WithAsyncLog 异步写入执行日志, size 为队列长度
func WithAsyncLog(size int) TaskLogOptions {
	return func(s *TaskLogStore) {
		if size <= 0 {
			size = 1024
		}
		s.queue = make(chan domain.ExecutionRecord, size)
	}
}

// TaskLogStore persists execution records. In async mode records go through
// a bounded queue drained by one goroutine; a full queue blocks the firing.
type TaskLogStore struct {
	repo   repository.TaskLogRepository
	logger Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.ExecutionRecord
	done   chan struct{}
}

func NewTaskLogStore(repo repository.TaskLogRepository, logger Logger, opts ...TaskLogOptions) *TaskLogStore {
	s := &TaskLogStore{
		repo:   repo,
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.queue == nil {
		close(s.done)
		return s
	}
	go s.drain()
	return s
}

func (s *TaskLogStore) Record(rec domain.ExecutionRecord) {
	s.mu.RLock()
	if s.queue != nil && !s.closed {
		s.queue <- rec
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()
	s.write(rec)
}

// Recent 查询任务最近的执行记录
func (s *TaskLogStore) Recent(ctx context.Context, task string, limit int) ([]domain.ExecutionRecord, error) {
	return s.repo.ListByTask(ctx, task, limit)
}

// Close stops accepting queued records and waits until the queue is flushed.
// Records arriving afterwards are written synchronously.
func (s *TaskLogStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *TaskLogStore) drain() {
	defer close(s.done)
	for rec := range s.queue {
		s.write(rec)
	}
}

func (s *TaskLogStore) write(rec domain.ExecutionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultLogTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.Error("failed to save task log", String("job", rec.JobName), Err(err))
	}
}

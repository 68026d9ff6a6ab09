package cron_manager

import (
	"sync"
)

type Cache[V any] interface {
	Set(key string, value V)
	Get(key string) (V, bool)
	Del(key string)
	Len() int
	// Clear 清空缓存并释放底层map
	Clear()
}

func NewLocalCache[V any](size int) Cache[V] {
	return &LocalCache[V]{
		mp: make(map[string]V, size),
		mu: &sync.RWMutex{},
	}
}

// LocalCache 启动加载阶段的任务缓存, 加载完成后清空
type LocalCache[V any] struct {
	mp map[string]V
	mu *sync.RWMutex
}

func (l *LocalCache[V]) Set(key string, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mp[key] = value
}

func (l *LocalCache[V]) Get(key string) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.mp[key]
	return v, ok
}

func (l *LocalCache[V]) Del(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mp, key)
}

func (l *LocalCache[V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mp)
}

func (l *LocalCache[V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mp = map[string]V{}
}

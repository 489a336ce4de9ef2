package syncgroup

import (
	"sync"
)

type syncGroupFunc func()

// SyncGroup 包装 sync.WaitGroup：先 Add 收集函数，Run 一次性并发启动，Wait 等待全部结束。
type SyncGroup struct {
	wg sync.WaitGroup

	mu  sync.Mutex
	fns []syncGroupFunc
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个待启动的函数，nil 忽略
func (w *SyncGroup) Add(fn syncGroupFunc) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fns = append(w.fns, fn)
}

// Run 启动所有已添加且尚未启动的函数
func (w *SyncGroup) Run() {
	w.mu.Lock()
	fns := w.fns
	w.fns = nil
	w.wg.Add(len(fns))
	w.mu.Unlock()

	for _, fn := range fns {
		go func(doFunc syncGroupFunc) {
			defer w.wg.Done()
			doFunc()
		}(fn)
	}
}

// Wait 等待所有已启动的函数完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}

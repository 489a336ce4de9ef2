package desk

import (
	"sync"

	"github.com/betbot/perpdesk/internal/domain"
)

// Notifier 保存最近一条用户提示。新提示无条件覆盖旧提示，没有队列也没有过期。
type Notifier struct {
	mu       sync.RWMutex
	current  *domain.StatusMessage
	onChange func()
}

// NewNotifier onChange 在每次 Raise 之后调用（可为 nil）
func NewNotifier(onChange func()) *Notifier {
	return &Notifier{onChange: onChange}
}

// Raise 覆盖当前提示
func (n *Notifier) Raise(msg domain.StatusMessage) {
	n.mu.Lock()
	n.current = &msg
	n.mu.Unlock()
	if n.onChange != nil {
		n.onChange()
	}
}

// Current 当前提示，没有时返回 nil
func (n *Notifier) Current() *domain.StatusMessage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.current == nil {
		return nil
	}
	msg := *n.current
	return &msg
}

package sigchan

// Chan 非阻塞信号 channel，只通知“有变化”，不传递数据。
// 连续多次 Emit 在缓冲满时合并为一次。
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel，bufferSize 至少为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit 发送信号（非阻塞）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

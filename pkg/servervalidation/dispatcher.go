package servervalidation

import (
	"context"
	"sync"
)

// ============================================================================
// 通知派发
// ============================================================================

// dispatcher 合并通知请求，在下一拍执行一次派发
// 职责：
//   - 多次 request 在派发前只产生一次派发
//   - 派发进行中产生的 request 在当前派发结束后再排一轮
type dispatcher struct {
	// scheduler 推迟执行
	scheduler Scheduler

	// pass 执行一次完整派发
	pass func()

	// mu 保护以下状态
	mu sync.Mutex

	// pending 有尚未处理的请求
	pending bool

	// scheduled 已有 drain 排队或正在执行
	scheduled bool

	// idle 空闲时已关闭
	idle chan struct{}
}

func newDispatcher(scheduler Scheduler, pass func()) *dispatcher {
	idle := make(chan struct{})
	close(idle)
	return &dispatcher{
		scheduler: scheduler,
		pass:      pass,
		idle:      idle,
	}
}

// request 请求一次派发
func (d *dispatcher) request() {
	d.mu.Lock()
	d.pending = true
	if d.scheduled {
		d.mu.Unlock()
		return
	}
	d.scheduled = true
	d.idle = make(chan struct{})
	d.mu.Unlock()

	d.scheduler.Schedule(d.drain)
}

// drain 处理请求直到没有待派发
func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if !d.pending {
			d.scheduled = false
			close(d.idle)
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.mu.Unlock()

		d.pass()
	}
}

// cancel 丢弃尚未执行的请求（已排队的 drain 仍会运行但不派发）
func (d *dispatcher) cancel() {
	d.mu.Lock()
	d.pending = false
	d.mu.Unlock()
}

// isIdle 没有排队或执行中的 drain
func (d *dispatcher) isIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.scheduled
}

// wait 等待派发空闲
func (d *dispatcher) wait(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

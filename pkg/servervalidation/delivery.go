package servervalidation

import (
	"context"
	"sync"
)

// ============================================================================
// 串行投递
// ============================================================================

// deliveryQueue 串行执行投递任务，同一会话的回调不会并发执行
// 没有任务在执行时由调用方协程直接执行；否则排队，由正在执行的协程依次执行。
// 回调内产生的投递（Subscribe、Reset 等）会排在当前任务之后。
type deliveryQueue struct {
	mu      sync.Mutex
	jobs    []func()
	running bool

	// idle 没有任务时已关闭
	idle chan struct{}
}

func newDeliveryQueue() *deliveryQueue {
	idle := make(chan struct{})
	close(idle)
	return &deliveryQueue{idle: idle}
}

// run 提交任务
func (q *deliveryQueue) run(job func()) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		next := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		next()
	}
}

// isIdle 是否没有任务
func (q *deliveryQueue) isIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.running
}

// wait 等待队列空闲
func (q *deliveryQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

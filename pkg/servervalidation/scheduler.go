package servervalidation

import "sync"

// ============================================================================
// 调度器
// ============================================================================

// Scheduler 把通知推迟到"下一拍"执行
type Scheduler interface {
	Schedule(task func())
}

// GoScheduler 在新协程中执行任务（默认调度器）
type GoScheduler struct{}

// Schedule 实现 Scheduler
func (GoScheduler) Schedule(task func()) {
	go task()
}

// ManualScheduler 手动调度器
// 任务在 RunPending 时才执行，适用于宿主事件循环和测试
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualScheduler 创建手动调度器
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule 实现 Scheduler
func (s *ManualScheduler) Schedule(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
}

// Pending 待执行任务数
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunPending 执行队列中的任务，直到队列为空，返回执行数量
// 执行过程中新调度的任务也会被执行
func (s *ManualScheduler) RunPending() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return n
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		task()
		n++
	}
}

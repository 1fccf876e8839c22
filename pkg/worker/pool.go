package worker

import "sync"

// Pool runs fire-and-forget tasks on a fixed set of goroutines. A task
// failure is terminal to that task: whatever it needed to log it logs
// itself, and it is never retried.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func NewPool(maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	p := &Pool{
		tasks: make(chan func(), 100),
	}

	p.wg.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}

	return p
}

// Submit queues task for execution. Blocks when the queue is full.
// Must not be called after Shutdown.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Shutdown() {
	close(p.tasks)
	p.wg.Wait()
}

// Package compute provides the bounded worker pool that evaluates the per-step
// chunks of every pipeline stage.
package compute

import (
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// Pool is shared by concurrent pipeline runs. Create it once at startup and
// Stop it on exit.
type Pool struct {
	wp   *workerpool.WorkerPool
	size int
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{wp: workerpool.New(size), size: size}
}

func (p *Pool) Size() int {
	return p.size
}

// Run executes fn(0) .. fn(n-1) on the pool and waits for all of them. The
// first error is returned. Run must not be called from inside a task.
func (p *Pool) Run(n int, fn func(i int) error) error {
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.wp.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { firstErr = fmt.Errorf("task %d panicked: %v", i, r) })
				}
			}()
			if err := fn(i); err != nil {
				once.Do(func() { firstErr = err })
			}
		})
	}
	wg.Wait()
	return firstErr
}

// Stop waits for queued tasks and releases the workers.
func (p *Pool) Stop() {
	p.wp.StopWait()
}

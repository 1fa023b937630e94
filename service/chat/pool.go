package chat

import (
	"hash/fnv"
	"sync"

	"GreenChat/tools/safe"
)

type poolJob struct {
	fn   func()
	done chan struct{}
}

// Pool runs frame work on a fixed set of workers. Jobs with the same key
// land on the same worker, so one connection's frames run in arrival order
// while different connections proceed in parallel.
type Pool struct {
	shards    []chan poolJob
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if queue <= 0 {
		queue = 128
	}
	p := &Pool{shards: make([]chan poolJob, workers)}
	for i := range p.shards {
		ch := make(chan poolJob, queue)
		p.shards[i] = ch
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range ch {
				_ = safe.Run(job.fn)
				if job.done != nil {
					close(job.done)
				}
			}
		}()
	}
	return p
}

func (p *Pool) shard(key string) chan poolJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit queues fn behind earlier jobs of key. It blocks while that worker's
// queue is full, which pushes back on the reading connection.
func (p *Pool) Submit(key string, fn func()) {
	p.shard(key) <- poolJob{fn: fn}
}

// SubmitWait is Submit followed by waiting for fn to finish.
func (p *Pool) SubmitWait(key string, fn func()) {
	done := make(chan struct{})
	p.shard(key) <- poolJob{fn: fn, done: done}
	<-done
}

// Close drains queued jobs and stops the workers. Submit must not be called
// afterwards.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, ch := range p.shards {
			close(ch)
		}
	})
	p.wg.Wait()
}

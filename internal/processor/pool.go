package processor

import (
	"context"
	"runtime"
	"sync"

	"github.com/PluralKit/avatars/internal/entities"
	"github.com/PluralKit/avatars/internal/faults"
)

type procReq struct {
	data []byte
	kind entities.ImageKind
	done chan procRes
}

type procRes struct {
	out *Output
	err error
}

// Pool runs Process calls on a fixed set of goroutines so the CPU-bound
// decode/resize/encode work cannot starve the goroutines doing network and
// database I/O. Callers block until their transform finishes or their context
// is canceled.
type Pool struct {
	proc  *Processor
	queue chan procReq
	wg    sync.WaitGroup
}

func NewPool(proc *Processor, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		proc:  proc,
		queue: make(chan procReq),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for req := range p.queue {
		out, err := p.proc.Process(req.data, req.kind)
		req.done <- procRes{out: out, err: err}
	}
}

func (p *Pool) Process(ctx context.Context, data []byte, kind entities.ImageKind) (*Output, error) {
	done := make(chan procRes, 1)
	select {
	case p.queue <- procReq{data: data, kind: kind, done: done}:
	case <-ctx.Done():
		return nil, faults.InternalErr(ctx.Err())
	}
	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, faults.InternalErr(ctx.Err())
	}
}

// Close waits for in-flight transforms to finish.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

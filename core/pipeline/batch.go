package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// maxWorkers bounds the batch worker pool.
const maxWorkers = 32

// workerPool distributes jobs across a fixed number of goroutines and
// collects their results.
type workerPool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// newWorkerPool sizes the pool to at most numJobs workers. A non-positive
// numWorkers means maxWorkers.
func newWorkerPool[Job any, Result any](numWorkers, numJobs int) *workerPool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = maxWorkers
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}

	return &workerPool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numJobs),
		results:    make(chan Result, numJobs),
	}
}

func (p *workerPool[Job, Result]) start(workerFn func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- workerFn(job)
			}
		}()
	}
}

func (p *workerPool[Job, Result]) submit(job Job) {
	p.jobs <- job
}

// close stops accepting jobs; the results channel closes once every worker
// has finished.
func (p *workerPool[Job, Result]) close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// BatchItem is the outcome of one document of a batch. Err is
// context.Canceled for documents skipped after Cancel.
type BatchItem struct {
	Index  int
	Result *Result
	Err    error
}

// Batch converts many documents on the worker pool. Progress and Cancel
// may be called from any goroutine while Run is in progress.
type Batch struct {
	p         *Pipeline
	dir       Direction
	total     atomic.Int64
	done      atomic.Int64
	cancelled atomic.Bool
}

// NewBatch prepares a batch in one direction.
func (p *Pipeline) NewBatch(dir Direction) *Batch {
	return &Batch{p: p, dir: dir}
}

// ConvertBatch converts inputs in one direction and returns one item per
// input, in input order.
func (p *Pipeline) ConvertBatch(ctx context.Context, dir Direction, inputs [][]byte) []BatchItem {
	return p.NewBatch(dir).Run(ctx, inputs)
}

// Run converts inputs and returns one item per input, in input order. Each
// worker converts one document at a time; cancellation, of the batch or of
// ctx, is checked before each document starts.
func (b *Batch) Run(ctx context.Context, inputs [][]byte) []BatchItem {
	if ctx == nil {
		ctx = context.Background()
	}
	b.total.Store(int64(len(inputs)))
	b.done.Store(0)
	items := make([]BatchItem, len(inputs))
	if len(inputs) == 0 {
		return items
	}

	pool := newWorkerPool[int, BatchItem](b.p.cfg.Workers, len(inputs))
	pool.start(func(i int) BatchItem {
		defer b.done.Add(1)
		if b.cancelled.Load() {
			return BatchItem{Index: i, Err: context.Canceled}
		}
		if err := ctx.Err(); err != nil {
			return BatchItem{Index: i, Err: err}
		}
		res, err := b.p.Convert(ctx, b.dir, inputs[i])
		return BatchItem{Index: i, Result: res, Err: err}
	})
	for i := range inputs {
		pool.submit(i)
	}
	pool.close()

	for item := range pool.results {
		items[item.Index] = item
	}
	return items
}

// Direction returns the batch's direction.
func (b *Batch) Direction() Direction {
	return b.dir
}

// Progress returns the number of finished documents and the batch size.
func (b *Batch) Progress() (done, total int) {
	return int(b.done.Load()), int(b.total.Load())
}

// Cancel stops the batch before its next document. Documents already being
// converted finish.
func (b *Batch) Cancel() {
	b.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (b *Batch) Cancelled() bool {
	return b.cancelled.Load()
}

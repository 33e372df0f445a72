package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

func TestWorkerPool(t *testing.T) {
	pool := newWorkerPool[int, int](4, 10)
	if pool.numWorkers != 4 {
		t.Errorf("numWorkers = %d", pool.numWorkers)
	}
	pool.start(func(n int) int { return n * n })
	for i := 1; i <= 10; i++ {
		pool.submit(i)
	}
	pool.close()

	sum := 0
	for r := range pool.results {
		sum += r
	}
	if sum != 385 {
		t.Errorf("sum of squares = %d, want 385", sum)
	}

	if p := newWorkerPool[int, int](8, 2); p.numWorkers != 2 {
		t.Errorf("pool for 2 jobs has %d workers", p.numWorkers)
	}
	if p := newWorkerPool[int, int](0, 100); p.numWorkers != maxWorkers {
		t.Errorf("default pool has %d workers", p.numWorkers)
	}
}

func TestConvertBatch(t *testing.T) {
	p := newPipeline(t, func(c *Config) {
		c.Workers = 3
		c.AutoRecovery = false
	})
	inputs := [][]byte{
		[]byte(`{\rtf1 zero\par}`),
		[]byte(`{\rtf1 one`),
		[]byte(`{\rtf1 two\par}`),
		[]byte(`{\rtf1 three\par}`),
		[]byte(`{\rtf1 four\par}`),
	}

	items := p.ConvertBatch(context.Background(), DirRTFToMarkdown, inputs)
	if len(items) != len(inputs) {
		t.Fatalf("got %d items", len(items))
	}
	words := []string{"zero", "one", "two", "three", "four"}
	for i, item := range items {
		if item.Index != i {
			t.Errorf("item %d has index %d", i, item.Index)
		}
		if i == 1 {
			if item.Err == nil || item.Result == nil || item.Result.Report.Outcome != "failed" {
				t.Errorf("item 1 = %+v", item)
			}
			continue
		}
		if item.Err != nil {
			t.Errorf("item %d error = %v", i, item.Err)
			continue
		}
		if !strings.Contains(string(item.Result.Output), words[i]) {
			t.Errorf("item %d output = %q", i, item.Result.Output)
		}
	}
}

func TestBatchProgress(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.Workers = 2 })
	inputs := make([][]byte, 20)
	for i := range inputs {
		inputs[i] = []byte(fmt.Sprintf("# Doc %d\n\nbody", i))
	}
	b := p.NewBatch(DirMarkdownToRTF)
	if done, total := b.Progress(); done != 0 || total != 0 {
		t.Errorf("Progress() before Run = %d/%d", done, total)
	}
	b.Run(context.Background(), inputs)
	if done, total := b.Progress(); done != 20 || total != 20 {
		t.Errorf("Progress() = %d/%d, want 20/20", done, total)
	}
}

func TestBatchCancel(t *testing.T) {
	p := newPipeline(t, func(c *Config) { c.Workers = 1 })
	inputs := make([][]byte, 50)
	for i := range inputs {
		inputs[i] = []byte("plain paragraph")
	}
	b := p.NewBatch(DirMarkdownToRTF)

	// Cancel while the batch is running, after the first document started.
	var calls atomic.Int32
	ctx := &cancelOnErr{Context: context.Background(), hook: func() {
		if calls.Add(1) == 3 {
			b.Cancel()
		}
	}}
	items := b.Run(ctx, inputs)

	if !b.Cancelled() {
		t.Fatal("Cancelled() = false")
	}
	converted, skipped := 0, 0
	for _, item := range items {
		switch item.Err {
		case nil:
			converted++
		case context.Canceled:
			skipped++
		default:
			t.Errorf("item %d error = %v", item.Index, item.Err)
		}
	}
	if converted == 0 || skipped == 0 || converted+skipped != len(inputs) {
		t.Errorf("converted %d, skipped %d", converted, skipped)
	}
	if done, _ := b.Progress(); done != len(inputs) {
		t.Errorf("done = %d", done)
	}
}

// cancelOnErr calls hook from Err, which the batch consults before each
// document.
type cancelOnErr struct {
	context.Context
	hook func()
}

func (c *cancelOnErr) Err() error {
	c.hook()
	return c.Context.Err()
}

func TestBatchContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := newPipeline(t, nil).ConvertBatch(ctx, DirMarkdownToRTF, [][]byte{[]byte("a"), []byte("b")})
	for _, item := range items {
		if item.Err != context.Canceled || item.Result != nil {
			t.Errorf("item = %+v", item)
		}
	}
}

func TestBatchEmpty(t *testing.T) {
	if items := newPipeline(t, nil).ConvertBatch(context.Background(), DirMarkdownToRTF, nil); len(items) != 0 {
		t.Errorf("items = %v", items)
	}
}

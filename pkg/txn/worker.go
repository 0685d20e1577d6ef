package txn

import (
	"sync"
	"sync/atomic"

	"github.com/mnohosten/colstore/pkg/lock"
)

// Worker owns a list of transactions and a single goroutine that runs
// them one at a time; concurrency exists only across workers (spec.md
// §4.7). Shaped after original_source/lstore/transaction_worker.py's
// run()/join()/is_done(), with a goroutine + WaitGroup lifecycle.
type Worker struct {
	lm           *lock.Manager
	transactions []*Transaction
	outcomes     []bool

	wg             sync.WaitGroup
	started        bool
	committedCount atomic.Int64
	mu             sync.Mutex
}

// NewWorker creates a worker bound to a lock manager shared across the
// table(s) its transactions touch.
func NewWorker(lm *lock.Manager) *Worker {
	return &Worker{lm: lm}
}

// AddTransaction enqueues a transaction to run once Run is called. Must
// be called before Run.
func (w *Worker) AddTransaction(t *Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transactions = append(w.transactions, t)
}

// Run starts the worker's single goroutine, which executes every queued
// transaction in order. Run is idempotent: calling it more than once has
// no additional effect.
func (w *Worker) Run() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	txns := append([]*Transaction(nil), w.transactions...)
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		outcomes := make([]bool, len(txns))
		for i, t := range txns {
			committed, _ := t.Run(w.lm)
			outcomes[i] = committed
			if committed {
				w.committedCount.Add(1)
			}
		}
		w.mu.Lock()
		w.outcomes = outcomes
		w.mu.Unlock()
	}()
}

// Join waits for the worker's goroutine to finish.
func (w *Worker) Join() {
	w.wg.Wait()
}

// CommittedCount returns how many of the worker's transactions have
// committed so far.
func (w *Worker) CommittedCount() int64 {
	return w.committedCount.Load()
}

// Outcomes returns the per-transaction commit/abort results, valid after
// Join returns.
func (w *Worker) Outcomes() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bool(nil), w.outcomes...)
}

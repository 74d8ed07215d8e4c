package decompress

import (
	"container/heap"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
)

// batchQueue is the strategy that turns pushed batches into rows. The
// operator calls pop, then pushes batches while needsNextBatch holds, then
// reads topRow.
type batchQueue interface {
	needsNextBatch() bool
	pushBatch(b *columnar.Batch) error
	// pop drops the current top row.
	pop() error
	// topRow is the next output row, nil when the queue is empty.
	topRow() []interface{}
	// reset releases every batch for a rescan.
	reset()
	free()
	name() string
}

// fifoQueue decompresses one batch at a time in arrival order.
type fifoQueue struct {
	pool    *batchPool
	current *batchState
}

func newFIFOQueue(pool *batchPool) *fifoQueue {
	return &fifoQueue{pool: pool}
}

func (q *fifoQueue) name() string { return "FIFO" }

func (q *fifoQueue) needsNextBatch() bool {
	return q.current == nil
}

func (q *fifoQueue) pushBatch(b *columnar.Batch) error {
	s := q.pool.acquire()
	if err := s.load(b); err != nil {
		q.pool.release(s)
		return err
	}
	ok, err := s.advance()
	if err != nil || !ok {
		q.pool.release(s)
		return err
	}
	q.current = s
	return nil
}

func (q *fifoQueue) pop() error {
	if q.current == nil {
		return nil
	}
	ok, err := q.current.advance()
	if err != nil || !ok {
		q.pool.release(q.current)
		q.current = nil
	}
	return err
}

func (q *fifoQueue) topRow() []interface{} {
	if q.current == nil {
		return nil
	}
	return q.current.row
}

func (q *fifoQueue) reset() {
	if q.current != nil {
		q.pool.release(q.current)
		q.current = nil
	}
}

func (q *fifoQueue) free() {
	q.reset()
}

// mergeHeap orders batches by their current row, then by arrival.
type mergeHeap struct {
	items []*batchState
	keys  []keyComparator
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if cmp := compareRows(h.keys, a.row, b.row); cmp != 0 {
		return cmp < 0
	}
	return a.arrival < b.arrival
}

func (h *mergeHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mergeHeap) Push(x interface{}) {
	h.items = append(h.items, x.(*batchState))
}

func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return x
}

// heapQueue merges batches that are each sorted by the merge keys and
// arrive ordered by their first row.
type heapQueue struct {
	pool     *batchPool
	heap     mergeHeap
	arrivals uint64
	// lastFirst is row 0 of the most recently pushed batch.
	lastFirst    []interface{}
	hasLastFirst bool
}

func newHeapQueue(pool *batchPool, keys []keyComparator, width int) *heapQueue {
	return &heapQueue{
		pool:      pool,
		heap:      mergeHeap{keys: keys},
		lastFirst: make([]interface{}, width),
	}
}

func (q *heapQueue) name() string { return "Merge heap" }

// needsNextBatch holds while a batch that has not been pulled yet could
// still sort before the top. Upstream batches never start before the last
// pushed one, so the top is safe once it sorts before that batch's first
// row.
func (q *heapQueue) needsNextBatch() bool {
	if q.heap.Len() == 0 || !q.hasLastFirst {
		return true
	}
	return compareRows(q.heap.keys, q.lastFirst, q.heap.items[0].row) <= 0
}

func (q *heapQueue) pushBatch(b *columnar.Batch) error {
	s := q.pool.acquire()
	if err := s.load(b); err != nil {
		q.pool.release(s)
		return err
	}
	s.arrival = q.arrivals
	q.arrivals++
	ok, err := s.advance()
	if s.hasFirst {
		copy(q.lastFirst, s.first)
		q.hasLastFirst = true
	}
	if err != nil || !ok {
		q.pool.release(s)
		return err
	}
	heap.Push(&q.heap, s)
	return nil
}

func (q *heapQueue) pop() error {
	if q.heap.Len() == 0 {
		return nil
	}
	top := q.heap.items[0]
	ok, err := top.advance()
	if err != nil || !ok {
		heap.Pop(&q.heap)
		q.pool.release(top)
		return err
	}
	heap.Fix(&q.heap, 0)
	return nil
}

func (q *heapQueue) topRow() []interface{} {
	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap.items[0].row
}

func (q *heapQueue) reset() {
	for _, s := range q.heap.items {
		q.pool.release(s)
	}
	q.heap.items = q.heap.items[:0]
	clear(q.lastFirst)
	q.hasLastFirst = false
	q.arrivals = 0
}

func (q *heapQueue) free() {
	q.reset()
	q.heap.items = nil
}

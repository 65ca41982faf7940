package scheduler

import (
	"container/heap"
	"sync"

	"github.com/lumilearn/content-pipeline/internal/scheduler/domain"
)

// queueItem is one queued job plus its heap bookkeeping. seq preserves
// enqueue order inside a priority tier.
type queueItem struct {
	job   *domain.Job
	seq   uint64
	index int
}

// jobHeap orders items by priority tier, then FIFO within the tier.
type jobHeap []*queueItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	ri, rj := h[i].job.Priority.Rank(), h[j].job.Priority.Rank()
	if ri != rj {
		return ri > rj
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// jobQueue is the bounded priority queue feeding the worker pool. pop blocks
// on a condition variable until work arrives or the queue closes, so workers
// never poll.
type jobQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     jobHeap
	byID     map[string]*queueItem
	capacity int
	seq      uint64
	closed   bool
}

func newJobQueue(capacity int) *jobQueue {
	q := &jobQueue{
		byID:     make(map[string]*queueItem),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a job. A full queue rejects immediately rather than blocking
// the intake path.
func (q *jobQueue) push(job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.ErrShuttingDown
	}
	if q.capacity > 0 && len(q.heap) >= q.capacity {
		return domain.ErrQueueFull
	}

	q.seq++
	item := &queueItem{job: job, seq: q.seq}
	heap.Push(&q.heap, item)
	q.byID[job.JobID] = item
	q.cond.Signal()
	return nil
}

// pop blocks until a job is available and returns the highest-priority,
// earliest-enqueued one. Returns false once the queue is closed and drained.
func (q *jobQueue) pop() (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil, false
	}

	item := heap.Pop(&q.heap).(*queueItem)
	delete(q.byID, item.job.JobID)
	return item.job, true
}

// remove takes a still-queued job out of the queue, for cancellation.
func (q *jobQueue) remove(jobID string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[jobID]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.heap, item.index)
	delete(q.byID, jobID)
	return item.job, true
}

func (q *jobQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// close stops accepting work and wakes every blocked pop.
func (q *jobQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Package pqueue provides a keyed min-heap whose priorities are recomputed
// in bulk by an externally supplied function.
package pqueue

import (
	"container/heap"
	"errors"
	"math"
	"sync"
)

// Drop is the priority of an element that is no longer relevant. Elements
// with this priority are never dequeued: they are rejected by Enqueue and
// removed by Reprioritize.
var Drop = math.Inf(1)

var (
	ErrEmpty     = errors.New("pqueue: queue is empty")
	ErrNotFound  = errors.New("pqueue: key not found")
	ErrDuplicate = errors.New("pqueue: key already queued")
)

type entry[K comparable, T any] struct {
	key      K
	elem     T
	priority float64
	index    int
}

// entries implements heap.Interface. Swap keeps every entry's index
// current so entries can be removed by key.
type entries[K comparable, T any] []*entry[K, T]

func (h entries[K, T]) Len() int { return len(h) }

func (h entries[K, T]) Less(i, j int) bool { return h[i].priority < h[j].priority }

func (h entries[K, T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entries[K, T]) Push(x any) {
	e := x.(*entry[K, T])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entries[K, T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of elements identified by key. The element with the
// lowest priority is dequeued first. All methods are safe for concurrent
// use.
type Queue[K comparable, T any] struct {
	mu    sync.Mutex
	keyOf func(T) K
	heap  entries[K, T]
	keys  map[K]*entry[K, T]
}

// New returns an empty queue that identifies elements by keyOf.
func New[K comparable, T any](keyOf func(T) K) *Queue[K, T] {
	return &Queue[K, T]{
		keyOf: keyOf,
		keys:  make(map[K]*entry[K, T]),
	}
}

// Enqueue adds elem with the given priority. It returns false without
// queueing when priority is Drop, and ErrDuplicate when an element with the
// same key is already queued.
func (q *Queue[K, T]) Enqueue(elem T, priority float64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if priority == Drop {
		return false, nil
	}
	key := q.keyOf(elem)
	if _, ok := q.keys[key]; ok {
		return false, ErrDuplicate
	}
	e := &entry[K, T]{key: key, elem: elem, priority: priority}
	heap.Push(&q.heap, e)
	q.keys[key] = e
	return true, nil
}

// Dequeue removes and returns the element with the lowest priority.
func (q *Queue[K, T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		var zero T
		return zero, ErrEmpty
	}
	e := heap.Pop(&q.heap).(*entry[K, T])
	delete(q.keys, e.key)
	return e.elem, nil
}

// Peek returns the element Dequeue would return, and its priority, without
// removing it.
func (q *Queue[K, T]) Peek() (T, float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		var zero T
		return zero, 0, ErrEmpty
	}
	return q.heap[0].elem, q.heap[0].priority, nil
}

// Remove drops the element with the given key.
func (q *Queue[K, T]) Remove(key K) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.keys[key]
	if !ok {
		return ErrNotFound
	}
	heap.Remove(&q.heap, e.index)
	delete(q.keys, key)
	return nil
}

func (q *Queue[K, T]) Contains(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.keys[key]
	return ok
}

// Priority returns the current priority of the element with the given key.
func (q *Queue[K, T]) Priority(key K) (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.keys[key]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

func (q *Queue[K, T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

func (q *Queue[K, T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes every element.
func (q *Queue[K, T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.heap {
		q.heap[i] = nil
	}
	q.heap = q.heap[:0]
	clear(q.keys)
}

// Reprioritize recomputes the priority of every element with fn. Elements
// for which fn returns Drop are removed. The heap is rebuilt once, in
// linear time. It returns the number of removed elements. fn is called
// with the queue locked and must not call back into q.
func (q *Queue[K, T]) Reprioritize(fn func(T) float64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.heap {
		e.priority = fn(e.elem)
		if e.priority == Drop {
			delete(q.keys, e.key)
			e.index = -1
			continue
		}
		e.index = n
		q.heap[n] = e
		n++
	}
	dropped := len(q.heap) - n
	for i := n; i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = q.heap[:n]
	heap.Init(&q.heap)
	return dropped
}

// Keys returns the keys of all queued elements in heap order.
func (q *Queue[K, T]) Keys() []K {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]K, len(q.heap))
	for i, e := range q.heap {
		keys[i] = e.key
	}
	return keys
}

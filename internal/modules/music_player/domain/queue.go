package domain

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Queue is the ordered list of entries waiting to be played for one guild.
// The playing entry is never part of the queue. All operations are safe for
// concurrent use; index checks happen under the same lock as the mutation.
type Queue struct {
	mu      sync.Mutex
	entries []QueueEntry
}

// NewQueue creates a new empty Queue.
func NewQueue() *Queue {
	return &Queue{
		entries: make([]QueueEntry, 0),
	}
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// List returns a copy of all queued entries in play order.
func (q *Queue) List() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]QueueEntry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Get returns the entry at index without removing it.
func (q *Queue) Get(index int) (QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkIndex(index, len(q.entries)); err != nil {
		return QueueEntry{}, err
	}
	return q.entries[index], nil
}

// Append adds entries to the end of the queue.
func (q *Queue) Append(entries ...QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entries...)
}

// InsertAt inserts entry before the element at index.
// An index equal to the queue length appends.
func (q *Queue) InsertAt(index int, entry QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkIndex(index, len(q.entries)+1); err != nil {
		return err
	}
	q.entries = append(q.entries, QueueEntry{})
	copy(q.entries[index+1:], q.entries[index:])
	q.entries[index] = entry
	return nil
}

// RemoveAt removes and returns the entry at index.
// Later entries shift one position towards the front.
func (q *Queue) RemoveAt(index int) (QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkIndex(index, len(q.entries)); err != nil {
		return QueueEntry{}, err
	}
	entry := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	return entry, nil
}

// Swap exchanges the entries at i and j. Swapping an index with itself is a no-op.
func (q *Queue) Swap(i, j int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkIndex(i, len(q.entries)); err != nil {
		return err
	}
	if err := q.checkIndex(j, len(q.entries)); err != nil {
		return err
	}
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	return nil
}

// Replace installs entries as the whole queue.
func (q *Queue) Replace(entries []QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.replaceLocked(entries)
}

// Clear removes all entries and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.entries = make([]QueueEntry, 0)
	return n
}

// PopFront removes and returns the head of the queue.
// The second return value is false when the queue is empty.
func (q *Queue) PopFront() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	entry := q.entries[0]
	q.entries[0] = QueueEntry{}
	q.entries = q.entries[1:]
	return entry, true
}

// Shuffle randomizes the queue order. A nil r uses the package-level source.
// The permutation is built aside and installed in one step.
func (q *Queue) Shuffle(r *rand.Rand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	permuted := make([]QueueEntry, len(q.entries))
	copy(permuted, q.entries)

	swap := func(i, j int) { permuted[i], permuted[j] = permuted[j], permuted[i] }
	if r != nil {
		r.Shuffle(len(permuted), swap)
	} else {
		rand.Shuffle(len(permuted), swap)
	}

	q.replaceLocked(permuted)
}

func (q *Queue) replaceLocked(entries []QueueEntry) {
	next := make([]QueueEntry, len(entries))
	copy(next, entries)
	q.entries = next
}

func (q *Queue) checkIndex(index, limit int) error {
	if index < 0 || index >= limit {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, index, len(q.entries))
	}
	return nil
}

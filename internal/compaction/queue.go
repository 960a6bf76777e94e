package compaction

import "github.com/concordkv/concordkv/internal/memtable"

// taskQueue is a priority-ordered FIFO: among tasks of equal priority,
// insertion order is preserved. Insertion places a task at the head if its
// priority exceeds the current head's, otherwise at the first position
// whose successor has strictly lower priority (spec §4.6).
type taskQueue struct {
	items []*Task
}

func (q *taskQueue) push(t *Task) {
	i := 0
	for i < len(q.items) && q.items[i].Priority >= t.Priority {
		i++
	}
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = t
}

// pop removes and returns the head task. ok is false if the queue is empty.
func (q *taskQueue) pop() (t *Task, ok bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t = q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *taskQueue) len() int { return len(q.items) }

// hasMemtable reports whether a queued (not yet dispatched) task already
// targets mt, by identity. Used to avoid double-enqueueing a flush for the
// same frozen MemTable.
func (q *taskQueue) hasMemtable(mt *memtable.MemTable) bool {
	for _, t := range q.items {
		if t.Type == TypeLevel0 && t.Memtable == mt {
			return true
		}
	}
	return false
}

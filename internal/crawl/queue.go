package crawl

// fifo is a FIFO queue with O(1) amortized push and pop. Popped slots
// are reclaimed by sliding the backing slice once the dead prefix
// outgrows the live tail.
type fifo[T any] struct {
	items []T
	head  int
}

// compactThreshold is the minimum dead-prefix length before the
// backing slice is slid down.
const compactThreshold = 64

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() T {
	v := q.items[q.head]

	// Release the reference so popped elements can be collected.
	var zero T

	q.items[q.head] = zero
	q.head++

	if q.head >= compactThreshold && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}

	return v
}

func (q *fifo[T]) len() int {
	return len(q.items) - q.head
}

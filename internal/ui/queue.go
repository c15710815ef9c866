package ui

// updateQueue forwards scheduled callbacks to sink one at a time, in
// submission order.
type updateQueue struct {
	ch chan func()
}

func newUpdateQueue(sink func(func())) *updateQueue {
	q := &updateQueue{ch: make(chan func(), 64)}
	go q.run(sink)
	return q
}

func (q *updateQueue) run(sink func(func())) {
	for fn := range q.ch {
		sink(fn)
	}
}

func (q *updateQueue) Schedule(fn func()) {
	q.ch <- fn
}

package mvc

import "sync"

// Observable is the subscription half of a view model. Views subscribe
// and re-render from the model on every notification; the cancel
// function removes the listener.
type Observable struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
}

// Subscribe registers a listener and returns its cancel function.
func (o *Observable) Subscribe(listener func()) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listeners == nil {
		o.listeners = make(map[int]func())
	}
	id := o.nextID
	o.nextID++
	o.listeners[id] = listener
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// Notify invokes every registered listener.
func (o *Observable) Notify() {
	o.mu.Lock()
	listeners := make([]func(), 0, len(o.listeners))
	for _, listener := range o.listeners {
		listeners = append(listeners, listener)
	}
	o.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

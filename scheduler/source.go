package scheduler

import "sync"

// Emitter is an in-process Source. Adapters that observe a page embed one
// and call Emit when they detect a change.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Signal)
}

// Subscribe implements Source
func (e *Emitter) Subscribe(fn func(Signal)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[int]func(Signal))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

// Emit delivers sig to every current subscriber
func (e *Emitter) Emit(sig Signal) {
	e.mu.Lock()
	fns := make([]func(Signal), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

// Subscribers returns the number of attached callbacks
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

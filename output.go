package socketsubject

import (
	"slices"
	"sync"
)

// Observer receives the messages of one connection generation.
// Error and Complete are terminal: exactly one of them is called, once, and
// nothing follows it.
type Observer[T any] interface {
	Next(v T)
	Error(err error)
	Complete()
}

// Observe builds an Observer from functions. Nil functions are ignored.
func Observe[T any](next func(T), onError func(error), complete func()) Observer[T] {
	return funcObserver[T]{next: next, err: onError, complete: complete}
}

type funcObserver[T any] struct {
	next     func(T)
	err      func(error)
	complete func()
}

func (o funcObserver[T]) Next(v T) {
	if o.next != nil {
		o.next(v)
	}
}

func (o funcObserver[T]) Error(err error) {
	if o.err != nil {
		o.err(err)
	}
}

func (o funcObserver[T]) Complete() {
	if o.complete != nil {
		o.complete()
	}
}

// Subscription detaches an observer. Unsubscribe is safe to call more than
// once and from inside the observer's own callbacks.
type Subscription struct {
	once     sync.Once
	teardown func()
}

// Unsubscribe stops delivery to the observer. When it was the last observer
// of the live connection, the connection is closed.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.teardown)
}

// outputChannel multicasts one generation's events to its observers.
// Callbacks run without the lock held.
type outputChannel[T any] struct {
	mu        sync.Mutex
	observers map[uint64]Observer[T]
	nextID    uint64
	stopped   bool
	err       error // terminal error; nil with stopped means completed
}

func newOutputChannel[T any]() *outputChannel[T] {
	return &outputChannel[T]{observers: make(map[uint64]Observer[T])}
}

// add attaches obs and returns its id. On a stopped channel the terminal
// signal is replayed to obs instead and ok is false.
func (c *outputChannel[T]) add(obs Observer[T]) (id uint64, ok bool) {
	c.mu.Lock()
	if c.stopped {
		err := c.err
		c.mu.Unlock()
		if err != nil {
			obs.Error(err)
		} else {
			obs.Complete()
		}
		return 0, false
	}

	c.nextID++
	id = c.nextID
	c.observers[id] = obs
	c.mu.Unlock()

	return id, true
}

// remove detaches an observer and returns how many remain.
func (c *outputChannel[T]) remove(id uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.observers, id)
	return len(c.observers)
}

func (c *outputChannel[T]) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.observers)
}

func (c *outputChannel[T]) next(v T) {
	for _, obs := range c.snapshot(false, nil) {
		obs.Next(v)
	}
}

func (c *outputChannel[T]) error(err error) {
	for _, obs := range c.snapshot(true, err) {
		obs.Error(err)
	}
}

func (c *outputChannel[T]) complete() {
	for _, obs := range c.snapshot(true, nil) {
		obs.Complete()
	}
}

// snapshot copies the observers in subscription order. With stop set it also
// marks the channel terminated and empties it. A stopped channel yields nothing.
func (c *outputChannel[T]) snapshot(stop bool, err error) []Observer[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]Observer[T], 0, len(ids))
	for _, id := range ids {
		out = append(out, c.observers[id])
	}

	if stop {
		c.stopped = true
		c.err = err
		c.observers = make(map[uint64]Observer[T])
	}

	return out
}

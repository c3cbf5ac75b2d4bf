package app2app

import (
	"fmt"
	"net/url"
	"sync"
)

// Handler receives the callback URL matched to a registration.
type Handler func(*url.URL)

type waiter struct {
	generation uint64
	handler    Handler
}

// Registry matches incoming callback URLs to the waiter registered for
// their normalized URI. Each registration is identified by a generation;
// unregistering a registration that was replaced is a no-op.
type Registry struct {
	mu         sync.Mutex
	generation uint64
	waiters    map[string]waiter
}

func NewRegistry() *Registry {
	return &Registry{
		waiters: make(map[string]waiter),
	}
}

// Register installs handler for redirectURI, replacing an earlier one.
// The returned func removes the registration and may be called many times.
func (r *Registry) Register(redirectURI string, handler Handler) (func(), error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("app2app: invalid redirect uri: %w", err)
	}
	key := Normalize(u)

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.waiters[key] = waiter{generation: gen, handler: handler}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(key, gen)
		})
	}, nil
}

// Deliver hands u to the waiter registered for its normalized URI and
// reports whether there was one. The waiter is consumed and runs on its
// own goroutine.
func (r *Registry) Deliver(u *url.URL) bool {
	key := Normalize(u)

	r.mu.Lock()
	w, ok := r.waiters[key]
	if ok {
		delete(r.waiters, key)
	}
	r.mu.Unlock()

	if !ok || w.handler == nil {
		return false
	}
	go w.handler(u)
	return true
}

// Wait registers a waiter whose result is sent on the returned channel.
// The channel is buffered, so a delivery never blocks.
func (r *Registry) Wait(redirectURI string) (<-chan *url.URL, func(), error) {
	ch := make(chan *url.URL, 1)
	unregister, err := r.Register(redirectURI, func(u *url.URL) {
		ch <- u
	})
	if err != nil {
		return nil, nil, err
	}
	return ch, unregister, nil
}

func (r *Registry) remove(key string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.waiters[key]; ok && w.generation == gen {
		delete(r.waiters, key)
	}
}

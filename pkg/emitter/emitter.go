// Package emitter provides the observer registry shared by channels, frames
// and the session facade.
//
// Listeners run synchronously on the goroutine that calls Emit, in the order
// they were registered. A panicking listener never interrupts dispatch to its
// siblings and never reaches the caller of Emit: the panic is recovered and
// dropped without logging. Observers are isolated from each other on purpose
// and callers should not rely on Emit to surface listener faults.
//
// Every Emit for an event other than Wildcard is followed by an Emit of
// Wildcard whose first argument is the original event name.
package emitter

import "sync"

// Wildcard is the synthetic event that rebroadcasts every other event with the
// event name prepended to its arguments.
const Wildcard = "*"

// Listener receives the arguments passed to Emit.
type Listener func(args ...any)

// ListenerID identifies a registered listener. Go funcs are not comparable,
// so removal by identity goes through the id returned from On or Once.
type ListenerID uint64

type entry struct {
	id   ListenerID
	fn   Listener
	once bool
}

// Emitter is a minimal multi-listener event dispatcher. The zero value is
// ready to use and it is safe for concurrent use.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]*entry
	nextID    ListenerID
}

// New returns an empty Emitter.
func New() *Emitter {
	return &Emitter{}
}

// On appends fn to the listeners of event.
func (e *Emitter) On(event string, fn Listener) ListenerID {
	return e.add(event, fn, false)
}

// Once appends fn to the listeners of event; it is removed before its first
// invocation.
func (e *Emitter) Once(event string, fn Listener) ListenerID {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Listener, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[string][]*entry)
	}
	e.nextID++
	e.listeners[event] = append(e.listeners[event], &entry{id: e.nextID, fn: fn, once: once})
	return e.nextID
}

// Off removes the listeners with the given ids from event. Called without ids
// it discards every listener registered for event.
func (e *Emitter) Off(event string, ids ...ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[event]
	if len(list) == 0 {
		return
	}
	if len(ids) == 0 {
		delete(e.listeners, event)
		return
	}

	drop := make(map[ListenerID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]*entry, 0, len(list))
	for _, item := range list {
		if _, ok := drop[item.id]; !ok {
			kept = append(kept, item)
		}
	}
	e.setLocked(event, kept)
}

// Listeners reports how many listeners are registered for event.
func (e *Emitter) Listeners(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit invokes every listener currently registered for event, then the
// Wildcard listeners with event prepended to args.
func (e *Emitter) Emit(event string, args ...any) {
	e.dispatch(event, args)

	if event != Wildcard {
		e.dispatch(Wildcard, append([]any{event}, args...))
	}
}

func (e *Emitter) dispatch(event string, args []any) {
	e.mu.Lock()
	snapshot := append([]*entry(nil), e.listeners[event]...)
	e.mu.Unlock()

	for _, item := range snapshot {
		if item.once && !e.claim(event, item) {
			continue
		}
		if !item.once && !e.registered(event, item) {
			continue
		}
		invoke(item.fn, args)
	}
}

// claim removes a once entry from the live list. It reports false when the
// entry was already removed, either by Off or by a concurrent Emit.
func (e *Emitter) claim(event string, item *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[event]
	for i, cur := range list {
		if cur == item {
			kept := make([]*entry, 0, len(list)-1)
			kept = append(kept, list[:i]...)
			kept = append(kept, list[i+1:]...)
			e.setLocked(event, kept)
			return true
		}
	}
	return false
}

// registered reports whether item is still attached; listeners removed by an
// earlier listener in the same dispatch are skipped.
func (e *Emitter) registered(event string, item *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cur := range e.listeners[event] {
		if cur == item {
			return true
		}
	}
	return false
}

func (e *Emitter) setLocked(event string, list []*entry) {
	if len(list) == 0 {
		delete(e.listeners, event)
		return
	}
	e.listeners[event] = list
}

func invoke(fn Listener, args []any) {
	defer func() { _ = recover() }()
	fn(args...)
}

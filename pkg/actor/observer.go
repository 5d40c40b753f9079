package actor

import (
	"sync"

	"github.com/aretw0/troupe/pkg/domain"
)

// Observer receives snapshot updates of an actor.
// Any callback may be nil.
type Observer struct {
	Next     func(Snapshot)
	Error    func(error)
	Complete func()
}

type observerEntry struct {
	id       int
	observer Observer
}

type listenerEntry struct {
	id        int
	eventType string
	fn        func(domain.Event)
}

type subscriptions struct {
	mu        sync.Mutex
	seq       int
	observers []observerEntry
	listeners []listenerEntry
	closed    bool
	err       error
}

func (s *subscriptions) addObserver(o Observer) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	s.seq++
	s.observers = append(s.observers, observerEntry{id: s.seq, observer: o})
	return s.seq, true
}

func (s *subscriptions) removeObserver(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *subscriptions) addListener(eventType string, fn func(domain.Event)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.listeners = append(s.listeners, listenerEntry{id: s.seq, eventType: eventType, fn: fn})
	return s.seq
}

func (s *subscriptions) removeListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.listeners {
		if e.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *subscriptions) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		out[i] = e.observer
	}
	return out
}

func (s *subscriptions) next(snap Snapshot) {
	for _, o := range s.snapshotObservers() {
		if o.Next != nil {
			o.Next(snap)
		}
	}
}

func (s *subscriptions) terminate(err error) []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.err = err
	out := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		out[i] = e.observer
	}
	s.observers = nil
	return out
}

func (s *subscriptions) complete() {
	for _, o := range s.terminate(nil) {
		if o.Complete != nil {
			o.Complete()
		}
	}
}

func (s *subscriptions) fail(err error) {
	for _, o := range s.terminate(err) {
		if o.Error != nil {
			o.Error(err)
		}
	}
}

func (s *subscriptions) terminal() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.err
}

// Subscribe registers an observer and returns a function that removes it.
// Subscribing to a terminated actor calls Complete or Error right away.
func (a *Actor) Subscribe(o Observer) (unsubscribe func()) {
	id, ok := a.subs.addObserver(o)
	if !ok {
		if _, err := a.subs.terminal(); err != nil {
			if o.Error != nil {
				o.Error(err)
			}
		} else if o.Complete != nil {
			o.Complete()
		}
		return func() {}
	}
	return func() { a.subs.removeObserver(id) }
}

// SubscribeFunc registers a snapshot callback.
func (a *Actor) SubscribeFunc(fn func(Snapshot)) (unsubscribe func()) {
	return a.Subscribe(Observer{Next: fn})
}

// On registers a listener for events emitted by the logic.
// The "*" event type receives every emitted event.
func (a *Actor) On(eventType string, fn func(domain.Event)) (off func()) {
	id := a.subs.addListener(eventType, fn)
	return func() { a.subs.removeListener(id) }
}

func (a *Actor) emit(ev domain.Event) {
	a.subs.mu.Lock()
	var fns []func(domain.Event)
	for _, l := range a.subs.listeners {
		if l.eventType == ev.Type || l.eventType == domain.WildcardDescriptor {
			fns = append(fns, l.fn)
		}
	}
	a.subs.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

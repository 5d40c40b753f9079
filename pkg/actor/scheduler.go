package actor

import (
	"sort"
	"sync"
	"time"

	"github.com/aretw0/troupe/pkg/domain"
)

// scheduler keeps the delayed events of a system.
// Entries are keyed by the scheduling actor's session id and the send id so
// that an actor can cancel what it scheduled without seeing other actors' ids.
type scheduler struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]*scheduledEntry
}

type scheduledEntry struct {
	key    string
	id     string
	source *Actor
	target *Actor
	event  domain.Event
	dueAt  time.Time
	timer  Timer
}

func newScheduler(clock Clock) *scheduler {
	return &scheduler{
		clock:   clock,
		entries: make(map[string]*scheduledEntry),
	}
}

func scheduleKey(source *Actor, id string) string {
	return source.sessionID + "/" + id
}

func (s *scheduler) schedule(source, target *Actor, ev domain.Event, dueAt time.Time, id string) {
	key := scheduleKey(source, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		old.timer.Stop()
		delete(s.entries, key)
	}

	entry := &scheduledEntry{
		key:    key,
		id:     id,
		source: source,
		target: target,
		event:  ev,
		dueAt:  dueAt,
	}
	s.entries[key] = entry
	entry.timer = s.clock.AfterFunc(dueAt.Sub(s.clock.Now()), func() {
		s.fire(entry)
	})
}

func (s *scheduler) fire(entry *scheduledEntry) {
	s.mu.Lock()
	if s.entries[entry.key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.entries, entry.key)
	s.mu.Unlock()

	entry.target.deliver(entry.event)
}

func (s *scheduler) cancel(source *Actor, id string) {
	key := scheduleKey(source, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.timer.Stop()
		delete(s.entries, key)
	}
}

func (s *scheduler) cancelAll(source *Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.source == source {
			entry.timer.Stop()
			delete(s.entries, key)
		}
	}
}

// pending lists the events source scheduled to itself, earliest first.
func (s *scheduler) pending(source *Actor) []domain.ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ScheduledEvent
	for _, entry := range s.entries {
		if entry.source == source && entry.target == source {
			out = append(out, domain.ScheduledEvent{
				ID:    entry.id,
				Event: entry.event,
				DueAt: entry.dueAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out
}

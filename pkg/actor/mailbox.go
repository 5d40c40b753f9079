package actor

import (
	"sync"

	"github.com/aretw0/troupe/pkg/domain"
)

type mailboxStatus int

const (
	mailboxDeferred   mailboxStatus = iota // Buffering until start
	mailboxIdle                            // Ready; the next enqueue flushes
	mailboxProcessing                      // A caller is draining the queue
	mailboxClosed                          // No further events accepted
)

// envelope is a mailbox item: an event or a stop request.
type envelope struct {
	event domain.Event
	stop  bool
}

// mailbox is a FIFO processed by at most one caller at a time.
// The caller whose enqueue finds the mailbox idle drains it, including
// everything appended while it is processing; every other caller only appends.
type mailbox struct {
	mu      sync.Mutex
	status  mailboxStatus
	queue   []envelope
	process func(envelope) error
}

func newMailbox(process func(envelope) error) *mailbox {
	return &mailbox{process: process}
}

// enqueue appends an item and flushes if no other caller is processing.
// It returns the first processing error observed while flushing.
func (m *mailbox) enqueue(env envelope) error {
	m.mu.Lock()
	switch m.status {
	case mailboxClosed:
		m.mu.Unlock()
		return domain.ErrActorStopped
	case mailboxDeferred, mailboxProcessing:
		m.queue = append(m.queue, env)
		m.mu.Unlock()
		return nil
	}
	m.queue = append(m.queue, env)
	m.status = mailboxProcessing
	m.mu.Unlock()
	return m.flush()
}

// start leaves deferred mode and releases buffered items in order.
func (m *mailbox) start() error {
	m.mu.Lock()
	if m.status != mailboxDeferred {
		m.mu.Unlock()
		return nil
	}
	if len(m.queue) == 0 {
		m.status = mailboxIdle
		m.mu.Unlock()
		return nil
	}
	m.status = mailboxProcessing
	m.mu.Unlock()
	return m.flush()
}

func (m *mailbox) flush() error {
	var first error
	for {
		m.mu.Lock()
		if m.status == mailboxClosed || len(m.queue) == 0 {
			if m.status == mailboxProcessing {
				m.status = mailboxIdle
			}
			m.mu.Unlock()
			return first
		}
		env := m.queue[0]
		m.queue[0] = envelope{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := m.process(env); err != nil && first == nil {
			first = err
		}
	}
}

// clear discards every queued item.
func (m *mailbox) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
}

// close discards queued items and rejects further enqueues.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
	m.status = mailboxClosed
}

// prepend places events at the head of a deferred mailbox (used on restore).
func (m *mailbox) prepend(events []domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	head := make([]envelope, 0, len(events)+len(m.queue))
	for _, ev := range events {
		head = append(head, envelope{event: ev})
	}
	m.queue = append(head, m.queue...)
}

// pending returns the queued events, excluding stop requests.
func (m *mailbox) pending() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, env := range m.queue {
		if !env.stop {
			out = append(out, env.event)
		}
	}
	return out
}

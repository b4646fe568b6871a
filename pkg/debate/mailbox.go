package debate

import (
	"sync"

	"inquest/pkg/proto"
)

// queueCap bounds each receiver's pending queue so a chattering worker
// cannot grow the mailbox without bound; the oldest messages are dropped
// first, matching the card store's recency bias.
const queueCap = 32

// Mailbox is the per-worker message exchange for one session. Delivery is
// best-effort and consumption is destructive: Drain hands a receiver its
// pending messages exactly once and never blocks.
type Mailbox struct {
	mu      sync.Mutex
	queues  map[string][]proto.MailboxMessage
	nextSeq int
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{queues: make(map[string][]proto.MailboxMessage)}
}

// Send enqueues one message for the receiver.
func (m *Mailbox) Send(sender, receiver string, t proto.MsgType, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	q := append(m.queues[receiver], proto.MailboxMessage{
		Sender:   sender,
		Receiver: receiver,
		Type:     t,
		Content:  content,
		Seq:      m.nextSeq,
	})
	if len(q) > queueCap {
		q = q[len(q)-queueCap:]
	}
	m.queues[receiver] = q
}

// Drain removes and returns the receiver's pending messages in creation
// order. An empty queue returns nil immediately.
func (m *Mailbox) Drain(receiver string) []proto.MailboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[receiver]
	if len(q) == 0 {
		return nil
	}
	delete(m.queues, receiver)
	return q
}

// Pending reports how many messages await the receiver.
func (m *Mailbox) Pending(receiver string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[receiver])
}

// Clear drops every pending message. Called at phase boundaries so stale
// round context does not leak forward.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = make(map[string][]proto.MailboxMessage)
}

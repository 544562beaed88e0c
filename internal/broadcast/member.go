package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultMailboxSize is the number of undelivered events a member may hold.
// A publish that finds the mailbox full waits for the owner to drain it
// before evicting the member.
const DefaultMailboxSize = 256

// Member is one live connection's mailbox inside the Registry.
type Member struct {
	id       uuid.UUID
	events   chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

func NewMember(mailboxSize int) *Member {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	return &Member{
		id:     uuid.New(),
		events: make(chan []byte, mailboxSize),
		done:   make(chan struct{}),
	}
}

func (m *Member) ID() uuid.UUID { return m.id }

// Events yields published payloads in the order the Registry accepted them.
func (m *Member) Events() <-chan []byte { return m.events }

// Done is closed when the Registry drops the member on its own initiative,
// by eviction, a timed out join, or shutdown. The owner should then write
// what is left in Events and run its close path.
func (m *Member) Done() <-chan struct{} { return m.done }

func (m *Member) signal() {
	m.doneOnce.Do(func() { close(m.done) })
}

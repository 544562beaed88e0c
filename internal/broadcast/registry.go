package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/domain"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 1024
	deliveryGrace   = 500 * time.Millisecond
	groupKeyPrefix  = "tasks_"
)

var (
	ErrRegistryStopped  = errors.New("registry stopped")
	ErrAlreadyJoined    = errors.New("member already belongs to another group")
	ErrMemberClosed     = errors.New("member already closed")
	ErrPublishQueueFull = errors.New("publish queue full")
)

// GroupKey names the broadcast group of a user.
func GroupKey(id domain.UserID) string {
	return groupKeyPrefix + id.String()
}

type group map[*Member]struct{}

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type joinCmd struct {
	baseRegistryCmd
	groupKey     string
	member       *Member
	errorChannel chan error
}

type leaveCmd struct {
	baseRegistryCmd
	groupKey   string
	member     *Member
	ackChannel chan struct{}
}

type publishCmd struct {
	baseRegistryCmd
	groupKey string
	payload  []byte
}

type memberCountCmd struct {
	baseRegistryCmd
	groupKey     string
	replyChannel chan int
}

type groupCountCmd struct {
	baseRegistryCmd
	replyChannel chan int
}

// Registry tracks which members belong to which group and fans published
// payloads out to them. It is safe for concurrent use; all state is owned
// by a single goroutine.
type Registry struct {
	cmdCh       chan registryCmd
	quit        chan struct{}
	done        chan struct{}
	clock       clockwork.Clock
	metrics     *metrics.BroadcastMetrics
	groups      map[string]group
	memberOf    map[*Member]string
	stopTimeout time.Duration
	// deliveryGrace bounds how long a publish waits on a full mailbox
	// before the member counts as stalled and is evicted.
	deliveryGrace time.Duration
	stopOnce      sync.Once
}

func NewRegistry(clock clockwork.Clock, m *metrics.BroadcastMetrics) *Registry {
	r := newRegistry(clock, m)
	go r.run()
	return r
}

func newRegistry(clock clockwork.Clock, m *metrics.BroadcastMetrics) *Registry {
	return &Registry{
		cmdCh:         make(chan registryCmd, commandCapacity),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		clock:         clock,
		metrics:       m,
		groups:        make(map[string]group),
		memberOf:      make(map[*Member]string),
		stopTimeout:   stopTimeout,
		deliveryGrace: deliveryGrace,
	}
}

// Join adds member to groupKey and returns once the actor has applied it,
// so any Publish issued afterwards reaches the member. Joining the same
// group twice is a no-op. On timeout the member is closed, so a join the
// actor applies late is refused instead of leaving a ghost behind.
func (r *Registry) Join(groupKey string, member *Member) error {
	errCh := make(chan error, 1)

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r.cmdCh <- joinCmd{groupKey: groupKey, member: member, errorChannel: errCh}:
	case <-r.done:
		return ErrRegistryStopped
	case <-timer.Chan():
		member.signal()
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	}

	select {
	case err := <-errCh:
		return err
	case <-r.done:
		return ErrRegistryStopped
	case <-timer.Chan():
		member.signal()
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	}
}

// Leave removes member from groupKey and waits until no further payload
// can be delivered to it. Unknown members and groups are ignored.
func (r *Registry) Leave(groupKey string, member *Member) {
	ackCh := make(chan struct{})

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r.cmdCh <- leaveCmd{groupKey: groupKey, member: member, ackChannel: ackCh}:
	case <-r.done:
		return
	case <-timer.Chan():
		slog.Warn("Leave command timed out", "group", groupKey, "member_id", member.ID().String())
		return
	}

	select {
	case <-ackCh:
	case <-r.done:
	case <-timer.Chan():
		slog.Warn("Leave acknowledgement timed out", "group", groupKey, "member_id", member.ID().String())
	}
}

// Publish queues payload for every member of groupKey at the time the
// actor processes it. It never blocks: when the queue is full the payload
// is dropped and ErrPublishQueueFull returned. Publishing to an empty
// group is a no-op.
func (r *Registry) Publish(_ context.Context, groupKey string, payload []byte) error {
	select {
	case <-r.done:
		r.metrics.Dropped.WithLabelValues("stopped").Inc()
		return ErrRegistryStopped
	default:
	}

	select {
	case r.cmdCh <- publishCmd{groupKey: groupKey, payload: payload}:
		r.metrics.Published.Inc()
		return nil
	default:
		r.metrics.Dropped.WithLabelValues("queue_full").Inc()
		return ErrPublishQueueFull
	}
}

// MemberCount returns the size of groupKey, or -1 if the actor does not answer.
func (r *Registry) MemberCount(groupKey string) int {
	replyCh := make(chan int, 1)
	return r.query(memberCountCmd{groupKey: groupKey, replyChannel: replyCh}, replyCh)
}

// GroupCount returns the number of non-empty groups, or -1 if the actor does not answer.
func (r *Registry) GroupCount() int {
	replyCh := make(chan int, 1)
	return r.query(groupCountCmd{replyChannel: replyCh}, replyCh)
}

func (r *Registry) query(cmd registryCmd, replyCh chan int) int {
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r.cmdCh <- cmd:
	case <-r.done:
		return 0
	case <-timer.Chan():
		return -1
	}

	select {
	case n := <-replyCh:
		return n
	case <-r.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Registry query timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop signals every member and shuts the actor down. Safe to call more
// than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Registry stopped")
	case <-timeout.Chan():
		slog.Error("Registry stop timeout exceeded", "timeout", r.stopTimeout)
	}
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Registry panic recovered", "panic", p)
			r.signalAll()
		}
	}()

	depthTicker := r.clock.NewTicker(time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-r.quit:
			r.handleStop()
			return
		case <-depthTicker.Chan():
			depth := len(r.cmdCh)
			r.metrics.CommandsDepth.Set(float64(depth))
			if depth > commandCapacity*8/10 {
				slog.Warn("Registry command queue near capacity", "depth", depth, "capacity", commandCapacity)
			}
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case joinCmd:
				c.errorChannel <- r.handleJoin(c)
			case leaveCmd:
				r.handleLeave(c.groupKey, c.member)
				close(c.ackChannel)
			case publishCmd:
				r.handlePublish(c)
			case memberCountCmd:
				c.replyChannel <- len(r.groups[c.groupKey])
			case groupCountCmd:
				c.replyChannel <- len(r.groups)
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Registry) handleJoin(c joinCmd) error {
	if current, ok := r.memberOf[c.member]; ok {
		if current == c.groupKey {
			return nil
		}
		return ErrAlreadyJoined
	}

	select {
	case <-c.member.Done():
		return ErrMemberClosed
	default:
	}

	members, exists := r.groups[c.groupKey]
	if !exists {
		members = make(group)
		r.groups[c.groupKey] = members
	}
	members[c.member] = struct{}{}
	r.memberOf[c.member] = c.groupKey

	r.metrics.Members.Inc()
	r.metrics.Groups.Set(float64(len(r.groups)))

	slog.Debug("Member joined", "group", c.groupKey, "member_id", c.member.ID().String(), "group_size", len(members))
	return nil
}

func (r *Registry) handleLeave(groupKey string, member *Member) {
	members, exists := r.groups[groupKey]
	if !exists {
		return
	}
	if _, ok := members[member]; !ok {
		return
	}

	delete(members, member)
	delete(r.memberOf, member)
	r.metrics.Members.Dec()

	if len(members) == 0 {
		delete(r.groups, groupKey)
		r.metrics.Groups.Set(float64(len(r.groups)))
		slog.Debug("Group emptied", "group", groupKey)
	}
}

func (r *Registry) handlePublish(c publishCmd) {
	members := r.groups[c.groupKey]
	if len(members) == 0 {
		return
	}

	var full, closed []*Member
	for m := range members {
		select {
		case <-m.Done():
			closed = append(closed, m)
			continue
		default:
		}

		select {
		case m.events <- c.payload:
			r.metrics.Delivered.Inc()
		default:
			full = append(full, m)
		}
	}

	for _, m := range closed {
		r.handleLeave(c.groupKey, m)
	}
	if len(full) == 0 {
		return
	}

	// Full mailboxes share one grace period. A member still full after it
	// has stalled and is evicted.
	grace := r.clock.NewTimer(r.deliveryGrace)
	defer grace.Stop()

	expired := false
	for _, m := range full {
		if !expired {
			select {
			case m.events <- c.payload:
				r.metrics.Delivered.Inc()
				continue
			case <-m.Done():
				r.handleLeave(c.groupKey, m)
				continue
			case <-grace.Chan():
				expired = true
			}
		}
		select {
		case m.events <- c.payload:
			r.metrics.Delivered.Inc()
			continue
		default:
		}

		slog.Warn("Evicting stalled member", "group", c.groupKey, "member_id", m.ID().String())
		r.metrics.Evicted.Inc()
		r.handleLeave(c.groupKey, m)
		m.signal()
	}
}

func (r *Registry) handleStop() {
	total := len(r.memberOf)
	slog.Info("Registry shutting down", "groups", len(r.groups), "members", total)
	r.signalAll()
}

// signalAll drops every member and closes its Done channel so each owner
// runs its own close path.
func (r *Registry) signalAll() {
	for m := range r.memberOf {
		m.signal()
	}
	clear(r.groups)
	clear(r.memberOf)
	r.metrics.Groups.Set(0)
	r.metrics.Members.Set(0)
}

// Package broadcast implements per-user group membership and fan-out using the actor pattern.
//
// A single goroutine owns every group and processes join, leave and publish commands in order,
// so membership changes and deliveries are linearizable per group without locks. Members receive
// events through a buffered mailbox; a member whose mailbox is full is evicted rather than
// blocking the actor. The Notifier turns committed task mutations into encoded envelopes.
package broadcast

package client

import (
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Priority orders queued commands. Lower values are served first.
type Priority uint8

const (
	// PriorityReadback is for follow-up reads that reconcile state after
	// an RC5-simulated command. They jump the queue so the state store
	// converges before anything else is sent.
	PriorityReadback Priority = iota

	// PriorityAction is for user-initiated commands.
	PriorityAction

	// PriorityPoll is for background polling.
	PriorityPoll

	numPriorities
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityReadback:
		return "READBACK"
	case PriorityAction:
		return "ACTION"
	case PriorityPoll:
		return "POLL"
	default:
		return "UNKNOWN"
	}
}

// result is what a waiter receives when its command completes.
type result struct {
	answer *wire.Answer
	err    error
}

// command is a queued request with its waiters.
type command struct {
	zone     wire.ZoneID
	code     wire.CommandCode
	data     []byte
	set      bool // write (true) or status request (false)
	priority Priority
	waiters  []chan result
}

func (c *command) key() wire.CommandKey {
	return wire.CommandKey{Zone: c.zone, Code: c.code}
}

// deliver completes the command for every waiter. Channels are buffered
// so delivery never blocks.
func (c *command) deliver(res result) {
	for _, w := range c.waiters {
		w <- res
	}
}

// queue holds pending commands in priority tiers. It deduplicates by
// (zone, code): concurrent reads of the same value share one frame on
// the wire, and a newer write replaces a queued one that has not been
// sent yet. Not safe for concurrent use; the client locks around it.
type queue struct {
	tiers [numPriorities][]*command
}

// push enqueues cmd, merging with an equivalent queued command where
// possible. Returns the command that will actually be sent.
func (q *queue) push(cmd *command) *command {
	key := cmd.key()
	for tier := range q.tiers {
		for _, queued := range q.tiers[tier] {
			if queued.key() != key || queued.set != cmd.set {
				continue
			}
			if cmd.set {
				// Last write wins; earlier waiters get the final value.
				queued.data = cmd.data
			}
			queued.waiters = append(queued.waiters, cmd.waiters...)
			q.promote(queued, Priority(tier), cmd.priority)
			return queued
		}
	}

	q.tiers[cmd.priority] = append(q.tiers[cmd.priority], cmd)
	return cmd
}

// promote moves a merged command to a higher tier when the new waiter
// asked for more urgency. FIFO position within the new tier is at the
// back, which preserves ordering among equally urgent commands.
func (q *queue) promote(cmd *command, current, requested Priority) {
	if requested >= current {
		return
	}
	tier := q.tiers[current]
	for i, queued := range tier {
		if queued == cmd {
			q.tiers[current] = append(tier[:i], tier[i+1:]...)
			break
		}
	}
	cmd.priority = requested
	q.tiers[requested] = append(q.tiers[requested], cmd)
}

// pop removes and returns the highest-priority command whose key is not
// in blocked, or nil when nothing is eligible.
func (q *queue) pop(blocked map[wire.CommandKey]*command) *command {
	for tier := range q.tiers {
		for i, cmd := range q.tiers[tier] {
			if _, busy := blocked[cmd.key()]; busy {
				continue
			}
			q.tiers[tier] = append(q.tiers[tier][:i], q.tiers[tier][i+1:]...)
			return cmd
		}
	}
	return nil
}

// flush removes every queued command and delivers err to all waiters.
func (q *queue) flush(err error) {
	for tier := range q.tiers {
		for _, cmd := range q.tiers[tier] {
			cmd.deliver(result{err: err})
		}
		q.tiers[tier] = nil
	}
}

// len returns the total number of queued commands.
func (q *queue) len() int {
	n := 0
	for tier := range q.tiers {
		n += len(q.tiers[tier])
	}
	return n
}

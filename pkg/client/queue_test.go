package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jansinger/arcamfmj/pkg/wire"
)

func newCmd(zone wire.ZoneID, code wire.CommandCode, prio Priority, set bool, data ...byte) *command {
	return &command{
		zone:     zone,
		code:     code,
		data:     data,
		set:      set,
		priority: prio,
		waiters:  []chan result{make(chan result, 1)},
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	var q queue

	poll := newCmd(wire.Zone1, wire.CmdNowPlayingTitle, PriorityPoll, false)
	action := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, true, 40)
	readback := newCmd(wire.Zone1, wire.CmdMute, PriorityReadback, false)

	// Enqueued lowest priority first.
	q.push(poll)
	q.push(action)
	q.push(readback)

	assert.Same(t, readback, q.pop(nil))
	assert.Same(t, action, q.pop(nil))
	assert.Same(t, poll, q.pop(nil))
	assert.Nil(t, q.pop(nil))
}

func TestQueueFIFOWithinTier(t *testing.T) {
	var q queue

	first := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)
	second := newCmd(wire.Zone1, wire.CmdBass, PriorityAction, false)

	q.push(first)
	q.push(second)

	assert.Same(t, first, q.pop(nil))
	assert.Same(t, second, q.pop(nil))
}

func TestQueueMergesReads(t *testing.T) {
	var q queue

	a := newCmd(wire.Zone1, wire.CmdVolume, PriorityPoll, false)
	b := newCmd(wire.Zone1, wire.CmdVolume, PriorityPoll, false)

	q.push(a)
	merged := q.push(b)

	assert.Same(t, a, merged)
	assert.Len(t, a.waiters, 2, "both waiters share one frame")
	assert.Equal(t, 1, q.len())

	// Both waiters get the answer.
	answer := &wire.Answer{Zone: wire.Zone1, Code: wire.CmdVolume}
	q.pop(nil).deliver(result{answer: answer})
	for _, w := range a.waiters {
		res := <-w
		assert.Same(t, answer, res.answer)
	}
}

func TestQueueWriteSupersedes(t *testing.T) {
	var q queue

	first := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, true, 10)
	second := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, true, 50)

	q.push(first)
	q.push(second)

	require.Equal(t, 1, q.len())
	sent := q.pop(nil)
	assert.Equal(t, []byte{50}, sent.data, "last write wins")
	assert.Len(t, sent.waiters, 2)
}

func TestQueueReadAndWriteStaySeparate(t *testing.T) {
	var q queue

	read := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)
	write := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, true, 30)

	q.push(read)
	q.push(write)

	assert.Equal(t, 2, q.len(), "different intent must not merge")
}

func TestQueueMergePromotes(t *testing.T) {
	var q queue

	poll := newCmd(wire.Zone1, wire.CmdMute, PriorityPoll, false)
	urgent := newCmd(wire.Zone1, wire.CmdMute, PriorityReadback, false)
	other := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)

	q.push(poll)
	q.push(other)
	q.push(urgent)

	// The merged mute read moved to the readback tier, ahead of the
	// action-tier volume read.
	got := q.pop(nil)
	assert.Same(t, poll, got)
	assert.Equal(t, PriorityReadback, got.priority)
	assert.Same(t, other, q.pop(nil))
}

func TestQueuePopSkipsBlockedKeys(t *testing.T) {
	var q queue

	busyCmd := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)
	free := newCmd(wire.Zone1, wire.CmdBass, PriorityAction, false)

	q.push(busyCmd)
	q.push(free)

	blocked := map[wire.CommandKey]*command{
		{Zone: wire.Zone1, Code: wire.CmdVolume}: busyCmd,
	}

	assert.Same(t, free, q.pop(blocked))
	assert.Same(t, busyCmd, q.pop(nil), "unblocked after the key frees up")
}

func TestQueueZonesAreDistinctKeys(t *testing.T) {
	var q queue

	z1 := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)
	z2 := newCmd(wire.Zone2, wire.CmdVolume, PriorityAction, false)

	q.push(z1)
	q.push(z2)

	assert.Equal(t, 2, q.len(), "same code on different zones must not merge")
}

func TestQueueFlush(t *testing.T) {
	var q queue

	a := newCmd(wire.Zone1, wire.CmdVolume, PriorityAction, false)
	b := newCmd(wire.Zone1, wire.CmdBass, PriorityPoll, false)
	q.push(a)
	q.push(b)

	q.flush(ErrCancelled)

	assert.Equal(t, 0, q.len())
	for _, cmd := range []*command{a, b} {
		res := <-cmd.waiters[0]
		assert.ErrorIs(t, res.err, ErrCancelled)
	}
}

// Package client implements the command layer of the Arcam control
// protocol.
//
// A Client owns one TCP connection (through pkg/connection), a priority
// command queue, and the answer-matching logic that pairs each sent
// request with the receiver's reply. The protocol has no sequence
// numbers; an answer is matched to the single in-flight request with
// the same zone and command code, which is why the queue never allows
// two in-flight commands with the same key.
//
// Commands are served in three priority tiers: readback (state
// reconciliation after simulated IR commands), action (user commands)
// and poll (background refresh). Within a tier commands are FIFO.
// Queued reads of the same value share one frame; a queued write is
// superseded by a newer write to the same key.
//
// Unsolicited status updates (front panel, IR remote, other apps) flow
// through the same answer handlers as request answers, in arrival
// order, so a state store built on OnAnswer sees a consistent stream.
package client

// Package state maintains the authoritative per-zone view of a receiver.
//
// A Zone caches the raw payload of every status update the client sees and
// exposes typed getters and setters over that cache. Answers are applied in
// the order the read loop decodes them, and a change callback fires only
// when a payload actually differs from the cached one.
//
// Setters route through the capability table of the detected model. Where
// the family accepts a direct write (volume, tone controls, decode mode)
// the acknowledgement echoes the resulting state and the cache updates from
// it. Where it does not (mute and power on most families) the setter
// simulates the RC5 remote code and immediately enqueues a readback at the
// highest priority; the cache updates only when that readback answer
// arrives, never from the RC5 acknowledgement.
//
// A Poller periodically reads now-playing metadata at background priority,
// but only for zones that are powered on with a network-capable source.
package state

// Package connection manages the TCP control connection to an Arcam
// receiver.
//
// This package handles:
//   - Dialing the control port (50000 by default)
//   - Exponential backoff for reconnection attempts
//   - Jitter so repeated attempts don't land in lockstep
//   - Connection state tracking
//   - Automatic reconnection on connection loss
//
// # Reconnection Strategy
//
// Receivers accept a single control connection and drop it without
// warning when entering standby or rebooting after a firmware update.
// When the connection is lost, the manager retries with exponential
// backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. Continue at 30s until successful
//  5. Reset to 1s on successful reconnection
//
// Jittered delay: actual = base + random(0, base * 0.25).
//
// The manager owns only the transport. Framing, request dispatch and
// state synchronization live in pkg/client, which receives each freshly
// established net.Conn through the OnConnect callback.
package connection

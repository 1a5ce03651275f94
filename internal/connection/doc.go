// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains exactly one logical connection per client session
//   - Drives the Disconnected/Connecting/Connected/Reconnecting/ManuallyClosed state machine
//   - Sends application-level heartbeats while connected
//   - Reconnects with capped exponential backoff and gives up after MaxAttempts
//   - Hands inbound frames to the Message Router in the order they were read
//
// All events are delivered on the shared event.Loop.
package connection

// Package protocol defines the JSON envelope exchanged with the realtime
// server and the heartbeat frames used to keep an idle connection alive.
package protocol

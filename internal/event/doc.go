// Package event provides typed event feeds and the serial callback loop.
//
// Every component of the realtime client posts its callbacks (transport
// events, timer expiry, inbound frames) onto a single Loop, so state
// transitions and handler invocations happen one at a time and in the
// order they were posted. Feeds give each observable event its own
// payload type; Subscribe returns the function that removes the handler.
package event

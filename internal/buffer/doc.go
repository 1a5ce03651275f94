// Package buffer provides the unbounded FIFO used for outbound messages that
// are waiting for a connection, and for the callback queue of the event loop.
package buffer

// Package netstatus implements the Network Status Monitor.
//
// The monitor reports whether the network is reachable and notifies
// subscribers on every online/offline transition:
//   - Manual: state set by the host application (or fixed online)
//   - Probe: periodically dials a TCP address and derives the state
package netstatus

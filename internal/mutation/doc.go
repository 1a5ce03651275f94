// Package mutation implements the Mutation Queue: durable write intents
// that are replayed against the remote API once connectivity allows.
//
// Every Enqueue is persisted to the Durable Local Store before it returns.
// Replay walks the queue in enqueue order, one operation at a time. A
// failing operation is retried on later passes until it reaches the retry
// ceiling, at which point it is dropped and an Abandoned event fires.
//
// Replay is triggered by:
//   - a periodic timer while online
//   - an offline to online transition of the network monitor
//   - ManualSync, which fails with ErrOffline when the network is down
//   - Enqueue while online
package mutation

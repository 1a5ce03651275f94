// Package api provides the Remote Write API client used to replay queued
// mutations over REST.
//
// Endpoints, relative to the configured base URL:
//   - create: POST   /{entityType}
//   - update: PUT    /{entityType}/{id}
//   - delete: DELETE /{entityType}/{id}
//
// Every write carries an Idempotency-Key header set to the operation ID, so
// a server that honours it can absorb replays of an already-applied write.
package api

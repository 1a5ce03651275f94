// Package client is the composition root of the sync client.
//
// A Client owns exactly one Connection Manager, Message Router and Mutation
// Queue, wired to one event loop so every callback it exposes runs on a
// single goroutine in the order the underlying events happened:
//
//	Network Monitor ──► Connection Manager ──► Message Router ──► subscribers
//	       │                                          ▲
//	       └──────────► Mutation Queue ──► Remote Write API
//
// Applications construct one Client (New or NewFromConfig), call Start, and
// pass it to whatever needs it. There is no package-level instance.
package client

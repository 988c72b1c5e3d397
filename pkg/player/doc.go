// Package player manages live libmpv sessions.
//
// A Registry maps caller-chosen session keys to Instances. Creation is
// idempotent per key and only publishes an instance after the engine has
// been fully initialized; destruction removes the entry before any native
// teardown so a concurrent lookup reports not found instead of racing it.
//
// Every instance owns one event loop goroutine that polls the engine's
// event client and hands each translated event to the registry's
// EventHandler. The loop ends on the Shutdown event or when the handler
// fails.
//
// Player wraps a Registry with the host-facing surface: it moves blocking
// engine calls off the caller's goroutine, checks commands against a
// CommandGate, records metrics and spans, and publishes events to the
// session channel named by EventChannel.
package player

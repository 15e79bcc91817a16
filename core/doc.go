// Package core provides the foundational domain types shared by both halves
// of the dual-agent coordination subsystem. It defines:
//
//   - Tasks (units of deferred work with priority, type and lifecycle status)
//   - Conversation state (turns, phases, flow nodes, the shared context)
//
// The package intentionally keeps implementation concerns (queueing,
// aggregation, execution) out of scope; those live in the queue, aggregator
// and agent packages which all depend on these contracts.
package core

// Package queue implements the priority-ordered in-memory task queue that
// decouples the conversational agent (producer) from the background executor
// (consumer). The producer pushes tasks and reads status/results; the executor
// claims pending tasks, runs them and records the outcome.
//
// All state is process-local and session-scoped: a crash loses queued work by
// design. One mutex per queue instance guards the task map and the pending
// ordering; critical sections are limited to map updates plus a stable resort.
package queue

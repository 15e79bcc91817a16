// Package agent implements the back-of-house half of the dual-agent design:
// the ProcessingAgent polls the task queue, dispatches claimed tasks to
// registered tools on a bounded pool of executors, and writes results back to
// the queue and the shared context aggregator. The Supervisor enforces the
// advisory task timeouts the queue only reports, with opt-in bounded retry.
//
// The front-of-house conversational loop is an external collaborator: it
// produces tasks and consumes their status and results but is never blocked
// by anything in this package.
package agent

// Package engine implements the batch job engine: durable task claiming,
// per-item handler execution with retry and backoff, stuck-task recovery,
// cooperative cancellation, and fire-and-forget continuations that let one
// logical batch run span many short-lived worker-loop invocations.
package engine

// Package executor runs the printer driver in a freshly spawned worker process.
//
// Each job gets its own ExecutionHandle and its own OS process, so USB handles
// left stale by one job (printer standby/wake, half-finished transfers) never
// leak into the next. Processes are never pooled or reused.
//
// Protocol:
//   - The request travels as one JSON document on the worker's stdin
//   - The worker answers with one JSON document on stdout and exits
//     0 (printed) or 1 (driver error)
//   - Worker logs go to stderr, captured (capped at 64KB) for diagnostics
//
// Outcome mapping:
//   - Exit 0 and status ok → Success
//   - status error (any exit code) → Failure with the worker's message
//   - Non-zero exit without a message → Failure "print worker exited with code N"
//   - Still running at the deadline → process group SIGKILLed, Timeout
//     ("Printing timed out")
//
// Exactly one Outcome is produced per Run, and the process is reaped on every
// path. Only the deadline stops a worker; there is no caller cancellation.
package executor

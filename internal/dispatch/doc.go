// Package dispatch turns a print request into exactly one outcome.
//
// A request carries a base64 label image and a label-size tag. Dispatch
// validates and decodes it, then takes one of two paths:
//
// Dry run:
//   - The bytes are written under the output directory as
//     label_<label>_<YYYYMMDD_HHMMSS_ffffff>.png
//   - Concurrent requests never share a file; collisions get a numeric suffix
//
// Live:
//   - The bytes are spooled to a per-job directory
//   - The device lock is taken when printer.serialize is set
//   - The executor runs the driver in a fresh worker process, bounded by
//     printer.timeout
//   - The spool directory is removed on every path
//
// Error handling:
//   - Malformed base64, empty image or bad label tag → *DecodeError, with no
//     filesystem, journal or process side effects
//   - Worker reported failure or crashed → *DriverError
//   - Worker killed at the deadline → *TimeoutError ("Printing timed out")
//   - Spool, output or lock trouble → *IOError
//
// Every accepted job gets a journal row (queued, then succeeded, failed or
// timed_out) and a print.started / print.completed event pair. Journal and
// event failures are logged and never fail the print.
package dispatch

// Package polling waits for a vendor-side file to finish processing.
//
// The wait is a small state machine over queued, processing, ready, failed and
// timed_out. Every call ends in ready or in an error: a failed vendor state, a
// hard deadline, repeated status-fetch failures, or context cancellation.
// Status checks back off exponentially up to a cap, and a one-time soft
// warning fires once the wait crosses a wall-clock threshold.
package polling

// Package workflow coordinates the background stage workers.
//
// The manager owns one polling goroutine per registered worker. A worker that
// reports progress is polled again immediately, an idle worker sleeps for the
// configured poll interval, and a failing worker backs off on the error retry
// interval. Stop cancels the loops and blocks until in-flight batches drain.
package workflow

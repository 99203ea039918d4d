// Package main hosts the callwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree gives operators direct access to the call
// record store: pipeline status, record listings, requeueing failed work, and
// forcing reanalysis. Commands open the database themselves, so they work
// whether or not the daemon is running.
package main

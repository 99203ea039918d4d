// Package daemon assembles the long-running callwatch process: the webhook
// ingress server, the workflow manager with its stage workers, and a lock
// file that keeps deployments single-instance. Startup requeues any records
// a previous crash left claimed.
package daemon

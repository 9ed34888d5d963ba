// Package jobs implements a Redis-backed work queue for subscription
// operations that are too slow for a request cycle, with polled results.
package jobs

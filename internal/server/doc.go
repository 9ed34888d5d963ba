// Package server exposes the management API: streamer CRUD, background job
// polling, and health/observability endpoints.
package server

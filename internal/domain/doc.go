// Package domain holds the core model types, repository interfaces, and
// sentinel errors shared across the application. It has no dependencies on
// infrastructure packages.
package domain

// Package database provides the PostgreSQL-backed implementations of the
// domain repositories plus connection and migration helpers.
package database

// Package database provides the PostgreSQL connection pool used by the
// message archive.
package database

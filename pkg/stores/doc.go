// Package stores provides the persistence layer for mpvbridge.
// It includes a SQLite session journal with WAL mode, embedded migrations,
// and an append-only log of the events published on the player bus.
package stores

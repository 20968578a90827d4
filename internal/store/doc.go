// Package store provides the two storage backends behind the persistence
// contract in internal/domain.
//
// Memory keeps everything in process memory (volatile); SQLite persists to a
// single database file under the data directory (durable). The session core
// depends only on domain.Store and cannot tell them apart. The identity is
// encrypted at rest with a passphrase-derived key in both backends.
package store

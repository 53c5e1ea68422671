// Package sqlite contains the SQLite repository implementations for the
// processing pipeline: the sounding store, the per-chunk intermediate
// cache, the chunk processing status store and import bookkeeping.
//
// All database read/write operations belong here rather than in the domain
// package. This keeps the stage transforms free of SQL noise and makes it
// easy to swap storage for testing.
package sqlite

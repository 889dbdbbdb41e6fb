// Package state persists per-phase execution records so an interrupted
// bootstrap can resume without repeating phases that already succeeded.
//
// # Backends
//
//   - [FileStore] writes one YAML file per phase under a directory. Every write
//     goes to a temporary file that is synced and renamed into place, so a
//     crash never leaves a half-written record behind.
//   - [ObjectStore] keeps one object per phase in an S3-compatible bucket.
//   - [MemoryStore] is used by tests and dry runs.
//
// Any I/O failure is reported as [ErrStoreUnavailable]. Deleting the records
// (or calling Reset) forces the next run to start from scratch.
package state

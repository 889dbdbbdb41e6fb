// Package s3 provides a small client for S3-compatible object storage.
//
// It backs the remote execution-record store: each phase record is a single
// object, so a PutObject either replaces the record completely or not at all.
// Missing keys are reported as [ErrNotFound].
package s3

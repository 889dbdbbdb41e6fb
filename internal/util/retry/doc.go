// Package retry runs an operation a bounded number of times with
// exponential backoff between attempts.
//
// [Do] reports how many attempts were made so callers can surface the
// count to operators. Errors wrapped with [Fatal] stop the loop at once.
package retry

// Package storage writes downloaded payloads to their destination.
//
// A destination is either a local directory or a bucket URL understood by
// gocloud.dev/blob (s3://, gs://, mem://, file://). When a name is already
// taken the current time is appended to its base, so an existing file is
// never overwritten.
package storage

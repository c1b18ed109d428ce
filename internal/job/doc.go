// Package job models a single download and its lifecycle.
//
// A Job moves Waiting -> Active -> Done or Failed and never back. Its file
// name is derived when it is created, from the last path segment of the
// URL or from a custom name that keeps the segment's extension. URLs that
// yield no usable name are rejected up front and no job is created.
package job

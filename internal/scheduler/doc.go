// Package scheduler owns the download queues and drives jobs through them.
//
// A Scheduler keeps three collections: a FIFO queue of waiting jobs, the
// set of active jobs keyed by id, and the list of finished jobs in
// completion order. A single goroutine calling Run mutates them; commands
// reach it over a channel and each gets exactly one response back.
//
// Ids are assigned on admission, starting at 1, so a waiting job reports id
// 0. At most MaxJobs jobs are active at any time.
package scheduler

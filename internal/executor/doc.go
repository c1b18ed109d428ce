// Package executor runs a single download job to completion.
//
// Each job gets its own Executor and goroutine. The executor probes the
// size of the source, fetches the payload and hands it to a Sink that picks
// a collision-free name and writes it. The job ends Done or Failed; any
// error is recorded on the job and never returned to the caller.
//
// # Completion
//
// Every Executor owns a buffered channel. Once the job has reached its
// terminal state the job id is sent on it exactly once, so a scheduler can
// poll each executor without blocking and never miss a completion:
//
//	e := executor.Start(ctx, id, j, executor.Options{Source: client, Sink: store})
//	select {
//	case id := <-e.Done():
//	    // j is Done or Failed
//	default:
//	}
package executor

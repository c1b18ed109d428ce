package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AhmedYasen/download-manager/internal/bytesize"
	"github.com/AhmedYasen/download-manager/internal/job"
)

// Source is the network side of a download.
type Source interface {
	// ProbeSize returns the size of the resource, or nil if it is unknown.
	ProbeSize(ctx context.Context, url string) (*int64, error)
	// Fetch returns the whole payload.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Sink stores a payload and returns the collision-free name it used.
type Sink interface {
	Save(ctx context.Context, downloadPath, name string, data []byte) (string, error)
}

// Stage identifies the step of an execution that failed.
type Stage string

const (
	StageProbe   Stage = "probe"
	StageFetch   Stage = "fetch"
	StageStorage Stage = "storage"
	StagePanic   Stage = "panic"
)

// Error is recorded on a job that failed. Use errors.As to get the stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures an executor.
type Options struct {
	Source Source
	Sink   Sink
	Logger zerolog.Logger

	// Notify, if set, is called after the completion signal has been sent.
	Notify func()
}

// Executor runs one job to a terminal state on its own goroutine.
type Executor struct {
	id   int
	done chan int
}

// Start launches the execution of j, which must already be Active under id.
// Exactly one value, the id, is sent on Done whatever the outcome.
func Start(ctx context.Context, id int, j *job.Job, opts Options) *Executor {
	e := &Executor{
		id:   id,
		done: make(chan int, 1),
	}
	go e.run(ctx, j, opts)
	return e
}

// ID returns the id of the job being executed.
func (e *Executor) ID() int { return e.id }

// Done receives the job id once the job is Done or Failed.
func (e *Executor) Done() <-chan int { return e.done }

func (e *Executor) run(ctx context.Context, j *job.Job, opts Options) {
	log := opts.Logger.With().Int("job_id", e.id).Str("url", j.URL()).Logger()

	defer func() {
		e.done <- e.id
		if opts.Notify != nil {
			opts.Notify()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			e.fail(j, log, &Error{Stage: StagePanic, Err: fmt.Errorf("%v", r)})
		}
	}()

	name, err := execute(ctx, j, opts.Source, opts.Sink, log)
	if err != nil {
		e.fail(j, log, err)
		return
	}

	if err := j.Complete(name); err != nil {
		log.Error().Err(err).Msg("cannot complete job")
		return
	}
	log.Info().Str("name", name).Msg("download done")
}

func (e *Executor) fail(j *job.Job, log zerolog.Logger, err error) {
	if ferr := j.Fail(err); ferr != nil {
		log.Error().Err(ferr).Msg("cannot fail job")
		return
	}
	log.Warn().Err(err).Msg("download failed")
}

// execute probes, fetches and stores the payload of j and returns the final
// name. The job's fields are read once up front so that no lock is held
// during I/O.
func execute(ctx context.Context, j *job.Job, src Source, sink Sink, log zerolog.Logger) (string, error) {
	snap := j.Snapshot()

	size, err := src.ProbeSize(ctx, snap.URL)
	if err != nil {
		return "", &Error{Stage: StageProbe, Err: err}
	}
	j.SetTotalSize(size)

	if size != nil {
		log.Debug().Str("size", bytesize.Format(*size)).Msg("probed")
	} else {
		log.Debug().Msg("probed, size unknown")
	}

	data, err := src.Fetch(ctx, snap.URL)
	if err != nil {
		return "", &Error{Stage: StageFetch, Err: err}
	}
	log.Debug().Str("fetched", bytesize.Format(int64(len(data)))).Msg("fetched")

	name, err := sink.Save(ctx, snap.DownloadPath, snap.Name, data)
	if err != nil {
		return "", &Error{Stage: StageStorage, Err: err}
	}

	return name, nil
}

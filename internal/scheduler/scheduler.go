package scheduler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedYasen/download-manager/internal/executor"
	"github.com/AhmedYasen/download-manager/internal/job"
	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// DefaultPollInterval bounds how long the loop waits when there is nothing
// to do.
const DefaultPollInterval = time.Second

// Response texts.
const (
	MsgAdded          = "File added"
	MsgNotFound       = "This file is not found!!"
	MsgCancel         = "cancel command [not working yet]"
	MsgAlreadyRunning = "daemon is already running"
	MsgUnknown        = "unknown command"
)

// Options configures a Scheduler.
type Options struct {
	// MaxJobs is the maximum number of active jobs. Values below 1 mean 1.
	MaxJobs int

	// DownloadPath is used for jobs that do not name their own.
	DownloadPath string

	// PollInterval is the longest the loop waits between ticks.
	// Default: DefaultPollInterval
	PollInterval time.Duration

	Source executor.Source
	Sink   executor.Sink
	Logger zerolog.Logger
}

// Scheduler owns the waiting queue, the active set and the done list. All
// three are only touched by the goroutine calling Run.
type Scheduler struct {
	opts Options
	log  zerolog.Logger

	waiting   []*job.Job
	active    map[int]*job.Job
	done      []*job.Job
	executors map[int]*executor.Executor
	lastID    int

	commands  <-chan protocol.Command
	responses chan<- []string
	pending   *protocol.Command

	// wake is signalled by executors on completion.
	wake    chan struct{}
	running sync.WaitGroup
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.MaxJobs < 1 {
		opts.MaxJobs = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Scheduler{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "scheduler").Logger(),
		active:    make(map[int]*job.Job),
		executors: make(map[int]*executor.Executor),
		wake:      make(chan struct{}, 1),
	}
}

// Run processes commands from commands and answers each one with exactly
// one value on responses, in order. It returns when ctx is cancelled.
//
// Every tick admits a waiting job if there is room, drains completed
// executors and dispatches at most one command. When a tick made no
// progress the loop waits for a command, a completion or PollInterval,
// whichever comes first.
func (s *Scheduler) Run(ctx context.Context, commands <-chan protocol.Command, responses chan<- []string) error {
	s.commands = commands
	s.responses = responses

	s.log.Info().
		Int("max_jobs", s.opts.MaxJobs).
		Str("download_path", s.opts.DownloadPath).
		Dur("poll_interval", s.opts.PollInterval).
		Msg("scheduler started")

	for {
		if ctx.Err() != nil {
			s.log.Info().
				Int("waiting", len(s.waiting)).
				Int("active", len(s.active)).
				Msg("scheduler stopped")
			return nil
		}

		if s.tick(ctx) {
			continue
		}
		s.idle(ctx)
	}
}

// Wait blocks until every executor started so far has finished or ctx is
// done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tick runs one iteration and reports whether anything happened.
func (s *Scheduler) tick(ctx context.Context) bool {
	admitted := s.admit(ctx)
	drained := s.drain()

	cmd, ok := s.nextCommand()
	if !ok {
		return admitted || drained
	}

	resp := s.Dispatch(cmd)
	select {
	case s.responses <- resp:
	case <-ctx.Done():
	}
	return true
}

func (s *Scheduler) nextCommand() (protocol.Command, bool) {
	if s.pending != nil {
		cmd := *s.pending
		s.pending = nil
		return cmd, true
	}

	select {
	case cmd, ok := <-s.commands:
		if !ok {
			s.commands = nil
			return protocol.Command{}, false
		}
		return cmd, true
	default:
		return protocol.Command{}, false
	}
}

// idle waits for the next reason to tick. A command received here is kept
// for the dispatch step of the next tick so that admission and draining
// still come first.
func (s *Scheduler) idle(ctx context.Context) {
	timer := time.NewTimer(s.opts.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-s.wake:
	case cmd, ok := <-s.commands:
		if !ok {
			s.commands = nil
			return
		}
		s.pending = &cmd
	}
}

// admit promotes the front of the waiting queue if there is room.
func (s *Scheduler) admit(ctx context.Context) bool {
	if len(s.active) >= s.opts.MaxJobs || len(s.waiting) == 0 {
		return false
	}

	j := s.waiting[0]
	s.waiting[0] = nil
	s.waiting = s.waiting[1:]

	s.lastID++
	id := s.lastID
	if err := j.Activate(id); err != nil {
		s.log.Error().Err(err).Int("job_id", id).Msg("cannot activate job")
		s.done = append(s.done, j)
		return true
	}

	s.running.Add(1)
	e := executor.Start(context.WithoutCancel(ctx), id, j, executor.Options{
		Source: s.opts.Source,
		Sink:   s.opts.Sink,
		Logger: s.opts.Logger,
		Notify: s.notify,
	})
	s.active[id] = j
	s.executors[id] = e

	s.log.Info().Int("job_id", id).Str("name", j.Name()).Msg("job admitted")
	return true
}

func (s *Scheduler) notify() {
	s.running.Done()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain moves every job whose executor has signalled to the done list.
func (s *Scheduler) drain() bool {
	drained := false
	for _, id := range sortedIDs(s.executors) {
		select {
		case <-s.executors[id].Done():
		default:
			continue
		}

		j := s.active[id]
		delete(s.active, id)
		delete(s.executors, id)
		s.done = append(s.done, j)
		drained = true

		snap := j.Snapshot()
		s.log.Info().Int("job_id", id).Str("name", snap.Name).Stringer("state", snap.State).Msg("job finished")
	}
	return drained
}

// Dispatch executes cmd against the queues and returns the response lines.
// It must only be called from the goroutine running the scheduler.
func (s *Scheduler) Dispatch(cmd protocol.Command) []string {
	switch {
	case cmd.Add != nil:
		return []string{s.add(cmd.Add)}
	case cmd.List != nil:
		return s.list(cmd.List.Scope)
	case cmd.Info != nil:
		return []string{s.info(cmd.Info.Filename)}
	case cmd.Cancel != nil:
		return []string{MsgCancel}
	case cmd.Start != nil:
		return []string{MsgAlreadyRunning}
	default:
		return []string{MsgUnknown}
	}
}

func (s *Scheduler) add(a *protocol.Add) string {
	downloadPath := s.opts.DownloadPath
	if a.CustomDownloadPath != nil && *a.CustomDownloadPath != "" {
		downloadPath = *a.CustomDownloadPath
	}
	var customName string
	if a.CustomName != nil {
		customName = *a.CustomName
	}

	j, err := job.New(a.URL, customName, downloadPath)
	if err != nil {
		s.log.Debug().Err(err).Str("url", a.URL).Msg("add rejected")
		return err.Error()
	}

	s.waiting = append(s.waiting, j)
	s.log.Info().Str("name", j.Name()).Str("download_path", downloadPath).Msg("job queued")
	return MsgAdded
}

func (s *Scheduler) list(scope protocol.Scope) []string {
	switch scope {
	case protocol.ScopeAll:
		return []string{
			render(s.waiting),
			render(s.activeJobs()),
			render(s.done),
		}
	case protocol.ScopeActive:
		return []string{render(s.activeJobs())}
	case protocol.ScopeDone:
		return []string{render(s.done)}
	default:
		return []string{MsgUnknown}
	}
}

// info searches the done list, then the waiting queue, then the active set.
func (s *Scheduler) info(name string) string {
	for _, jobs := range [][]*job.Job{s.done, s.waiting, s.activeJobs()} {
		for _, j := range jobs {
			snap := j.Snapshot()
			if snap.Name != name {
				continue
			}
			line := snap.Line()
			if snap.State == job.Failed {
				line += "  error: " + snap.Error + "\r\n"
			}
			return line
		}
	}
	return MsgNotFound
}

// activeJobs returns the active set ordered by id.
func (s *Scheduler) activeJobs() []*job.Job {
	jobs := make([]*job.Job, 0, len(s.active))
	for _, id := range sortedIDs(s.active) {
		jobs = append(jobs, s.active[id])
	}
	return jobs
}

func render(jobs []*job.Job) string {
	var b strings.Builder
	for _, j := range jobs {
		b.WriteString(j.Snapshot().Line())
	}
	return b.String()
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

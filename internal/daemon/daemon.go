// Package daemon wires the scheduler, the control server and their
// collaborators into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/AhmedYasen/download-manager/internal/config"
	"github.com/AhmedYasen/download-manager/internal/control"
	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
	"github.com/AhmedYasen/download-manager/internal/scheduler"
	"github.com/AhmedYasen/download-manager/internal/storage"
	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// ErrAlreadyRunning is returned by Run when another daemon holds the lock
// file.
var ErrAlreadyRunning = errors.New("daemon is already running")

// Daemon runs the download manager until its context is cancelled.
type Daemon struct {
	cfg config.Config
	log zerolog.Logger

	ready chan struct{}
	addr  net.Addr
}

// New creates a Daemon from a validated copy of cfg.
func New(cfg config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:   cfg,
		log:   logger.With().Str("component", "daemon").Logger(),
		ready: make(chan struct{}),
	}, nil
}

// Ready is closed once the control endpoint is listening.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Addr returns the address the control endpoint listens on. It is only
// valid after Ready is closed.
func (d *Daemon) Addr() string {
	if d.addr == nil {
		return ""
	}
	return d.addr.String()
}

// Run acquires the lock file, starts serving and blocks until ctx is done.
// On shutdown the control endpoint stops first, then the scheduler; jobs
// still running get up to ShutdownTimeout to finish.
func (d *Daemon) Run(ctx context.Context) error {
	lock, err := d.acquireLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.log.Warn().Err(err).Msg("release lock")
		}
	}()

	ln, err := net.Listen("tcp", d.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr, err)
	}
	d.addr = ln.Addr()

	store := storage.New()
	defer func() {
		if err := store.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close storage")
		}
	}()

	client := dlhttp.NewClient(dlhttp.Options{
		MaxIdleConnsPerHost: d.cfg.HTTP.MaxIdleConnsPerHost,
		Timeout:             d.cfg.HTTP.Timeout,
	})

	sched := scheduler.New(scheduler.Options{
		MaxJobs:      d.cfg.ActiveDownloads,
		DownloadPath: d.cfg.DownloadPath,
		PollInterval: d.cfg.PollInterval,
		Source:       client,
		Sink:         store,
		Logger:       d.log,
	})

	commands := make(chan protocol.Command)
	responses := make(chan []string)

	srv := control.New(control.NewRelay(commands, responses), control.Options{
		ReadTimeout:     d.cfg.Control.ReadTimeout,
		WriteTimeout:    d.cfg.Control.WriteTimeout,
		MaxRequestBytes: d.cfg.Control.MaxRequestSize,
		Logger:          d.log,
	})

	// The scheduler outlives the server so an in-flight request always
	// gets its answer.
	schedCtx, stopSched := context.WithCancel(context.WithoutCancel(ctx))
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(schedCtx, commands, responses) }()

	d.log.Info().
		Str("addr", d.Addr()).
		Int("active_downloads", d.cfg.ActiveDownloads).
		Str("download_path", d.cfg.DownloadPath).
		Msg("daemon started")
	close(d.ready)

	serveErr := srv.Serve(ctx, ln)

	stopSched()
	if err := <-schedDone; err != nil {
		d.log.Error().Err(err).Msg("scheduler stopped with error")
	}

	d.drain(sched)

	d.log.Info().Msg("daemon stopped")
	return serveErr
}

func (d *Daemon) acquireLock() (*flock.Flock, error) {
	if dir := filepath.Dir(d.cfg.LockFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}

	lock := flock.New(d.cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", d.cfg.LockFile, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s is held)", ErrAlreadyRunning, d.cfg.LockFile)
	}
	return lock, nil
}

// drain waits for running executors, bounded by ShutdownTimeout.
func (d *Daemon) drain(sched *scheduler.Scheduler) {
	timeout := d.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = time.Nanosecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := sched.Wait(ctx); err != nil {
		d.log.Warn().Dur("timeout", d.cfg.ShutdownTimeout).Msg("downloads still running at shutdown, abandoning them")
		return
	}
	d.log.Debug().Dur("took", time.Since(start)).Msg("downloads drained")
}

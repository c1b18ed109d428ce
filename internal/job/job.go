package job

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
)

// Submission errors. No job is created when one of these is returned.
var (
	ErrNoFileName     = errors.New("job: url has no file name")
	ErrUnsupportedURL = errors.New("job: unsupported url")
	ErrInvalidName    = errors.New("job: invalid custom name")
	ErrReservedName   = errors.New("job: reserved file extension")
)

// ReservedExt is the extension local buckets keep for their own attribute
// files. Downloads may not end in it.
const ReservedExt = ".attrs"

// ErrInvalidTransition is returned when a state change is not allowed by the
// Waiting -> Active -> {Done, Failed} machine.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// State is the lifecycle state of a job.
type State int

const (
	Waiting State = iota
	Active
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "Waiting"
	case Active:
		return "Active"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Job is a single download. It is shared between the scheduler, which reads
// snapshots of it, and the executor that runs it. The mutex is only held
// for the duration of a field read or write.
type Job struct {
	url          string
	downloadPath string

	mu        sync.Mutex
	id        int
	name      string
	state     State
	totalSize *int64
	err       string
}

// New creates a Waiting job. The name is derived from rawURL and customName,
// see DeriveName.
func New(rawURL, customName, downloadPath string) (*Job, error) {
	name, err := DeriveName(rawURL, customName)
	if err != nil {
		return nil, err
	}

	return &Job{
		url:          rawURL,
		downloadPath: downloadPath,
		name:         name,
		state:        Waiting,
	}, nil
}

// DeriveName returns the initial file name for a download: the last path
// segment of rawURL, or customName followed by that segment's extension.
func DeriveName(rawURL, customName string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}

	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", ErrNoFileName
	}
	segment := path.Base(u.Path)
	if segment == "." || segment == ".." || segment == "/" {
		return "", ErrNoFileName
	}

	name := segment
	if customName != "" {
		if customName == "." || customName == ".." || strings.ContainsAny(customName, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, customName)
		}
		name = customName
		if _, ext := SplitName(segment); ext != "" {
			name += "." + ext
		}
	}

	if strings.HasSuffix(name, ReservedExt) {
		return "", fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return name, nil
}

// SplitName splits a file name at its last dot. ext is empty when name has
// no extension; a leading dot does not start an extension.
func SplitName(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// URL returns the source location. It never changes.
func (j *Job) URL() string { return j.url }

// DownloadPath returns the destination directory or bucket URL.
func (j *Job) DownloadPath() string { return j.downloadPath }

// ID returns the id assigned on admission, or 0 while the job is waiting.
func (j *Job) ID() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// Name returns the current display name.
func (j *Job) Name() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.name
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Activate assigns id and moves the job from Waiting to Active.
func (j *Job) Activate(id int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != Waiting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, Active)
	}
	j.id = id
	j.state = Active
	return nil
}

// SetTotalSize records the probed size. A nil size means the source did not
// report one.
func (j *Job) SetTotalSize(size *int64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if size == nil {
		j.totalSize = nil
		return
	}
	v := *size
	j.totalSize = &v
}

// Complete finalizes the name and moves the job from Active to Done.
func (j *Job) Complete(finalName string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != Active {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, Done)
	}
	j.name = finalName
	j.state = Done
	return nil
}

// Fail records cause and moves the job from Active to Failed.
func (j *Job) Fail(cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != Active {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, Failed)
	}
	if cause != nil {
		j.err = cause.Error()
	}
	if j.err == "" {
		j.err = "unknown error"
	}
	j.state = Failed
	return nil
}

// Snapshot returns a copy of the job's fields taken under the lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:           j.id,
		Name:         j.name,
		DownloadPath: j.downloadPath,
		URL:          j.url,
		State:        j.state,
		Error:        j.err,
	}
	if j.totalSize != nil {
		v := *j.totalSize
		s.TotalSize = &v
	}
	return s
}

// Snapshot is a read-only copy of a Job.
type Snapshot struct {
	ID           int
	Name         string
	DownloadPath string
	URL          string
	State        State
	TotalSize    *int64
	Error        string
}

// Line renders the snapshot as a listing line. The underscore stands for
// bytes downloaded so far, which is not tracked.
func (s Snapshot) Line() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString("  ( _ / ")
	if s.TotalSize != nil {
		b.WriteString(strconv.FormatInt(*s.TotalSize, 10))
	}
	b.WriteString(")  ")
	b.WriteString(s.State.String())
	b.WriteString("\r\n")
	return b.String()
}

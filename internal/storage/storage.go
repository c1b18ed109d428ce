package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/AhmedYasen/download-manager/internal/job"
)

// TimestampLayout is appended to the base of a file name that already
// exists at the destination (YYYY_Mon_DD_HH_MM_SS).
const TimestampLayout = "2006_Jan_02_15_04_05"

// ErrEmptyPath is returned when a download path is empty.
var ErrEmptyPath = errors.New("storage: empty download path")

// Opener opens the bucket behind a download path.
type Opener func(ctx context.Context, downloadPath string) (*blob.Bucket, error)

// Store writes payloads into buckets addressed by download path. Buckets
// are opened on first use and never evicted, so the store holds one open
// bucket per distinct download path until Close.
type Store struct {
	open Opener
	now  func() time.Time

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithOpener replaces OpenBucket as the way buckets are opened.
func WithOpener(open Opener) Option {
	return func(s *Store) {
		s.open = open
	}
}

// WithClock sets the clock used for collision timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{
		open:    OpenBucket,
		now:     time.Now,
		buckets: make(map[string]*blob.Bucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenBucket opens downloadPath as a bucket. A path with a scheme
// (s3://, gs://, mem://, file://) is opened through the registered gocloud
// drivers; anything else is a local directory, created if missing.
func OpenBucket(ctx context.Context, downloadPath string) (*blob.Bucket, error) {
	if downloadPath == "" {
		return nil, ErrEmptyPath
	}

	if strings.Contains(downloadPath, "://") {
		return blob.OpenBucket(ctx, downloadPath)
	}

	dir, err := filepath.Abs(downloadPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", downloadPath, err)
	}

	return fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
}

// Save writes data under name in the bucket for downloadPath and returns the
// name actually used, see UniqueName.
//
// The existence check and the write are not atomic: two writers racing for
// the same new name in the same bucket can both pick it.
func (s *Store) Save(ctx context.Context, downloadPath, name string, data []byte) (string, error) {
	b, err := s.bucket(ctx, downloadPath)
	if err != nil {
		return "", err
	}

	final, err := UniqueName(ctx, b, name, s.now())
	if err != nil {
		return "", err
	}

	if err := b.WriteAll(ctx, final, data, nil); err != nil {
		return "", fmt.Errorf("write %s (%s): %w", final, gcerrors.Code(err), err)
	}

	return final, nil
}

// Close closes every bucket opened by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	var errs []error
	for path, b := range s.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.buckets, path)
	}
	return errors.Join(errs...)
}

func (s *Store) bucket(ctx context.Context, downloadPath string) (*blob.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("storage: store is closed")
	}
	if b, ok := s.buckets[downloadPath]; ok {
		return b, nil
	}

	b, err := s.open(ctx, downloadPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", downloadPath, err)
	}
	s.buckets[downloadPath] = b
	return b, nil
}

// UniqueName returns name if it is free in b. Otherwise the timestamp of now
// is appended to the base before the extension: report.pdf becomes
// report_2024_Jan_02_15_04_05.pdf.
func UniqueName(ctx context.Context, b *blob.Bucket, name string, now time.Time) (string, error) {
	exists, err := b.Exists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("check %s (%s): %w", name, gcerrors.Code(err), err)
	}
	if !exists {
		return name, nil
	}

	base, ext := job.SplitName(name)
	unique := base + "_" + now.UTC().Format(TimestampLayout)
	if ext != "" {
		unique += "." + ext
	}
	return unique, nil
}

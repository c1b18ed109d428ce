package executor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
	"github.com/AhmedYasen/download-manager/internal/job"
	"github.com/AhmedYasen/download-manager/internal/storage"
)

type fakeSource struct {
	size     *int64
	probeErr error
	data     []byte
	fetchErr error
	panicMsg string
	fetches  atomic.Int32
}

func (f *fakeSource) ProbeSize(ctx context.Context, url string) (*int64, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.size, f.probeErr
}

func (f *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.fetches.Add(1)
	return f.data, f.fetchErr
}

type fakeSink struct {
	name  string
	err   error
	saved []byte
	path  string
}

func (f *fakeSink) Save(ctx context.Context, downloadPath, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.path = downloadPath
	f.saved = data
	if f.name != "" {
		return f.name, nil
	}
	return name, nil
}

func activeJob(t *testing.T, id int) *job.Job {
	t.Helper()
	j, err := job.New("http://host/a.zip", "", "/downloads")
	require.NoError(t, err)
	require.NoError(t, j.Activate(id))
	return j
}

func waitDone(t *testing.T, e *Executor) int {
	t.Helper()
	select {
	case id := <-e.Done():
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not signal completion")
		return 0
	}
}

func requireNoSecondSignal(t *testing.T, e *Executor) {
	t.Helper()
	select {
	case id := <-e.Done():
		t.Fatalf("unexpected second completion signal %d", id)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestExecuteSuccess(t *testing.T) {
	size := int64(7)
	src := &fakeSource{size: &size, data: []byte("payload")}
	sink := &fakeSink{name: "a_2024_Jan_02_15_04_05.zip"}
	j := activeJob(t, 4)

	var notified atomic.Int32
	e := Start(context.Background(), 4, j, Options{
		Source: src,
		Sink:   sink,
		Logger: zerolog.Nop(),
		Notify: func() { notified.Add(1) },
	})
	require.Equal(t, 4, e.ID())
	require.Equal(t, 4, waitDone(t, e))
	requireNoSecondSignal(t, e)

	s := j.Snapshot()
	require.Equal(t, job.Done, s.State)
	require.Equal(t, "a_2024_Jan_02_15_04_05.zip", s.Name)
	require.NotNil(t, s.TotalSize)
	require.Equal(t, int64(7), *s.TotalSize)
	require.Equal(t, "payload", string(sink.saved))
	require.Equal(t, "/downloads", sink.path)
	require.Equal(t, int32(1), notified.Load())
}

func TestExecuteUnknownSize(t *testing.T) {
	src := &fakeSource{data: []byte("x")}
	j := activeJob(t, 1)

	e := Start(context.Background(), 1, j, Options{Source: src, Sink: &fakeSink{}, Logger: zerolog.Nop()})
	waitDone(t, e)

	s := j.Snapshot()
	require.Equal(t, job.Done, s.State)
	require.Nil(t, s.TotalSize)
	require.Equal(t, "a.zip  ( _ / )  Done\r\n", s.Line())
}

func TestExecuteFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		src         *fakeSource
		sink        *fakeSink
		stage       Stage
		wantFetches int32
	}{
		{
			name:        "probe",
			src:         &fakeSource{probeErr: boom},
			sink:        &fakeSink{},
			stage:       StageProbe,
			wantFetches: 0,
		},
		{
			name:        "fetch",
			src:         &fakeSource{fetchErr: boom},
			sink:        &fakeSink{},
			stage:       StageFetch,
			wantFetches: 1,
		},
		{
			name:        "storage",
			src:         &fakeSource{data: []byte("x")},
			sink:        &fakeSink{err: boom},
			stage:       StageStorage,
			wantFetches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := activeJob(t, 3)
			e := Start(context.Background(), 3, j, Options{Source: tt.src, Sink: tt.sink, Logger: zerolog.Nop()})

			require.Equal(t, 3, waitDone(t, e))
			requireNoSecondSignal(t, e)

			s := j.Snapshot()
			require.Equal(t, job.Failed, s.State)
			require.Equal(t, string(tt.stage)+": boom", s.Error)
			require.Equal(t, "a.zip", s.Name)
			require.Equal(t, tt.wantFetches, tt.src.fetches.Load())
		})
	}
}

func TestExecutePanicFailsJob(t *testing.T) {
	j := activeJob(t, 9)
	e := Start(context.Background(), 9, j, Options{
		Source: &fakeSource{panicMsg: "nil map"},
		Sink:   &fakeSink{},
		Logger: zerolog.Nop(),
	})

	require.Equal(t, 9, waitDone(t, e))

	s := j.Snapshot()
	require.Equal(t, job.Failed, s.State)
	require.Equal(t, "panic: nil map", s.Error)
}

func TestExecuteErrorStage(t *testing.T) {
	err := error(&Error{Stage: StageFetch, Err: dlhttp.ErrNotFound})

	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, StageFetch, execErr.Stage)
	require.ErrorIs(t, err, dlhttp.ErrNotFound)
}

func TestExecuteAgainstHTTPServer(t *testing.T) {
	payload := []byte("%PDF-1.4 test document")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "out")
	client := dlhttp.NewClient(dlhttp.DefaultOptions())
	store := storage.New()
	defer store.Close()

	run := func(id int, rawURL string) *job.Job {
		j, err := job.New(rawURL, "", dir)
		require.NoError(t, err)
		require.NoError(t, j.Activate(id))
		waitDone(t, Start(context.Background(), id, j, Options{Source: client, Sink: store, Logger: zerolog.Nop()}))
		return j
	}

	first := run(1, server.URL+"/report.pdf").Snapshot()
	second := run(2, server.URL+"/report.pdf").Snapshot()
	missing := run(3, server.URL+"/missing.pdf").Snapshot()

	require.Equal(t, job.Done, first.State)
	require.Equal(t, "report.pdf", first.Name)
	require.NotNil(t, first.TotalSize)
	require.Equal(t, int64(len(payload)), *first.TotalSize)

	require.Equal(t, job.Done, second.State)
	require.Regexp(t, regexp.MustCompile(`^report_\d{4}_[A-Z][a-z]{2}_\d{2}_\d{2}_\d{2}_\d{2}\.pdf$`), second.Name)

	require.Equal(t, job.Failed, missing.State)
	require.Contains(t, missing.Error, "probe:")

	for _, name := range []string{first.Name, second.Name} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, payload, data)
	}
	_, err := os.Stat(filepath.Join(dir, "missing.pdf"))
	require.True(t, os.IsNotExist(err))
}

package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AhmedYasen/download-manager/internal/client"
	"github.com/AhmedYasen/download-manager/internal/config"
	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.ActiveDownloads = 2
	cfg.DownloadPath = filepath.Join(t.TempDir(), "downloads")
	cfg.PollInterval = 20 * time.Millisecond
	cfg.LockFile = filepath.Join(t.TempDir(), "manager.lock")
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

// start runs d in the background and returns once it is listening. The
// returned function cancels it and returns the result of Run.
func start(t *testing.T, d *Daemon) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-runErr:
		cancel()
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}

	stopped := false
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-runErr:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func send(t *testing.T, c *client.Client, cmd protocol.Command) string {
	t.Helper()
	resp, err := c.Send(context.Background(), cmd)
	require.NoError(t, err)
	return resp
}

func TestDaemonDownloadsFiles(t *testing.T) {
	files := map[string]string{
		"/files/report.pdf": "quarterly numbers",
		"/files/notes.txt":  "remember the milk",
	}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer origin.Close()

	cfg := testConfig(t)
	// One at a time so the two report.pdf jobs cannot race for the name.
	cfg.ActiveDownloads = 1
	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	stop := start(t, d)

	c := client.New(d.Addr(), dlhttp.DefaultOptions())
	require.Equal(t, "File added", send(t, c, protocol.Command{Add: &protocol.Add{URL: origin.URL + "/files/report.pdf"}}))
	require.Equal(t, "File added", send(t, c, protocol.Command{Add: &protocol.Add{URL: origin.URL + "/files/report.pdf"}}))
	require.Equal(t, "File added", send(t, c, protocol.Command{Add: &protocol.Add{
		URL:        origin.URL + "/files/notes.txt",
		CustomName: protocol.StringPtr("todo"),
	}}))
	require.Equal(t, "File added", send(t, c, protocol.Command{Add: &protocol.Add{URL: origin.URL + "/files/missing.bin"}}))

	require.Eventually(t, func() bool {
		out, err := c.Send(context.Background(), protocol.Command{List: &protocol.List{Scope: protocol.ScopeDone}})
		return err == nil && strings.Count(out, "\r\n") == 4
	}, 10*time.Second, 20*time.Millisecond)

	require.Empty(t, send(t, c, protocol.Command{List: &protocol.List{Scope: protocol.ScopeActive}}))

	data, err := os.ReadFile(filepath.Join(cfg.DownloadPath, "report.pdf"))
	require.NoError(t, err)
	require.Equal(t, "quarterly numbers", string(data))

	data, err = os.ReadFile(filepath.Join(cfg.DownloadPath, "todo.txt"))
	require.NoError(t, err)
	require.Equal(t, "remember the milk", string(data))

	entries, err := os.ReadDir(cfg.DownloadPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	info := send(t, c, protocol.Command{Info: &protocol.Info{Filename: "missing.bin"}})
	require.True(t, strings.HasPrefix(info, "missing.bin  ( _ / )  Failed\r\n"), info)
	require.Contains(t, info, "error: probe:")

	require.Equal(t, "This file is not found!!", send(t, c, protocol.Command{Info: &protocol.Info{Filename: "nope"}}))
	require.Equal(t, "cancel command [not working yet]", send(t, c, protocol.Command{Cancel: &protocol.Cancel{Filename: "todo.txt"}}))

	require.NoError(t, stop())
	require.False(t, c.Ping(context.Background()))
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	start(t, first)

	second, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	err = second.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestDaemonLockIsReleased(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	stop := start(t, first)
	require.NoError(t, stop())

	second, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	start(t, second)
}

func TestDaemonShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer origin.Close()
	defer close(release)

	cfg := testConfig(t)
	cfg.ShutdownTimeout = 50 * time.Millisecond
	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	stop := start(t, d)

	c := client.New(d.Addr(), dlhttp.DefaultOptions())
	require.Equal(t, "File added", send(t, c, protocol.Command{Add: &protocol.Add{URL: origin.URL + "/slow.bin"}}))
	require.Eventually(t, func() bool {
		out, err := c.Send(context.Background(), protocol.Command{List: &protocol.List{Scope: protocol.ScopeActive}})
		return err == nil && strings.Contains(out, "slow.bin")
	}, 5*time.Second, 20*time.Millisecond)

	began := time.Now()
	require.NoError(t, stop())
	require.Less(t, time.Since(began), 5*time.Second)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DownloadPath = ""

	_, err := New(cfg, zerolog.Nop())
	require.Error(t, err)
}

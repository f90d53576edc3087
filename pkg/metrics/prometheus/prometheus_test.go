package prometheus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/virtfs/pkg/backend/memory"
	"github.com/marmos91/virtfs/pkg/metrics"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

func memFS(t *testing.T, rec virtfs.Recorder) *virtfs.FS {
	t.Helper()

	srv := memory.NewServer()
	exp := srv.AddExport("host", "/export")
	require.NoError(t, exp.WriteFile("/hello.txt", []byte("hello"), 0o644))

	reg := virtfs.NewRegistry()
	require.NoError(t, memory.Register(reg, srv))

	fsys, err := virtfs.New("mem://host/export", virtfs.WithRegistry(reg), virtfs.WithRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, fsys.Connect(context.Background()))
	t.Cleanup(func() { _ = fsys.Close() })
	return fsys
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	fsys := memFS(t, rec)

	_, err := fsys.Stat(ctx, "/hello.txt")
	require.NoError(t, err)
	_, err = fsys.Stat(ctx, "/missing")
	require.Error(t, err)

	f, err := fsys.Open(ctx, "/hello.txt", os.O_RDONLY, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.NoError(t, f.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.(*recorder).operationsTotal.WithLabelValues("stat", "mem", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		rec.(*recorder).operationsTotal.WithLabelValues("stat", "mem", "error", "backend")))
	assert.Equal(t, 5.0, testutil.ToFloat64(
		rec.(*recorder).bytesTotal.WithLabelValues("read", "mem")))

	n, err := testutil.GatherAndCount(reg, "virtfs_operation_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRecorder_ZeroBytesIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.RecordBytes("write", "mem", 0)
	n, err := testutil.GatherAndCount(reg, "virtfs_bytes_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Parse", &virtfs.Error{Kind: virtfs.KindParse}, "parse"},
		{"State", &virtfs.Error{Kind: virtfs.KindState, Err: virtfs.ErrClosed}, "state"},
		{"InvalidArgument", &virtfs.Error{Kind: virtfs.KindInvalidArgument}, "invalid_argument"},
		{"Other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}

func TestS3Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewS3Metrics(reg).(*s3Metrics)

	m.ObserveOperation("GetObject", 20*time.Millisecond, nil)
	m.ObserveOperation("GetObject", 30*time.Millisecond, errors.New("slow down"))
	m.RecordBytes("read", 512)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("GetObject", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("GetObject", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("GetObject")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("read")))
}

func TestDisabled(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("global registry already initialized")
	}
	assert.Nil(t, New())
	assert.Nil(t, S3())
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)
	rec.RecordOperation("connect", "mem", time.Millisecond, nil)

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `virtfs_operations_total{kind="",operation="connect",scheme="mem",status="success"} 1`))

	disabled := httptest.NewServer(metrics.Handler(nil))
	defer disabled.Close()

	resp2, err := http.Get(disabled.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

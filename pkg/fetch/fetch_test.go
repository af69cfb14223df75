package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const content = "0123456789abcdefghij"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/file.nc":
			http.ServeContent(w, r, "file.nc", time.Time{}, strings.NewReader(content))
		case "/private.nc":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "aemet" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte("private"))
		case "/bearer":
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write([]byte("ok"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownloadTemp(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second, TempDir: t.TempDir()})

	path, err := client.DownloadTemp(context.Background(), server.URL+"/file.nc", ".nc", nil)
	require.Nil(t, err)
	defer os.Remove(path)
	assert.True(t, strings.HasSuffix(path, ".nc"))
	data, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, content, string(data))
}

func TestNotFoundIsDetectedThroughWrapping(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second, TempDir: t.TempDir()})

	_, err := client.DownloadTemp(context.Background(), server.URL+"/missing.nc", ".nc", nil)
	require.NotNil(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(errors.Wrap(err, "wrapped")))
	assert.False(t, IsNotFound(nil))

	entries, _ := os.ReadDir(client.tempDir)
	assert.Len(t, entries, 0, "failed downloads must not leave temp files")
}

func TestAuth(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second})

	_, err := client.GetBytes(context.Background(), server.URL+"/private.nc", nil)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))

	data, err := client.GetBytes(context.Background(), server.URL+"/private.nc", BasicAuth("aemet", "secret"))
	require.Nil(t, err)
	assert.Equal(t, "private", string(data))

	data, err = client.GetBytes(context.Background(), server.URL+"/bearer", BearerAuth("token"))
	require.Nil(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestHead(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second})
	code, err := client.Head(context.Background(), server.URL+"/file.nc")
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, code)
	code, err = client.Head(context.Background(), server.URL+"/nope")
	require.Nil(t, err)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDownloadRanges(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second})
	buf := &bytes.Buffer{}
	written, err := client.DownloadRanges(context.Background(), server.URL+"/file.nc", []ByteRange{
		{Offset: 10, Length: 3},
		{Offset: 0, Length: 2},
		{Offset: 2, Length: 2},
	}, buf)
	require.Nil(t, err)
	assert.Equal(t, int64(7), written)
	assert.Equal(t, "abc0123", buf.String())
}

func TestMergeRanges(t *testing.T) {
	assert.Equal(t, []ByteRange{{0, 10}, {20, 5}}, MergeRanges([]ByteRange{{0, 4}, {4, 6}, {20, 5}}))
}

func TestDownloadToCreatesDirectories(t *testing.T) {
	server := newServer(t)
	client := New(Options{Timeout: 5 * time.Second})
	out := filepath.Join(t.TempDir(), "a", "b", "file.nc")
	n, err := client.DownloadTo(context.Background(), server.URL+"/file.nc", out, nil)
	require.Nil(t, err)
	assert.Equal(t, int64(len(content)), n)
}

func TestSlowDownloadOutlivesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			w.Write([]byte("0123"))
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := New(Options{Timeout: 200 * time.Millisecond})
	target := filepath.Join(t.TempDir(), "slow.nc")
	written, err := client.DownloadTo(context.Background(), server.URL, target, nil)
	require.Nil(t, err)
	assert.Equal(t, int64(40), written)
}

func TestStalledDownloadFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := New(Options{Timeout: 200 * time.Millisecond})
	target := filepath.Join(t.TempDir(), "stalled.nc")
	started := time.Now()
	_, err := client.DownloadTo(context.Background(), server.URL, target, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrIdleTimeout, errors.Cause(err))
	assert.Less(t, time.Since(started), 2*time.Second)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

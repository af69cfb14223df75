package modis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/state/file"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testListing = `<html><body>
<a href="/MOLA/">Parent Directory</a>
<a href="MYD13Q1.A2023057.h21v08.061.2023074062513.hdf">MYD13Q1.A2023057.h21v08.061.2023074062513.hdf</a>
<a href="MYD13Q1.A2023057.h21v08.061.2023074062513.hdf.xml">xml</a>
<a href="BROWSE.MYD13Q1.A2023057.h21v08.061.2023074062513.1.jpg">jpg</a>
<a href="MYD13Q1.A2023057.h22v09.061.2023074062000.hdf">MYD13Q1.A2023057.h22v09.061.2023074062000.hdf</a>
<a href="MYD13Q1.A2023057.h30v10.061.2023074062000.hdf">other</a>
</body></html>`

func TestExtentTiles(t *testing.T) {
	extent, err := ParseExtent("33.9,41.9,-4.7,5.0")
	require.Nil(t, err)
	assert.Equal(t, []string{"h21v08", "h21v09", "h22v08", "h22v09"}, extent.Tiles())
	assert.Equal(t, "h18v04", TileFor(0.5, 45))

	_, err = ParseExtent("1,2,3")
	assert.NotNil(t, err)
	_, err = ParseExtent("10,2,3,4")
	assert.NotNil(t, err)
}

func TestListingTileFiles(t *testing.T) {
	links, err := ParseListing([]byte(testListing))
	require.Nil(t, err)
	assert.Contains(t, links, "MOLA")
	assert.Equal(t, []string{
		"MYD13Q1.A2023057.h21v08.061.2023074062513.hdf",
		"MYD13Q1.A2023057.h22v09.061.2023074062000.hdf",
	}, TileFiles(links, "MYD13Q1", []string{"h21v08", "h22v09"}))
}

func TestRunDownloadsTilesAndMosaics(t *testing.T) {
	var lock sync.Mutex
	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/MOLA/MYD13Q1.061/2023.02.26/":
			w.Write([]byte(testListing))
		case "/MOLA/MYD13Q1.061/2023.02.26/MYD13Q1.A2023057.h21v08.061.2023074062513.hdf",
			"/MOLA/MYD13Q1.061/2023.02.26/MYD13Q1.A2023057.h22v09.061.2023074062000.hdf":
			if r.Header.Get("Authorization") != "Bearer token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			lock.Lock()
			downloads = downloads + 1
			lock.Unlock()
			w.Write([]byte("hdf"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	runner := &toolchain.RecordingRunner{}
	out := t.TempDir()
	ds, err := New("modis", map[string]interface{}{
		"output-dir":  out,
		"auth-token":  "token",
		"data-extent": "33.9,41.9,-4.7,5.0",
		"base-url":    server.URL,
	}, ingest.Dependencies{
		Logger:    hclog.NewNullLogger(),
		State:     store,
		Toolchain: toolchain.New(runner),
		Fetch:     fetch.New(fetch.Options{Timeout: 5 * time.Second}),
		TempDir:   t.TempDir(),
	})
	require.Nil(t, err)
	ds.(*dataset).now = func() time.Time { return time.Date(2023, 3, 20, 0, 0, 0, 0, time.UTC) }

	require.Nil(t, ds.Run(context.Background()))
	assert.Equal(t, 2, downloads)
	assert.FileExists(t, filepath.Join(out, "input", "MYD13Q1.A2023057.h21v08.061.2023074062513.hdf"))

	vrts := runner.Called("gdalbuildvrt")
	require.Len(t, vrts, 1)
	assert.Len(t, vrts[0].Args, 4)
	calcs := runner.Called("gdal_calc.py")
	require.Len(t, calcs, 1)
	assert.Contains(t, calcs[0].Args, "--calc=A/10000")

	current, _, err := store.Get(context.Background(), "modis")
	require.Nil(t, err)
	assert.Equal(t, "2023-02-26T00:00:00", current.Get(state.KeyLastUpdate))

	// the next composite is looked up 16 days later and is not published yet
	ds.(*dataset).now = func() time.Time { return time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC) }
	require.Nil(t, ds.Run(context.Background()))
	current, _, err = store.Get(context.Background(), "modis")
	require.Nil(t, err)
	assert.Equal(t, "2023-02-26T00:00:00", current.Get(state.KeyLastUpdate))
}

func TestRunReusesDownloadedTiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/MOLA/MYD13Q1.061/2023.02.26/" {
			w.Write([]byte(testListing))
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer server.Close()

	out := t.TempDir()
	for _, name := range []string{"MYD13Q1.A2023057.h21v08.061.2023074062513.hdf", "MYD13Q1.A2023057.h22v09.061.2023074062000.hdf"} {
		require.Nil(t, os.MkdirAll(filepath.Join(out, "input"), 0755))
		require.Nil(t, os.WriteFile(filepath.Join(out, "input", name), []byte("hdf"), 0644))
	}
	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	ds, err := New("modis", map[string]interface{}{
		"output-dir": out, "auth-token": "token", "data-extent": "33.9,41.9,-4.7,5.0", "base-url": server.URL,
	}, ingest.Dependencies{State: store, Toolchain: toolchain.New(&toolchain.RecordingRunner{}), Fetch: fetch.New(fetch.Options{})})
	require.Nil(t, err)
	require.Nil(t, ds.Run(context.Background()))
}

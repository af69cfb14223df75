package tamsat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
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

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "/monthly/2024/02/rfe2024_02.v3.1.nc",
		ExpandTemplate("/monthly/{YYYY}/{MM}/rfe{YYYY}_{MM}.v3.1.nc", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRunMonthlyCatchesUpUntilNotAvailable(t *testing.T) {
	requested := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		switch r.URL.Path {
		case "/monthly/2024/01/rfe2024_01.v3.1.nc",
			"/monthly-anomalies/2024/01/rfe2024_01_anom.v3.1.nc",
			"/monthly/2024/02/rfe2024_02.v3.1.nc":
			w.Write([]byte("netcdf"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	require.Nil(t, store.Update(context.Background(), "tamsat_rainfall", state.State{state.KeyMonthly: "2023-12-01T00:00:00"}))

	runner := &toolchain.RecordingRunner{Handler: bothVariables}
	ds, err := New("tamsat_rainfall", map[string]interface{}{"output-dir": t.TempDir(), "base-url": server.URL}, ingest.Dependencies{
		Logger:    hclog.NewNullLogger(),
		State:     store,
		Toolchain: toolchain.New(runner),
		Fetch:     fetch.New(fetch.Options{Timeout: 5 * time.Second, TempDir: t.TempDir()}),
		TempDir:   t.TempDir(),
	})
	require.Nil(t, err)
	ds.(*dataset).now = func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }

	require.Nil(t, ds.Run(context.Background()))

	// January is complete, February misses its anomaly
	current, _, err := store.Get(context.Background(), "tamsat_rainfall")
	require.Nil(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", current.Get(state.KeyMonthly))
	assert.Len(t, runner.Called("gdal_translate"), 6)
	assert.Equal(t, []string{
		"/monthly/2024/01/rfe2024_01.v3.1.nc",
		"/monthly-anomalies/2024/01/rfe2024_01_anom.v3.1.nc",
		"/monthly/2024/02/rfe2024_02.v3.1.nc",
		"/monthly-anomalies/2024/02/rfe2024_02_anom.v3.1.nc",
	}, requested)
}

func bothVariables(name string, args []string) ([]byte, error) {
	if name == "cdo" {
		return []byte("rfe rfe_filled\n"), nil
	}
	return []byte{}, nil
}

func TestRunMonthlySkipsMissingVariables(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/monthly/2024/01/rfe2024_01.v3.1.nc",
			"/monthly-anomalies/2024/01/rfe2024_01_anom.v3.1.nc":
			w.Write([]byte(r.URL.Path))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	require.Nil(t, store.Update(context.Background(), "tamsat_rainfall", state.State{state.KeyMonthly: "2023-12-01T00:00:00"}))

	// the anomaly file has no rfe_filled variable
	runner := &toolchain.RecordingRunner{Handler: func(name string, args []string) ([]byte, error) {
		if name == "cdo" {
			data, err := os.ReadFile(args[len(args)-1])
			if err != nil {
				return nil, err
			}
			if strings.Contains(string(data), "anom") {
				return []byte("rfe\n"), nil
			}
		}
		return bothVariables(name, args)
	}}
	ds, err := New("tamsat_rainfall", map[string]interface{}{"output-dir": t.TempDir(), "base-url": server.URL}, ingest.Dependencies{
		Logger:    hclog.NewNullLogger(),
		State:     store,
		Toolchain: toolchain.New(runner),
		Fetch:     fetch.New(fetch.Options{Timeout: 5 * time.Second, TempDir: t.TempDir()}),
		TempDir:   t.TempDir(),
	})
	require.Nil(t, err)
	ds.(*dataset).now = func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }

	require.Nil(t, ds.Run(context.Background()))

	current, _, err := store.Get(context.Background(), "tamsat_rainfall")
	require.Nil(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", current.Get(state.KeyMonthly))
	filled := 0
	translated := runner.Called("gdal_translate")
	require.Len(t, translated, 3)
	for _, inv := range translated {
		if strings.Contains(strings.Join(inv.Args, " "), ":rfe_filled") {
			filled++
		}
	}
	assert.Equal(t, 1, filled)
}

func TestRunMonthlyStartsAtFirstMonth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/monthly/1983/01/rfe1983_01.v3.1.nc", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	ds, err := New("tamsat_rainfall", map[string]interface{}{"output-dir": t.TempDir(), "base-url": server.URL}, ingest.Dependencies{
		State:     store,
		Toolchain: toolchain.New(&toolchain.RecordingRunner{}),
		Fetch:     fetch.New(fetch.Options{}),
	})
	require.Nil(t, err)
	require.Nil(t, ds.Run(context.Background()))
	_, found, err := store.Get(context.Background(), "tamsat_rainfall")
	require.Nil(t, err)
	assert.False(t, found)
}

package dust

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/gsky"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/state/file"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0" version="1.0.1">
  <dataset name="latest">
    <dataset name="20240315_3H_MEDIAN.nc" ID="latest/20240315_3H_MEDIAN.nc" urlPath="latest/20240315_3H_MEDIAN.nc"/>
  </dataset>
</catalog>`

type countingNotifier struct {
	namespaces []string
}

func (n *countingNotifier) SendIngest(_ context.Context, p gsky.Payload) (bool, error) {
	n.namespaces = append(n.namespaces, p.Namespace)
	return true, nil
}

func TestLatestDataset(t *testing.T) {
	name, date, err := LatestDataset([]byte(testCatalog))
	require.Nil(t, err)
	assert.Equal(t, "20240315_3H_MEDIAN.nc", name)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), date)

	_, _, err = LatestDataset([]byte(`<catalog><dataset name="latest"></dataset></catalog>`))
	assert.NotNil(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("dust_forecast", map[string]interface{}{"output-dir": "/data/dust"}, ingest.Dependencies{})
	require.NotNil(t, err)
	assert.Equal(t, "username not provided", err.Error())
}

func TestRunWritesVariablesAndSkipsKnownDate(t *testing.T) {
	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog/" + latestPath + "/catalog.xml":
			w.Write([]byte(testCatalog))
		case "/fileServer/" + latestPath + "/20240315_3H_MEDIAN.nc":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "user" || pass != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			downloads = downloads + 1
			w.Write([]byte("netcdf"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	runner := &toolchain.RecordingRunner{
		Handler: func(name string, args []string) ([]byte, error) {
			if name == "cdo" {
				return []byte("2024-03-15T00:00:00  2024-03-15T03:00:00\n"), nil
			}
			return []byte{}, nil
		},
	}
	notifier := &countingNotifier{}
	out := t.TempDir()
	ds, err := New("dust_forecast", map[string]interface{}{
		"output-dir": out,
		"username":   "user",
		"password":   "pass",
		"base-url":   server.URL,
	}, ingest.Dependencies{
		Logger:    hclog.NewNullLogger(),
		State:     store,
		Notifier:  notifier,
		Toolchain: toolchain.New(runner),
		Fetch:     fetch.New(fetch.Options{Timeout: 5 * time.Second, TempDir: t.TempDir()}),
		TempDir:   t.TempDir(),
	})
	require.Nil(t, err)

	require.Nil(t, ds.Run(context.Background()))
	assert.Equal(t, 1, downloads)
	assert.Len(t, runner.Called("gdal_translate"), 2)
	assert.Len(t, runner.Called("gdal_calc.py"), 2)
	assert.Equal(t, []string{"-n od550_dust", "-n sconc_dust"}, notifier.namespaces)

	current, found, err := store.Get(context.Background(), "dust_forecast")
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-03-15T00:00:00", current.Get(state.KeyLastUpdate))

	require.Nil(t, ds.Run(context.Background()))
	assert.Equal(t, 1, downloads)
}

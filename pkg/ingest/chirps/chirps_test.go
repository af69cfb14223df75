package chirps

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/gsky"
	"github.com/eahazardswatch/geoingest/pkg/ingest"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/state/file"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chirpsServer struct {
	sync.Mutex
	requests []string
}

func (s *chirpsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.Unlock()
	if strings.Contains(r.URL.Path, "2024.02") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	gz.Write([]byte("tif"))
	gz.Close()
	w.Write(buf.Bytes())
}

type recordingNotifier struct {
	namespaces []string
}

func (n *recordingNotifier) SendIngest(_ context.Context, p gsky.Payload) (bool, error) {
	n.namespaces = append(n.namespaces, p.Namespace)
	return true, nil
}

func newTestDataset(t *testing.T, server *httptest.Server, store state.Store, runner toolchain.Runner, notifier gsky.Notifier) *dataset {
	ds, err := New("chirps_rainfall", map[string]interface{}{"output-dir": t.TempDir(), "base-url": server.URL}, ingest.Dependencies{
		Logger:    hclog.NewNullLogger(),
		State:     store,
		Notifier:  notifier,
		Toolchain: toolchain.New(runner),
		Fetch:     fetch.New(fetch.Options{Timeout: 5 * time.Second, TempDir: t.TempDir()}),
		TempDir:   t.TempDir(),
	})
	require.Nil(t, err)
	d := ds.(*dataset)
	d.now = func() time.Time { return time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC) }
	return d
}

func newStore(t *testing.T) state.Provider {
	store := file.New(hclog.NewNullLogger())
	require.Nil(t, store.Configure(map[string]interface{}{"dir": t.TempDir()}))
	require.Nil(t, store.Update(context.Background(), "chirps_rainfall", state.State{state.KeyMonthly: "2023-12-01T00:00:00"}))
	return store
}

func TestRunComputesNormalAndAnomaly(t *testing.T) {
	handler := &chirpsServer{}
	server := httptest.NewServer(handler)
	defer server.Close()
	store := newStore(t)
	runner := &toolchain.RecordingRunner{}
	notifier := &recordingNotifier{}
	d := newTestDataset(t, server, store, runner, notifier)

	require.Nil(t, d.Run(context.Background()))

	// January, 31 climatology years, then February is not available
	assert.Len(t, handler.requests, 1+31+1)
	calcs := runner.Called("gdal_calc.py")
	require.Len(t, calcs, 2)
	assert.Contains(t, calcs[0].Args, "--calc="+MeanExpression)
	assert.Contains(t, calcs[1].Args, "--calc="+AnomalyExpression)
	assert.Equal(t, []string{"-n monthly_chirps_rainfall_estimate", "-n monthly_chirps_rainfall_anomaly"}, notifier.namespaces)

	current, _, err := store.Get(context.Background(), "chirps_rainfall")
	require.Nil(t, err)
	assert.Equal(t, "2024-01-01T00:00:00", current.Get(state.KeyMonthly))
	assert.Equal(t, d.NormalPath(1), current.Get("monthly_normals.01"))
	// the earlier keys survive
	assert.Len(t, current, 2)
}

func TestRunReusesExistingNormal(t *testing.T) {
	handler := &chirpsServer{}
	server := httptest.NewServer(handler)
	defer server.Close()
	store := newStore(t)
	runner := &toolchain.RecordingRunner{}
	d := newTestDataset(t, server, store, runner, nil)

	normal := d.NormalPath(1)
	require.Nil(t, utils.EnsureParentDirectory(normal))
	require.Nil(t, os.WriteFile(normal, []byte("normal"), 0644))
	require.Nil(t, store.Update(context.Background(), "chirps_rainfall", state.State{"monthly_normals.01": normal}))

	require.Nil(t, d.Run(context.Background()))
	assert.Len(t, handler.requests, 2)
	assert.Len(t, runner.Called("gdal_calc.py"), 1)
}

func TestMonthURL(t *testing.T) {
	d := &dataset{config: &Config{BaseURL: DefaultBaseURL}}
	assert.Equal(t, "https://data.chc.ucsb.edu/products/CHIRPS-2.0/africa_monthly/tifs/chirps-v2.0.1981.07.tif.gz", d.MonthURL(1981, 7))
}

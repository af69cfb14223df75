package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/scheduler"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/state/file"
	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus []scheduler.JobStatus

func (f fakeStatus) Status() []scheduler.JobStatus {
	return f
}

func newStore(t *testing.T) state.Store {
	provider := file.New(hclog.NewNullLogger())
	require.Nil(t, provider.Configure(map[string]interface{}{"dir": t.TempDir()}))
	return provider
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	response, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.Nil(t, err)
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	require.Nil(t, err)
	return response.StatusCode, body
}

func TestHealth(t *testing.T) {
	app := New(hclog.NewNullLogger(), fakeStatus{}, newStore(t))
	status, body := get(t, app, "/health")
	assert.Equal(t, 200, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestJobs(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	app := New(hclog.NewNullLogger(), fakeStatus{
		{ID: "dust_forecast", Interval: "30m0s", Running: true, LastStart: &started},
	}, newStore(t))
	status, body := get(t, app, "/jobs")
	require.Equal(t, 200, status)

	jobs := []scheduler.JobStatus{}
	require.Nil(t, json.Unmarshal(body, &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "dust_forecast", jobs[0].ID)
	assert.True(t, jobs[0].Running)
	assert.True(t, started.Equal(*jobs[0].LastStart))
}

func TestState(t *testing.T) {
	store := newStore(t)
	require.Nil(t, store.Update(context.Background(), "chirps_rainfall", state.State{"monthly": "2024-01-01T00:00:00"}))
	app := New(hclog.NewNullLogger(), fakeStatus{}, store)

	status, body := get(t, app, "/state")
	require.Equal(t, 200, status)
	assert.JSONEq(t, `{"chirps_rainfall":{"monthly":"2024-01-01T00:00:00"}}`, string(body))

	status, body = get(t, app, "/state/chirps_rainfall")
	require.Equal(t, 200, status)
	assert.JSONEq(t, `{"monthly":"2024-01-01T00:00:00"}`, string(body))

	status, _ = get(t, app, "/state/modis")
	assert.Equal(t, 404, status)
}

package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) (state.Provider, string) {
	t.Helper()
	dir := t.TempDir()
	p := New(hclog.NewNullLogger())
	require.Nil(t, p.Configure(map[string]interface{}{"dir": dir}))
	return p, dir
}

func TestMissingStateFileIsCreated(t *testing.T) {
	p, dir := newProvider(t)
	st, found, err := p.Get(context.Background(), "dust_forecast")
	require.Nil(t, err)
	assert.False(t, found)
	assert.Nil(t, st)

	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	require.Nil(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestUpdateMergesKeys(t *testing.T) {
	p, dir := newProvider(t)
	ctx := context.Background()

	require.Nil(t, p.Update(ctx, "chirps_rainfall", state.State{"monthly_normals.01": "/data/normal_01.tif"}))
	require.Nil(t, p.Update(ctx, "chirps_rainfall", state.State{state.KeyMonthly: "1981-01-01T00:00:00"}))
	require.Nil(t, p.Update(ctx, "dust_forecast", state.State{state.KeyLastUpdate: "2024-03-01T00:00:00"}))

	st, found, err := p.Get(ctx, "chirps_rainfall")
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, state.State{
		"monthly_normals.01": "/data/normal_01.tif",
		"monthly":            "1981-01-01T00:00:00",
	}, st)

	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	require.Nil(t, err)
	assert.Contains(t, string(data), "    \"dust_forecast\": {\n        \"last_update\": \"2024-03-01T00:00:00\"")
}

func TestCorruptStateIsReset(t *testing.T) {
	p, dir := newProvider(t)
	require.Nil(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0644))

	_, found, err := p.Get(context.Background(), "ecmwf_forecast")
	require.Nil(t, err)
	assert.False(t, found)

	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	require.Nil(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestResetAndList(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()
	require.Nil(t, p.Update(ctx, "a", state.State{"k": "v"}))
	require.Nil(t, p.Update(ctx, "b", state.State{"k": "w"}))
	require.Nil(t, p.Reset(ctx, "a"))

	all, err := p.List(ctx)
	require.Nil(t, err)
	assert.Equal(t, map[string]state.State{"b": {"k": "w"}}, all)
}

func TestConcurrentUpdates(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()
	wg := &sync.WaitGroup{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.Nil(t, p.Update(ctx, id, state.State{"k": id}))
		}(id)
	}
	wg.Wait()
	all, err := p.List(ctx)
	require.Nil(t, err)
	assert.Len(t, all, 5)
}

func TestUnconfiguredProvider(t *testing.T) {
	p := New(hclog.NewNullLogger())
	_, _, err := p.Get(context.Background(), "a")
	assert.NotNil(t, err)
	assert.NotNil(t, p.Configure(map[string]interface{}{}))
}

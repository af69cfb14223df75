package ecmwf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gribPayload is the content of every fake data file: each param occupies 4 bytes.
const gribPayload = "T2M_TP__MSL_U10_V10_"

const testIndex = `{"domain": "g", "date": "20240310", "time": "0000", "step": "0", "param": "tp", "_offset": 4, "_length": 4}
{"domain": "g", "date": "20240310", "time": "0000", "step": "0", "param": "2t", "_offset": 0, "_length": 4}
{"domain": "g", "date": "20240310", "time": "0000", "step": "0", "param": "msl", "_offset": 8, "_length": 4}
{"domain": "g", "date": "20240310", "time": "0000", "step": "0", "param": "10u", "_offset": 12, "_length": 4}
{"domain": "g", "date": "20240310", "time": "0000", "step": "0", "param": "10v", "_offset": 16, "_length": 4}
`

type openDataServer struct {
	availableDay string
	heads        int32
}

func (s *openDataServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/"+s.availableDay+"/00z/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if strings.HasSuffix(r.URL.Path, ".index") {
		w.Write([]byte(testIndex))
		return
	}
	if r.Method == http.MethodHead {
		atomic.AddInt32(&s.heads, 1)
		return
	}
	var start, end int
	if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
		w.Write([]byte(gribPayload))
		return
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(gribPayload)))
	w.WriteHeader(http.StatusPartialContent)
	w.Write([]byte(gribPayload[start : end+1]))
}

func testClient(t *testing.T, server *httptest.Server, now time.Time) *Client {
	client := NewClient(hclog.NewNullLogger(), fetch.New(fetch.Options{Timeout: 5 * time.Second}), server.URL)
	client.now = func() time.Time { return now }
	return client
}

func TestURLs(t *testing.T) {
	client := NewClient(hclog.NewNullLogger(), nil, "")
	urls := client.URLs(Request{Steps: []int{0, 3, 3}}, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{
		"https://data.ecmwf.int/forecasts/20240310/00z/ifs/0p25/oper/20240310000000-0h-oper-fc.grib2",
		"https://data.ecmwf.int/forecasts/20240310/00z/ifs/0p25/oper/20240310000000-3h-oper-fc.grib2",
	}, urls)
}

func TestLatestProbesBackwards(t *testing.T) {
	handler := &openDataServer{availableDay: "20240309"}
	server := httptest.NewServer(handler)
	defer server.Close()

	client := testClient(t, server, time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC))
	latest, err := client.Latest(context.Background(), Request{Params: []string{"2t"}, Time: 0, Steps: []int{0, 3}})
	require.Nil(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), latest)
	assert.Equal(t, int32(2), handler.heads)

	handler.availableDay = "20240301"
	_, err = client.Latest(context.Background(), Request{Params: []string{"2t"}, Time: 0, Steps: []int{0}})
	assert.NotNil(t, err)
}

func TestParseIndexAndSelectParts(t *testing.T) {
	entries, err := ParseIndex([]byte(testIndex))
	require.Nil(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "tp", entries[0].Param)

	parts := SelectParts(entries, []string{"2t", "tp", "10v"})
	assert.Equal(t, []fetch.ByteRange{{Offset: 0, Length: 4}, {Offset: 4, Length: 4}, {Offset: 16, Length: 4}}, parts)

	_, err = ParseIndex([]byte("{not json}\n"))
	assert.NotNil(t, err)
}

func TestRetrieveWritesPartsInRequestOrder(t *testing.T) {
	server := httptest.NewServer(&openDataServer{availableDay: "20240310"})
	defer server.Close()

	client := testClient(t, server, time.Now())
	target := filepath.Join(t.TempDir(), "out", "forecast.grib2")
	size, err := client.Retrieve(context.Background(),
		Request{Params: []string{"msl", "2t"}, Steps: []int{0, 3}},
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), target)
	require.Nil(t, err)
	assert.Equal(t, int64(16), size)
	data, err := os.ReadFile(target)
	require.Nil(t, err)
	assert.Equal(t, "MSL_T2M_MSL_T2M_", string(data))

	_, err = client.Retrieve(context.Background(), Request{Params: []string{"sd"}, Steps: []int{0}},
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), target)
	assert.NotNil(t, err)
}

package ecmwf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the ECMWF open data server.
const DefaultBaseURL = "https://data.ecmwf.int/forecasts"

// NoTime requests the latest run at any time of day.
const NoTime = -1

// Request selects forecast fields.
type Request struct {
	Model  string
	Resol  string
	Stream string
	Type   string
	Params []string
	// Time is the run hour, NoTime for any run.
	Time  int
	Steps []int
}

func (r Request) withDefaults() Request {
	if r.Model == "" {
		r.Model = "ifs"
	}
	if r.Resol == "" {
		r.Resol = "0p25"
	}
	if r.Stream == "" {
		r.Stream = "oper"
	}
	if r.Type == "" {
		r.Type = "fc"
	}
	return r
}

// Client reads ECMWF open data.
type Client struct {
	baseURL string
	fetch   *fetch.Client
	logger  hclog.Logger
	now     func() time.Time
}

// NewClient returns a new open data client.
func NewClient(logger hclog.Logger, client *fetch.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		fetch:   client,
		logger:  logger,
		now:     time.Now,
	}
}

// URLs returns the data file URL of every step of the run at date.
func (c *Client) URLs(req Request, date time.Time) []string {
	req = req.withDefaults()
	date = date.UTC()
	result := []string{}
	seen := map[string]struct{}{}
	for _, step := range req.Steps {
		url := fmt.Sprintf("%s/%s/%sz/%s/%s/%s/%s-%dh-%s-%s.grib2",
			c.baseURL, date.Format("20060102"), date.Format("15"), req.Model, req.Resol, req.Stream,
			date.Format("20060102150405"), step, req.Stream, req.Type)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		result = append(result, url)
	}
	return result
}

// Latest returns the most recent run for which every requested step is available.
// Runs are probed backwards from today at the requested time, one day apart,
// or six hours apart from 18z when no time is requested.
func (c *Client) Latest(ctx context.Context, req Request) (time.Time, error) {
	hour := req.Time
	delta := 24 * time.Hour
	if hour == NoTime {
		hour = 18
		delta = 6 * time.Hour
	}
	now := c.now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	stop := date.Add(-30 * time.Hour)
	for date.After(stop) {
		urls := c.URLs(req, date)
		available := len(urls) > 0
		for _, url := range urls {
			code, err := c.fetch.Head(ctx, url)
			if err != nil {
				return time.Time{}, err
			}
			if code != http.StatusOK {
				available = false
				break
			}
		}
		if available {
			return date, nil
		}
		c.logger.Debug("run not available", "date", date)
		date = date.Add(-delta)
	}
	return time.Time{}, fmt.Errorf("cannot establish latest date for %s/%s params %v", req.Stream, req.Type, req.Params)
}

// IndexEntry is a single line of a .index file.
type IndexEntry struct {
	Param  string `json:"param"`
	Step   string `json:"step"`
	Offset int64  `json:"_offset"`
	Length int64  `json:"_length"`
}

// ParseIndex parses a .index file, one JSON document per line.
func ParseIndex(data []byte) ([]IndexEntry, error) {
	result := []IndexEntry{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry := IndexEntry{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, errors.Wrap(err, "invalid index line")
		}
		result = append(result, entry)
	}
	return result, scanner.Err()
}

// SelectParts returns the byte ranges of the requested params, in the order of the request.
func SelectParts(entries []IndexEntry, params []string) []fetch.ByteRange {
	result := []fetch.ByteRange{}
	for _, param := range params {
		for _, entry := range entries {
			if entry.Param == param {
				result = append(result, fetch.ByteRange{Offset: entry.Offset, Length: entry.Length})
			}
		}
	}
	return result
}

func indexURL(dataURL string) string {
	return strings.TrimSuffix(dataURL, ".grib2") + ".index"
}

// Retrieve downloads the requested params of every step of the run at date into target.
func (c *Client) Retrieve(ctx context.Context, req Request, date time.Time, target string) (int64, error) {
	if err := utils.EnsureParentDirectory(target); err != nil {
		return 0, errors.Wrap(err, "failed creating target directory")
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, errors.Wrap(err, "failed opening target")
	}
	defer f.Close()

	var total int64
	found := false
	for _, url := range c.URLs(req, date) {
		data, err := c.fetch.GetBytes(ctx, indexURL(url), nil)
		if err != nil {
			return total, errors.Wrap(err, "failed fetching index")
		}
		entries, err := ParseIndex(data)
		if err != nil {
			return total, err
		}
		parts := SelectParts(entries, req.Params)
		if len(parts) == 0 {
			c.logger.Warn("no index entries for the requested params", "url", url, "params", req.Params)
			continue
		}
		found = true
		written, err := c.fetch.DownloadRanges(ctx, url, parts, f)
		total += written
		if err != nil {
			return total, err
		}
	}
	if !found {
		return total, fmt.Errorf("cannot find index entries matching params %v", req.Params)
	}
	return total, f.Sync()
}

package cams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// DefaultADSURL is the Atmosphere Data Store API.
const DefaultADSURL = "https://ads.atmosphere.copernicus.eu/api/v2"

const (
	stateQueued    = "queued"
	stateRunning   = "running"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// TaskError is the error reported by a failed task.
type TaskError struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Reason)
}

type taskReply struct {
	State     string     `json:"state"`
	RequestID string     `json:"request_id"`
	Location  string     `json:"location"`
	Error     *TaskError `json:"error"`
}

// CDSClient talks to a Copernicus data store using the v2 task protocol.
type CDSClient struct {
	auth         fetch.Auth
	fetch        *fetch.Client
	logger       hclog.Logger
	url          string
	pollInterval time.Duration
	maxPoll      time.Duration
}

// NewCDSClient returns a client for url authenticated with a UID:KEY API key.
func NewCDSClient(logger hclog.Logger, client *fetch.Client, url, key string) (*CDSClient, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("API key must have the UID:KEY format")
	}
	if url == "" {
		url = DefaultADSURL
	}
	return &CDSClient{
		auth:         fetch.BasicAuth(parts[0], parts[1]),
		fetch:        client,
		logger:       logger,
		url:          strings.TrimSuffix(url, "/"),
		pollInterval: time.Second,
		maxPoll:      2 * time.Minute,
	}, nil
}

func (c *CDSClient) call(ctx context.Context, method, url string, body interface{}) (*taskReply, error) {
	request := fetch.Request{Method: method, URL: url, Auth: c.auth, Headers: map[string]string{}}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed encoding request")
		}
		request.Body = bytes.NewReader(data)
		request.Headers["Content-Type"] = "application/json"
	}
	resp, err := c.fetch.Do(ctx, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading reply")
	}
	reply := &taskReply{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, reply); err != nil {
			return nil, errors.Wrap(err, "failed decoding reply")
		}
	}
	return reply, nil
}

// Retrieve submits the request, waits for its completion and downloads the result to target.
func (c *CDSClient) Retrieve(ctx context.Context, dataset string, request map[string]interface{}, target string) error {
	reply, err := c.call(ctx, http.MethodPost, c.url+"/resources/"+dataset, request)
	if err != nil {
		return errors.Wrap(err, "failed submitting request")
	}
	taskURL := c.url + "/tasks/" + reply.RequestID
	if reply.RequestID != "" {
		defer func() {
			if _, err := c.call(context.Background(), http.MethodDelete, taskURL, nil); err != nil {
				c.logger.Debug("failed deleting task", "request-id", reply.RequestID, "reason", err)
			}
		}()
	}

	sleep := c.pollInterval
	for {
		switch reply.State {
		case stateCompleted:
			c.logger.Debug("request completed, downloading", "request-id", reply.RequestID, "location", reply.Location)
			if _, err := c.fetch.DownloadTo(ctx, reply.Location, target, nil); err != nil {
				return errors.Wrap(err, "failed downloading result")
			}
			return nil
		case stateFailed:
			if reply.Error != nil {
				c.logger.Warn("CDS API message", "message", reply.Error.Message, "reason", reply.Error.Reason)
				return reply.Error
			}
			return fmt.Errorf("request %s failed", reply.RequestID)
		case stateQueued, stateRunning:
		default:
			return fmt.Errorf("unknown request state %q", reply.State)
		}
		if reply.RequestID == "" {
			return fmt.Errorf("request in state %s has no id", reply.State)
		}
		c.logger.Debug("request in progress", "request-id", reply.RequestID, "state", reply.State)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep = sleep * 3 / 2
		if sleep > c.maxPoll {
			sleep = c.maxPoll
		}
		reply, err = c.call(ctx, http.MethodGet, taskURL, nil)
		if err != nil {
			return errors.Wrap(err, "failed polling request")
		}
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/weaveproject/weaveio/pkg/api"
)

const watchPollInterval = 5 * time.Second

// Client talks to the queue server's JSON API.
type Client struct {
	connectionDetails *ApiConnectionDetails
	httpClient        *http.Client
}

func New(connectionDetails *ApiConnectionDetails) *Client {
	return &Client{
		connectionDetails: connectionDetails,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SubmitJob(ctx context.Context, request *api.JobSubmitRequest) (*api.JobSubmitResponse, error) {
	response := &api.JobSubmitResponse{}
	err := c.call(ctx, "POST", "/v1/jobs", request, response)
	return response, err
}

func (c *Client) GetJob(ctx context.Context, jobId string) (*api.Job, error) {
	job := &api.Job{}
	err := c.call(ctx, "GET", "/v1/jobs/"+url.PathEscape(jobId), nil, job)
	return job, err
}

func (c *Client) ListJobs(ctx context.Context, request *api.JobListRequest) ([]*api.Job, error) {
	query := url.Values{}
	if request.Queue != "" {
		query.Set("queue", request.Queue)
	}
	if request.State != "" {
		query.Set("state", string(request.State))
	}
	path := "/v1/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	jobs := []*api.Job{}
	err := c.call(ctx, "GET", path, nil, &jobs)
	return jobs, err
}

func (c *Client) CancelJob(ctx context.Context, jobId string) (*api.Job, error) {
	job := &api.Job{}
	err := c.call(ctx, "DELETE", "/v1/jobs/"+url.PathEscape(jobId), nil, job)
	return job, err
}

func (c *Client) GetJobEvents(ctx context.Context, jobId string) ([]*api.JobEvent, error) {
	events := []*api.JobEvent{}
	err := c.call(ctx, "GET", "/v1/jobs/"+url.PathEscape(jobId)+"/events", nil, &events)
	return events, err
}

// WatchJob follows a job until it reaches a terminal state, reporting each
// transition through onEvent.  Transitions are read from the job's event
// stream so none are skipped between polls; the job record is polled as a
// fallback for transitions that never reached the stream.
func (c *Client) WatchJob(ctx context.Context, jobId string, onEvent func(event *api.JobEvent)) (*api.Job, error) {
	seen := 0
	lastState := api.JobState("")
	for {
		events, err := c.GetJobEvents(ctx, jobId)
		if err == nil {
			for ; seen < len(events); seen++ {
				event := events[seen]
				if event.State == lastState {
					continue
				}
				lastState = event.State
				onEvent(event)
			}
		}

		job, err := c.GetJob(ctx, jobId)
		if err != nil {
			return nil, err
		}
		if job.State != lastState {
			lastState = job.State
			onEvent(&api.JobEvent{
				JobId:   job.Id,
				Queue:   job.Queue,
				State:   job.State,
				Error:   job.Error,
				Node:    job.Node,
				Created: time.Now(),
			})
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(watchPollInterval):
		}
	}
}

// call performs one API request, retrying transport failures and 5xx
// responses.  4xx responses fail immediately with the server's error message.
func (c *Client) call(ctx context.Context, method string, path string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return retry.Do(
		func() error {
			request, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.connectionDetails.WeaveioUrl, "/")+path, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if body != nil {
				request.Header.Set("Content-Type", "application/json")
			}
			if c.connectionDetails.BasicAuth.Username != "" {
				request.SetBasicAuth(c.connectionDetails.BasicAuth.Username, c.connectionDetails.BasicAuth.Password)
			}

			response, err := c.httpClient.Do(request)
			if err != nil {
				return err
			}
			defer response.Body.Close()
			data, err := io.ReadAll(response.Body)
			if err != nil {
				return err
			}

			if response.StatusCode >= 500 {
				return fmt.Errorf("server error: %s", response.Status)
			}
			if response.StatusCode >= 400 {
				return retry.Unrecoverable(apiError(response.StatusCode, data))
			}
			if result != nil {
				if err := json.Unmarshal(data, result); err != nil {
					return retry.Unrecoverable(errors.Wrap(err, "decoding API response"))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(time.Second),
	)
}

func apiError(statusCode int, data []byte) error {
	errorResponse := &api.ErrorResponse{}
	if err := json.Unmarshal(data, errorResponse); err == nil && errorResponse.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", errorResponse.Error, statusCode)
	}
	return fmt.Errorf("request failed with HTTP %d", statusCode)
}

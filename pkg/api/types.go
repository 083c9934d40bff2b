package api

import (
	"time"
)

// JobKind identifies what a job does when it runs.
type JobKind string

const (
	JobKindIngest   JobKind = "ingest"
	JobKindValidate JobKind = "validate"
)

// JobState is the lifecycle state of a job in the queue.
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobLeased    JobState = "LEASED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
)

// IsTerminal reports whether a job in this state will never run again.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is the queue server's record of a unit of work.
type Job struct {
	Id        string        `json:"id"`
	Queue     string        `json:"queue"`
	Owner     string        `json:"owner"`
	Kind      JobKind       `json:"kind"`
	Night     string        `json:"night,omitempty"`
	Priority  float64       `json:"priority"`
	WallTime  time.Duration `json:"wallTime"`
	State     JobState      `json:"state"`
	Error     string        `json:"error,omitempty"`
	Node      string        `json:"node,omitempty"`
	Submitted time.Time     `json:"submitted"`
	Started   time.Time     `json:"started,omitempty"`
	Finished  time.Time     `json:"finished,omitempty"`
}

// JobSubmitRequest is the payload of POST /v1/jobs.
type JobSubmitRequest struct {
	Queue    string        `json:"queue"`
	Kind     JobKind       `json:"kind"`
	Night    string        `json:"night,omitempty"`
	Priority float64       `json:"priority"`
	WallTime time.Duration `json:"wallTime,omitempty"`
}

// JobSubmitResponse is returned on successful submission.
type JobSubmitResponse struct {
	JobId string `json:"jobId"`
}

// JobListRequest filters GET /v1/jobs.
type JobListRequest struct {
	Queue string   `json:"queue,omitempty"`
	State JobState `json:"state,omitempty"`
}

// JobEvent records a single state transition, as published to the event stream.
type JobEvent struct {
	JobId   string    `json:"jobId"`
	Queue   string    `json:"queue"`
	State   JobState  `json:"state"`
	Error   string    `json:"error,omitempty"`
	Node    string    `json:"node,omitempty"`
	Created time.Time `json:"created"`
}

// ErrorResponse is the body returned for all non-2xx API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

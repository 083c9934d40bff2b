package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveproject/weaveio/internal/common/health"
	"github.com/weaveproject/weaveio/internal/queue/configuration"
	"github.com/weaveproject/weaveio/internal/queue/repository"
	"github.com/weaveproject/weaveio/pkg/api"
)

func TestSubmitJob(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "POST", "/v1/jobs", `{"kind": "ingest", "night": "20200101"}`)
		require.Equal(t, http.StatusCreated, response.Code)

		var submitted api.JobSubmitResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &submitted))
		assert.NotEmpty(t, submitted.JobId)

		job := s.getJob(t, submitted.JobId)
		assert.Equal(t, api.JobQueued, job.State)
		assert.Equal(t, api.JobKindIngest, job.Kind)
		assert.Equal(t, "20200101", job.Night)
		assert.Equal(t, "weave", job.Queue)
		assert.Equal(t, 12*time.Hour, job.WallTime)
		assert.Equal(t, "observer", job.Owner)
	})
}

func TestSubmitJob_InvalidNight(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		for _, night := range []string{"", "2020-01-01", "202001", "2020010a"} {
			response := s.do(t, "POST", "/v1/jobs", fmt.Sprintf(`{"kind": "ingest", "night": %q}`, night))
			assert.Equal(t, http.StatusBadRequest, response.Code, "night %q", night)
		}
	})
}

func TestSubmitJob_UnknownKind(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "POST", "/v1/jobs", `{"kind": "transcode"}`)
		assert.Equal(t, http.StatusBadRequest, response.Code)
	})
}

func TestSubmitJob_DuplicateNightConflict(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "POST", "/v1/jobs", `{"kind": "ingest", "night": "20200101"}`)
		require.Equal(t, http.StatusCreated, response.Code)

		response = s.do(t, "POST", "/v1/jobs", `{"kind": "ingest", "night": "20200101"}`)
		assert.Equal(t, http.StatusConflict, response.Code)
	})
}

func TestGetJob_NotFound(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "GET", "/v1/jobs/missing", "")
		assert.Equal(t, http.StatusNotFound, response.Code)
	})
}

func TestListJobs(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		require.Equal(t, http.StatusCreated, s.do(t, "POST", "/v1/jobs", `{"kind": "ingest", "night": "20200101"}`).Code)
		require.Equal(t, http.StatusCreated, s.do(t, "POST", "/v1/jobs", `{"kind": "validate"}`).Code)

		response := s.do(t, "GET", "/v1/jobs", "")
		require.Equal(t, http.StatusOK, response.Code)
		var jobs []*api.Job
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &jobs))
		assert.Len(t, jobs, 2)

		response = s.do(t, "GET", "/v1/jobs?state=QUEUED", "")
		require.Equal(t, http.StatusOK, response.Code)
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &jobs))
		assert.Len(t, jobs, 2)
	})
}

func TestCancelJob(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "POST", "/v1/jobs", `{"kind": "validate"}`)
		require.Equal(t, http.StatusCreated, response.Code)
		var submitted api.JobSubmitResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &submitted))

		response = s.do(t, "DELETE", "/v1/jobs/"+submitted.JobId, "")
		require.Equal(t, http.StatusOK, response.Code)

		job := s.getJob(t, submitted.JobId)
		assert.Equal(t, api.JobCancelled, job.State)

		// already terminal
		response = s.do(t, "DELETE", "/v1/jobs/"+submitted.JobId, "")
		assert.Equal(t, http.StatusConflict, response.Code)
	})
}

func TestJobEvents(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		response := s.do(t, "POST", "/v1/jobs", `{"kind": "validate"}`)
		require.Equal(t, http.StatusCreated, response.Code)
		var submitted api.JobSubmitResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &submitted))
		require.Equal(t, http.StatusOK, s.do(t, "DELETE", "/v1/jobs/"+submitted.JobId, "").Code)

		response = s.do(t, "GET", "/v1/jobs/"+submitted.JobId+"/events", "")
		require.Equal(t, http.StatusOK, response.Code)
		var events []*api.JobEvent
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &events))
		require.Len(t, events, 2)
		assert.Equal(t, api.JobQueued, events[0].State)
		assert.Equal(t, api.JobCancelled, events[1].State)
	})
}

func TestAuth_RejectsBadCredentials(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		request := httptest.NewRequest("GET", "/v1/jobs", nil)
		request.SetBasicAuth("observer", "wrong")
		response := httptest.NewRecorder()
		s.router.ServeHTTP(response, request)
		assert.Equal(t, http.StatusUnauthorized, response.Code)

		request = httptest.NewRequest("GET", "/v1/jobs", nil)
		response = httptest.NewRecorder()
		s.router.ServeHTTP(response, request)
		assert.Equal(t, http.StatusUnauthorized, response.Code)
	})
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	withTestServer(t, func(s *testServer) {
		request := httptest.NewRequest("GET", "/health", nil)
		response := httptest.NewRecorder()
		s.router.ServeHTTP(response, request)
		assert.Equal(t, http.StatusNoContent, response.Code)
	})
}

type testServer struct {
	router http.Handler
}

func withTestServer(t *testing.T, action func(s *testServer)) {
	config := &configuration.QueueServerConfiguration{
		HttpPort: 0,
		Auth: configuration.AuthConfig{
			Users: map[string]string{"observer": "secret"},
		},
		Queue: configuration.QueueConfig{
			DefaultQueue:    "weave",
			DefaultWallTime: 12 * time.Hour,
		},
	}
	server := New(config, repository.NewInMemoryJobRepository(), repository.NewInMemoryEventRepository(),
		health.CheckerFunc(func() error { return nil }))
	action(&testServer{router: server.Router()})
}

func (s *testServer) do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, path, nil)
	}
	request.SetBasicAuth("observer", "secret")
	response := httptest.NewRecorder()
	s.router.ServeHTTP(response, request)
	return response
}

func (s *testServer) getJob(t *testing.T, jobId string) *api.Job {
	response := s.do(t, "GET", "/v1/jobs/"+jobId, "")
	require.Equal(t, http.StatusOK, response.Code)
	job := &api.Job{}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), job))
	return job
}

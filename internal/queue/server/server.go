package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/weaveproject/weaveio/internal/common/health"
	"github.com/weaveproject/weaveio/internal/common/util"
	"github.com/weaveproject/weaveio/internal/queue/configuration"
	"github.com/weaveproject/weaveio/internal/queue/metrics"
	"github.com/weaveproject/weaveio/internal/queue/repository"
	"github.com/weaveproject/weaveio/pkg/api"
)

var nightPattern = regexp.MustCompile(`^\d{8}$`)

// Server exposes the job queue over HTTP.
type Server struct {
	config     *configuration.QueueServerConfiguration
	repository repository.JobRepository
	events     repository.EventRepository
	health     health.Checker
}

func New(
	config *configuration.QueueServerConfiguration,
	jobRepository repository.JobRepository,
	eventRepository repository.EventRepository,
	healthChecker health.Checker,
) *Server {
	return &Server{
		config:     config,
		repository: jobRepository,
		events:     eventRepository,
		health:     healthChecker,
	}
}

// Router builds the echo instance with all routes and middleware attached.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: util.NewUUID,
	}))

	e.GET("/health", s.healthCheck)

	v1 := e.Group("/v1")
	if !s.config.Auth.AnonymousAuth {
		v1.Use(middleware.BasicAuth(s.checkCredentials))
	}
	v1.POST("/jobs", s.submitJob)
	v1.GET("/jobs", s.listJobs)
	v1.GET("/jobs/:id", s.getJob)
	v1.DELETE("/jobs/:id", s.cancelJob)
	v1.GET("/jobs/:id/events", s.getJobEvents)
	return e
}

// Run serves the API until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	e := s.Router()
	errs := make(chan error, 1)
	go func() {
		log.Infof("Serving job queue API on port %d", s.config.HttpPort)
		errs <- e.Start(fmt.Sprintf(":%d", s.config.HttpPort))
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}

func (s *Server) checkCredentials(username string, password string, c echo.Context) (bool, error) {
	expected, ok := s.config.Auth.Users[username]
	if !ok {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(expected)) != 1 {
		return false, nil
	}
	c.Set("user", username)
	return true, nil
}

func (s *Server) submitJob(c echo.Context) error {
	request := &api.JobSubmitRequest{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch request.Kind {
	case api.JobKindIngest:
		if !nightPattern.MatchString(request.Night) {
			return badRequest(c, "night must be 8 digits (YYYYMMDD)")
		}
	case api.JobKindValidate:
	default:
		return badRequest(c, fmt.Sprintf("unknown job kind %q", request.Kind))
	}

	queue := request.Queue
	if queue == "" {
		queue = s.config.Queue.DefaultQueue
	}
	wallTime := request.WallTime
	if wallTime <= 0 {
		wallTime = s.config.Queue.DefaultWallTime
	}
	owner, _ := c.Get("user").(string)

	job := &api.Job{
		Id:        util.NewULID(),
		Queue:     queue,
		Owner:     owner,
		Kind:      request.Kind,
		Night:     request.Night,
		Priority:  request.Priority,
		WallTime:  wallTime,
		State:     api.JobQueued,
		Submitted: time.Now(),
	}
	if err := s.repository.SubmitJob(c.Request().Context(), job); err != nil {
		var active *repository.ErrActiveNightIngest
		if errors.As(err, &active) {
			return c.JSON(http.StatusConflict, api.ErrorResponse{Error: active.Error()})
		}
		log.WithError(err).Error("Failed to submit job")
		return internalError(c)
	}

	metrics.JobsSubmitted.WithLabelValues(job.Queue, string(job.Kind)).Inc()
	s.publishEvent(job, api.JobQueued)
	log.Infof("Submitted %s job %s to queue %s (owner %s)", job.Kind, job.Id, job.Queue, job.Owner)
	return c.JSON(http.StatusCreated, api.JobSubmitResponse{JobId: job.Id})
}

func (s *Server) getJob(c echo.Context) error {
	job, err := s.repository.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		var notFound *repository.ErrJobNotFound
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: notFound.Error()})
		}
		log.WithError(err).Error("Failed to load job")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) listJobs(c echo.Context) error {
	state := api.JobState(c.QueryParam("state"))
	jobs, err := s.repository.ListJobs(c.Request().Context(), c.QueryParam("queue"), state)
	if err != nil {
		log.WithError(err).Error("Failed to list jobs")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) cancelJob(c echo.Context) error {
	job, err := s.repository.CancelJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		var notFound *repository.ErrJobNotFound
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: notFound.Error()})
		}
		var notCancellable *repository.ErrJobNotCancellable
		if errors.As(err, &notCancellable) {
			return c.JSON(http.StatusConflict, api.ErrorResponse{Error: notCancellable.Error()})
		}
		log.WithError(err).Error("Failed to cancel job")
		return internalError(c)
	}
	s.publishEvent(job, api.JobCancelled)
	log.Infof("Cancelled job %s", job.Id)
	return c.JSON(http.StatusOK, job)
}

func (s *Server) getJobEvents(c echo.Context) error {
	jobId := c.Param("id")
	if _, err := s.repository.GetJob(c.Request().Context(), jobId); err != nil {
		var notFound *repository.ErrJobNotFound
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: notFound.Error()})
		}
		log.WithError(err).Error("Failed to load job")
		return internalError(c)
	}
	events, err := s.events.GetEvents(jobId)
	if err != nil {
		log.WithError(err).Error("Failed to load job events")
		return internalError(c)
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) healthCheck(c echo.Context) error {
	if err := s.health.Check(); err != nil {
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) publishEvent(job *api.Job, state api.JobState) {
	err := s.events.Publish(&api.JobEvent{
		JobId:   job.Id,
		Queue:   job.Queue,
		State:   state,
		Created: time.Now(),
	})
	if err != nil {
		log.WithError(err).Warnf("Failed to publish %s event for job %s", state, job.Id)
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: message})
}

func internalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
}

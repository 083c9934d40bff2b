package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type task struct {
	run      func()
	interval time.Duration
	name     string
	stop     chan struct{}
}

// BackgroundTaskManager runs periodic maintenance loops and records a latency
// histogram per task. Not threadsafe, register all tasks from one goroutine.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	wg            sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{metricsPrefix: metricsPrefix}
}

// Register starts the task immediately and then re-runs it every interval
// until StopAll is called.
func (m *BackgroundTaskManager) Register(run func(), interval time.Duration, name string) {
	t := &task{
		run:      run,
		interval: interval,
		name:     name,
		stop:     make(chan struct{}),
	}
	m.tasks = append(m.tasks, t)
	m.start(t)
}

// StopAll signals all tasks to stop and waits for in-flight runs to finish.
// Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		close(t.stop)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}

func (m *BackgroundTaskManager) start(t *task) {
	latency := promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    m.metricsPrefix + t.name + "_latency_seconds",
		Help:    "Background loop " + t.name + " latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	})
	timedRun := func() {
		start := time.Now()
		t.run()
		latency.Observe(time.Since(start).Seconds())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timedRun()
		for {
			select {
			case <-time.After(t.interval):
				timedRun()
			case <-t.stop:
				return
			}
		}
	}()
}

package repository

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/weaveproject/weaveio/pkg/api"
)

const (
	eventStreamPrefix = "JobEvents:"
	eventStreamLimit  = 1000
	eventStreamExpiry = 7 * 24 * time.Hour
)

// EventRepository records job state transitions and serves them back in order.
type EventRepository interface {
	Publish(event *api.JobEvent) error
	GetEvents(jobId string) ([]*api.JobEvent, error)
}

// RedisEventRepository keeps a capped per-job list of events in redis.
type RedisEventRepository struct {
	db redis.UniversalClient
}

func NewRedisEventRepository(db redis.UniversalClient) *RedisEventRepository {
	return &RedisEventRepository{db: db}
}

func (r *RedisEventRepository) Publish(event *api.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.WithStack(err)
	}
	key := eventStreamPrefix + event.JobId
	pipe := r.db.Pipeline()
	pipe.RPush(key, data)
	pipe.LTrim(key, -eventStreamLimit, -1)
	pipe.Expire(key, eventStreamExpiry)
	_, err = pipe.Exec()
	return errors.WithStack(err)
}

func (r *RedisEventRepository) GetEvents(jobId string) ([]*api.JobEvent, error) {
	data, err := r.db.LRange(eventStreamPrefix+jobId, 0, -1).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	events := make([]*api.JobEvent, 0, len(data))
	for _, d := range data {
		event := &api.JobEvent{}
		if err := json.Unmarshal([]byte(d), event); err != nil {
			return nil, errors.WithStack(err)
		}
		events = append(events, event)
	}
	return events, nil
}

// InMemoryEventRepository is used when no redis instance is configured.
type InMemoryEventRepository struct {
	events map[string][]*api.JobEvent
	mutex  sync.Mutex
}

func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{events: map[string][]*api.JobEvent{}}
}

func (r *InMemoryEventRepository) Publish(event *api.JobEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	copied := *event
	r.events[event.JobId] = append(r.events[event.JobId], &copied)
	if len(r.events[event.JobId]) > eventStreamLimit {
		r.events[event.JobId] = r.events[event.JobId][1:]
	}
	return nil
}

func (r *InMemoryEventRepository) GetEvents(jobId string) ([]*api.JobEvent, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	events := make([]*api.JobEvent, len(r.events[jobId]))
	copy(events, r.events[jobId])
	return events, nil
}

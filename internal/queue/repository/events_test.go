package repository

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveproject/weaveio/pkg/api"
)

func TestEventRepository_PublishAndGet(t *testing.T) {
	withEachEventRepository(t, func(r EventRepository) {
		created := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, r.Publish(&api.JobEvent{
			JobId: "job-1", Queue: "queue-a", State: api.JobQueued, Created: created,
		}))
		require.NoError(t, r.Publish(&api.JobEvent{
			JobId: "job-1", Queue: "queue-a", State: api.JobLeased, Node: "node1", Created: created.Add(time.Second),
		}))
		require.NoError(t, r.Publish(&api.JobEvent{
			JobId: "job-2", Queue: "queue-a", State: api.JobQueued, Created: created,
		}))

		events, err := r.GetEvents("job-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, api.JobQueued, events[0].State)
		assert.Equal(t, api.JobLeased, events[1].State)
		assert.Equal(t, "node1", events[1].Node)
	})
}

func TestEventRepository_UnknownJobIsEmpty(t *testing.T) {
	withEachEventRepository(t, func(r EventRepository) {
		events, err := r.GetEvents("missing")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func withEachEventRepository(t *testing.T, action func(r EventRepository)) {
	t.Run("redis", func(t *testing.T) {
		withRedisEventRepository(t, action)
	})
	t.Run("inMemory", func(t *testing.T) {
		action(NewInMemoryEventRepository())
	})
}

func withRedisEventRepository(t *testing.T, action func(r EventRepository)) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	action(NewRedisEventRepository(client))
}

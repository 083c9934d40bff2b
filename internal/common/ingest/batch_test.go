package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	defaultMaxItems   = 3
	defaultMaxTimeout = 50 * time.Millisecond
)

type resultHolder struct {
	result [][]int
	mutex  sync.Mutex
}

func (r *resultHolder) add(a []int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	batch := make([]int, len(a))
	copy(batch, a)
	r.result = append(r.result, batch)
}

func (r *resultHolder) snapshot() [][]int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.result
}

func TestBatch_MaxItems(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inputChan := make(chan int)
	result := &resultHolder{}
	batcher := NewBatcher[int](inputChan, defaultMaxItems, time.Hour, result.add)

	go batcher.Run(ctx)

	// Two full batches without any timeout expiring
	inputChan <- 1
	inputChan <- 2
	inputChan <- 3
	inputChan <- 4
	inputChan <- 5
	inputChan <- 6
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}}, result.snapshot())
}

func TestBatch_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inputChan := make(chan int)
	result := &resultHolder{}
	batcher := NewBatcher[int](inputChan, defaultMaxItems, defaultMaxTimeout, result.add)

	go batcher.Run(ctx)

	// A partial batch is flushed once the timeout expires
	inputChan <- 1
	inputChan <- 2
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, [][]int{{1, 2}}, result.snapshot())
}

func TestBatch_ClosedInputFlushes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inputChan := make(chan int)
	result := &resultHolder{}
	batcher := NewBatcher[int](inputChan, defaultMaxItems, time.Hour, result.add)

	done := make(chan struct{})
	go func() {
		batcher.Run(ctx)
		close(done)
	}()

	inputChan <- 1
	close(inputChan)
	<-done
	assert.Equal(t, [][]int{{1}}, result.snapshot())
}

package util

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

var entropy = ulid.Monotonic(NewThreadsafeRand(time.Now().UnixNano()), 0)
var m sync.Mutex

// NewULID returns a lexicographically sortable job id.
func NewULID() string {
	m.Lock()
	defer m.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

func NewUUID() string {
	return uuid.New().String()
}

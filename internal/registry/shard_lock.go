package registry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// shardLocks stripes per-IMEI write serialization across a fixed number of
// mutexes, hashed by xxhash. Distinct IMEIs share a stripe only when they
// hash to the same one; the registry-wide RWMutex, which every writer
// also takes, still protects the three index maps themselves.
type shardLocks struct {
	locks []sync.Mutex
}

const defaultShardCount = 64

func newShardLocks() *shardLocks {
	return &shardLocks{locks: make([]sync.Mutex, defaultShardCount)}
}

func (s *shardLocks) lockFor(imei string) *sync.Mutex {
	h := xxhash.Sum64String(imei)
	return &s.locks[h%uint64(len(s.locks))]
}

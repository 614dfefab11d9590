package tcpserver

import (
	"strconv"
	"sync/atomic"

	"github.com/dgryski/go-rendezvous"
)

// shardRing rendezvous-hashes a connection's IMEI onto one of a fixed
// number of logical shards, so that a device's reconnects land on the
// same shard even as other devices connect and disconnect around it.
// Each shard tracks its own live-connection count, surfaced through the
// admin health diagnostics as a per-shard load breakdown.
type shardRing struct {
	ring    *rendezvous.Ring
	counts  []int64
	numName []string
}

func newShardRing(shardCount int) *shardRing {
	if shardCount <= 0 {
		shardCount = 8
	}
	names := make([]string, shardCount)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return &shardRing{
		ring:    rendezvous.New(names, rendezvousHash),
		counts:  make([]int64, shardCount),
		numName: names,
	}
}

func rendezvousHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// shardFor returns the shard index assigned to imei.
func (r *shardRing) shardFor(imei string) int {
	name := r.ring.Lookup(imei)
	idx, _ := strconv.Atoi(name)
	return idx
}

func (r *shardRing) enter(idx int) {
	if idx < 0 || idx >= len(r.counts) {
		return
	}
	atomic.AddInt64(&r.counts[idx], 1)
}

func (r *shardRing) leave(idx int) {
	if idx < 0 || idx >= len(r.counts) {
		return
	}
	atomic.AddInt64(&r.counts[idx], -1)
}

// snapshot returns the current per-shard live-connection counts.
func (r *shardRing) snapshot() []int64 {
	out := make([]int64, len(r.counts))
	for i := range r.counts {
		out[i] = atomic.LoadInt64(&r.counts[i])
	}
	return out
}

package tcpserver

import "testing"

func TestShardFor_StableAcrossCalls(t *testing.T) {
	r := newShardRing(8)

	first := r.shardFor("351011123456789")
	for i := 0; i < 10; i++ {
		if got := r.shardFor("351011123456789"); got != first {
			t.Fatalf("shard assignment drifted: got %d, want %d", got, first)
		}
	}
}

func TestShardFor_WithinRange(t *testing.T) {
	r := newShardRing(4)
	for _, imei := range []string{"111111111111111", "222222222222222", "333333333333333", "444444444444444"} {
		idx := r.shardFor(imei)
		if idx < 0 || idx >= 4 {
			t.Fatalf("shard index %d out of range [0,4) for imei %s", idx, imei)
		}
	}
}

func TestShardRing_DefaultsToEightShards(t *testing.T) {
	r := newShardRing(0)
	if len(r.counts) != 8 {
		t.Fatalf("expected default shard count 8, got %d", len(r.counts))
	}
}

func TestEnterLeave_UpdatesSnapshot(t *testing.T) {
	r := newShardRing(4)
	r.enter(2)
	r.enter(2)
	r.enter(1)

	snap := r.snapshot()
	if snap[2] != 2 {
		t.Fatalf("expected shard 2 count 2, got %d", snap[2])
	}
	if snap[1] != 1 {
		t.Fatalf("expected shard 1 count 1, got %d", snap[1])
	}

	r.leave(2)
	snap = r.snapshot()
	if snap[2] != 1 {
		t.Fatalf("expected shard 2 count 1 after leave, got %d", snap[2])
	}
}

func TestEnterLeave_OutOfRangeIndexIgnored(t *testing.T) {
	r := newShardRing(2)
	r.enter(-1)
	r.enter(5)
	for i, c := range r.snapshot() {
		if c != 0 {
			t.Fatalf("expected shard %d count 0 after out-of-range enter, got %d", i, c)
		}
	}
}

package hosts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/state"
)

func testHost(guildID string) Host {
	return Host{
		GuildID: guildID,
		Mirror:  platform.MessageRef{ChannelID: "c-" + guildID, MessageID: "m-" + guildID},
		Chat:    platform.MessageRef{ChannelID: "t-" + guildID, MessageID: "n-" + guildID},
	}
}

func newTestBroadcaster(t *testing.T, guilds ...string) (*Broadcaster, *Registry, *fakeClock) {
	t.Helper()
	reg := NewRegistry(nil, nil)
	for _, g := range guilds {
		if err := reg.Add(context.Background(), testHost(g)); err != nil {
			t.Fatalf("Add(%s) error = %v", g, err)
		}
	}
	b := NewBroadcaster(reg, nil)
	clock := &fakeClock{t: time.Unix(5000, 0)}
	b.now = clock.Now
	return b, reg, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestBroadcastReachesAllHosts(t *testing.T) {
	b, _, _ := newTestBroadcaster(t, "guildA", "guildB", "guildC")

	var mu sync.Mutex
	seen := map[string]int{}
	b.Broadcast(context.Background(), func(_ context.Context, h Host) error {
		mu.Lock()
		seen[h.GuildID]++
		mu.Unlock()
		return nil
	})

	for _, g := range []string{"guildA", "guildB", "guildC"} {
		if seen[g] != 1 {
			t.Fatalf("host %s invoked %d times, want 1", g, seen[g])
		}
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	b, _, _ := newTestBroadcaster(t, "guildA", "guildB")

	var mu sync.Mutex
	seen := map[string]bool{}
	b.Broadcast(context.Background(), func(_ context.Context, h Host) error {
		mu.Lock()
		seen[h.GuildID] = true
		mu.Unlock()
		if h.GuildID == "guildA" {
			panic("broken consumer")
		}
		return nil
	})

	if !seen["guildB"] {
		t.Fatalf("panic in guildA delivery must not affect guildB")
	}
}

func TestBackoffSkipsAndRecovers(t *testing.T) {
	// guildA fails twice, then succeeds after the second backoff step.
	b, _, clock := newTestBroadcaster(t, "guildA")

	attempt := 0
	action := func(_ context.Context, _ Host) error {
		attempt++
		if attempt <= 2 {
			return errors.New("transient network error")
		}
		return nil
	}

	b.Broadcast(context.Background(), action)
	if attempt != 1 || b.ConsecutiveFailures("guildA") != 1 {
		t.Fatalf("after first failure: attempts=%d failures=%d", attempt, b.ConsecutiveFailures("guildA"))
	}

	// Inside the 2s window: no attempt at all.
	clock.Advance(time.Second)
	b.Broadcast(context.Background(), action)
	if attempt != 1 {
		t.Fatalf("host in backoff window was invoked")
	}

	// Past the 2s step: second attempt fails, window grows to 10s.
	clock.Advance(2 * time.Second)
	b.Broadcast(context.Background(), action)
	if attempt != 2 || b.ConsecutiveFailures("guildA") != 2 {
		t.Fatalf("after second failure: attempts=%d failures=%d", attempt, b.ConsecutiveFailures("guildA"))
	}

	clock.Advance(5 * time.Second)
	b.Broadcast(context.Background(), action)
	if attempt != 2 {
		t.Fatalf("host invoked before the 10s backoff elapsed")
	}

	// Past the 10s step: the third attempt succeeds and clears the state.
	clock.Advance(6 * time.Second)
	b.Broadcast(context.Background(), action)
	if attempt != 3 {
		t.Fatalf("attempts = %d, want 3", attempt)
	}
	if b.ConsecutiveFailures("guildA") != 0 {
		t.Fatalf("success did not clear failure state")
	}
}

func TestTargetGoneRemovesHost(t *testing.T) {
	b, reg, _ := newTestBroadcaster(t, "guildA", "guildB")

	b.Broadcast(context.Background(), func(_ context.Context, h Host) error {
		if h.GuildID == "guildA" {
			return platform.ErrTargetGone
		}
		return nil
	})

	if reg.Has("guildA") {
		t.Fatalf("guildA should be removed after target-gone failure")
	}
	if !reg.Has("guildB") {
		t.Fatalf("guildB should be unaffected")
	}

	// No further attempts for the removed host.
	var mu sync.Mutex
	invoked := map[string]bool{}
	b.Broadcast(context.Background(), func(_ context.Context, h Host) error {
		mu.Lock()
		invoked[h.GuildID] = true
		mu.Unlock()
		return nil
	})
	if invoked["guildA"] {
		t.Fatalf("removed host was invoked again")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	if err := reg.Add(ctx, testHost("guildA")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	err := reg.Add(ctx, testHost("guildA"))
	if !errors.Is(err, ErrDuplicateHost) {
		t.Fatalf("duplicate Add() = %v, want ErrDuplicateHost", err)
	}
}

func TestRegistryPersistsMutations(t *testing.T) {
	var mu sync.Mutex
	var lastRecords []state.HostRecord
	persists := 0
	reg := NewRegistry(func(_ context.Context, records []state.HostRecord) error {
		mu.Lock()
		defer mu.Unlock()
		persists++
		lastRecords = records
		return nil
	}, nil)

	ctx := context.Background()
	if err := reg.Add(ctx, testHost("guildA")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	reg.Remove(ctx, "guildA")

	mu.Lock()
	defer mu.Unlock()
	if persists != 2 {
		t.Fatalf("persist calls = %d, want 2", persists)
	}
	if len(lastRecords) != 0 {
		t.Fatalf("final persisted set = %v, want empty", lastRecords)
	}
}

func TestRegistryLoadDropsUnresolved(t *testing.T) {
	m := platform.NewMock()
	gone := testHost("dead")
	m.MarkGone(gone.Mirror)

	reg := NewRegistry(nil, nil)
	reg.Load(context.Background(), []state.HostRecord{
		testHost("alive").Record(),
		gone.Record(),
	}, m)

	if !reg.Has("alive") {
		t.Fatalf("resolvable host was dropped")
	}
	if reg.Has("dead") {
		t.Fatalf("unresolvable host survived load")
	}
}

func TestHostRecordRoundTrip(t *testing.T) {
	h := testHost("guildA")
	got := FromRecord(h.Record())
	if got != h {
		t.Fatalf("round trip mismatch: %+v != %+v", got, h)
	}
}

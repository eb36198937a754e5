package stats

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/crowdplay/internal/state"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingStatsConsumer struct {
	mu        sync.Mutex
	summaries []string
}

func (r *recordingStatsConsumer) AcceptStatistics(summary string) {
	r.mu.Lock()
	r.summaries = append(r.summaries, summary)
	r.mu.Unlock()
}

func TestCollectorCountsInputs(t *testing.T) {
	c := NewCollector(state.DefaultDocument(), nil, nil)
	c.OnInput("u1", "alice")
	c.OnInput("u1", "alice")
	c.OnInput("u2", "bob")

	summary := c.Summary()
	if !strings.Contains(summary, "Received 3 inputs by 2 users.") {
		t.Fatalf("summary missing totals: %q", summary)
	}
	if !strings.Contains(summary, "* alice - 2") {
		t.Fatalf("summary missing alice: %q", summary)
	}
	if !strings.Contains(summary, "* bob - 1") {
		t.Fatalf("summary missing bob: %q", summary)
	}
}

func TestCollectorLeaderboardOrderAndBannedFilter(t *testing.T) {
	banned := map[string]bool{"u2": true}
	c := NewCollector(state.DefaultDocument(), nil, func(id string) bool { return banned[id] })
	c.OnInput("u1", "alice")
	for i := 0; i < 5; i++ {
		c.OnInput("u2", "bob")
	}
	for i := 0; i < 3; i++ {
		c.OnInput("u3", "carol")
	}

	summary := c.Summary()
	if strings.Contains(summary, "bob") {
		t.Fatalf("banned actor in summary: %q", summary)
	}
	carol := strings.Index(summary, "carol")
	alice := strings.Index(summary, "alice")
	if carol < 0 || alice < 0 || carol > alice {
		t.Fatalf("leaderboard not sorted by count: %q", summary)
	}
	// Banned actors still count toward the totals.
	if !strings.Contains(summary, "Received 9 inputs by 3 users.") {
		t.Fatalf("totals wrong: %q", summary)
	}
}

func TestCollectorPlaytimeHeartbeat(t *testing.T) {
	clock := newFakeClock()
	c := NewCollector(state.DefaultDocument(), nil, nil)
	c.now = clock.now

	c.OnResumed()
	clock.advance(90 * time.Minute)
	c.OnPaused(context.Background())

	if got := c.Summary(); !strings.Contains(got, "Playtime: 1h 30m") {
		t.Fatalf("playtime not accrued: %q", got)
	}

	// Paused: time does not accrue.
	clock.advance(time.Hour)
	if got := c.Summary(); !strings.Contains(got, "Playtime: 1h 30m") {
		t.Fatalf("playtime accrued while paused: %q", got)
	}
}

func TestCollectorPauseIdempotent(t *testing.T) {
	clock := newFakeClock()
	var persisted int
	persist := func(context.Context, []state.ActorCount, int64) error {
		persisted++
		return nil
	}
	c := NewCollector(state.DefaultDocument(), persist, nil)
	c.now = clock.now

	c.OnResumed()
	clock.advance(10 * time.Minute)
	c.OnPaused(context.Background())
	c.OnPaused(context.Background())
	c.OnPaused(context.Background())

	if got := c.Summary(); !strings.Contains(got, "Playtime: 10m") {
		t.Fatalf("double pause accrued extra time: %q", got)
	}
	if persisted != 1 {
		t.Fatalf("persisted %d times, want 1", persisted)
	}
}

func TestCollectorResumeRestartsHeartbeat(t *testing.T) {
	clock := newFakeClock()
	c := NewCollector(state.DefaultDocument(), nil, nil)
	c.now = clock.now

	c.OnResumed()
	clock.advance(20 * time.Minute)
	c.OnPaused(context.Background())
	clock.advance(time.Hour) // gap does not count
	c.OnResumed()
	clock.advance(40 * time.Minute)

	if got := c.Summary(); !strings.Contains(got, "Playtime: 1h 0m") {
		t.Fatalf("resume did not restart heartbeat cleanly: %q", got)
	}
}

func TestCollectorLoadsPersistedState(t *testing.T) {
	doc := state.DefaultDocument()
	doc.PlaytimeMS = (2 * time.Hour).Milliseconds()
	doc.InputCounts = []state.ActorCount{
		{ActorID: "u1", Name: "alice", Count: 7},
	}
	c := NewCollector(doc, nil, nil)

	summary := c.Summary()
	if !strings.Contains(summary, "Playtime: 2h 0m") {
		t.Fatalf("persisted playtime not loaded: %q", summary)
	}
	if !strings.Contains(summary, "Received 7 inputs by 1 users.") {
		t.Fatalf("persisted counts not loaded: %q", summary)
	}
	if !strings.Contains(summary, "* alice - 7") {
		t.Fatalf("persisted leaderboard entry missing: %q", summary)
	}
}

func TestCollectorClearResets(t *testing.T) {
	clock := newFakeClock()
	c := NewCollector(state.DefaultDocument(), nil, nil)
	c.now = clock.now

	c.OnResumed()
	clock.advance(time.Hour)
	c.OnInput("u1", "alice")
	c.Clear(context.Background())

	summary := c.Summary()
	if !strings.Contains(summary, "Playtime: 0m") {
		t.Fatalf("playtime not cleared: %q", summary)
	}
	if !strings.Contains(summary, "Received 0 inputs by 0 users.") {
		t.Fatalf("counts not cleared: %q", summary)
	}
	if !c.Active() {
		t.Fatal("clear stopped an active heartbeat")
	}
}

func TestCollectorBeatPushesWhileActive(t *testing.T) {
	c := NewCollector(state.DefaultDocument(), nil, nil)
	consumer := &recordingStatsConsumer{}
	c.AddConsumer(consumer)

	// Paused: persist only, no push.
	c.beat(context.Background())
	if len(consumer.summaries) != 0 {
		t.Fatalf("beat pushed while paused: %v", consumer.summaries)
	}

	c.OnResumed()
	c.OnInput("u1", "alice")
	c.beat(context.Background())
	if len(consumer.summaries) != 1 {
		t.Fatalf("beat pushed %d summaries, want 1", len(consumer.summaries))
	}
	if !strings.Contains(consumer.summaries[0], "alice") {
		t.Fatalf("pushed summary wrong: %q", consumer.summaries[0])
	}
}

func TestCollectorExportSorted(t *testing.T) {
	c := NewCollector(state.DefaultDocument(), nil, nil)
	c.OnInput("z", "zed")
	c.OnInput("a", "ada")

	counts, _ := c.Export()
	if len(counts) != 2 || counts[0].ActorID != "a" || counts[1].ActorID != "z" {
		t.Fatalf("export not sorted by actor id: %+v", counts)
	}
}

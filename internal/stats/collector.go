// Package stats accrues playtime and per-actor input counters and pushes a
// formatted summary to its consumers on a fixed interval.
package stats

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/crowdplay/internal/state"
)

const leaderboardSize = 20

// Consumer receives the periodic statistics summary.
type Consumer interface {
	AcceptStatistics(summary string)
}

// Persister writes the counters and cumulative playtime into durable state.
type Persister func(ctx context.Context, counts []state.ActorCount, playtimeMS int64) error

// Collector is the statistics aggregate. Playtime accrues through a
// heartbeat that only advances while the session is active; pausing the
// session parks the heartbeat.
type Collector struct {
	persist Persister
	banned  func(actorID string) bool
	now     func() time.Time

	mu        sync.Mutex
	counts    map[string]int64
	names     map[string]string
	total     int64
	playtime  time.Duration
	heartbeat time.Time // zero while paused
	consumers []Consumer
}

func NewCollector(doc state.Document, persist Persister, banned func(string) bool) *Collector {
	if persist == nil {
		persist = func(context.Context, []state.ActorCount, int64) error { return nil }
	}
	if banned == nil {
		banned = func(string) bool { return false }
	}
	c := &Collector{
		persist:  persist,
		banned:   banned,
		now:      time.Now,
		counts:   make(map[string]int64),
		names:    make(map[string]string),
		playtime: time.Duration(doc.PlaytimeMS) * time.Millisecond,
	}
	for _, e := range doc.InputCounts {
		c.counts[e.ActorID] = e.Count
		c.names[e.ActorID] = e.Name
		c.total += e.Count
	}
	return c
}

// AddConsumer registers a summary consumer.
func (c *Collector) AddConsumer(consumer Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumers = append(c.consumers, consumer)
}

// OnResumed starts (or restarts) the playtime heartbeat.
func (c *Collector) OnResumed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeat = c.now()
}

// OnPaused accrues playtime since the last heartbeat and parks it. Calling it
// while already paused is a no-op.
func (c *Collector) OnPaused(ctx context.Context) {
	c.mu.Lock()
	if c.heartbeat.IsZero() {
		c.mu.Unlock()
		return
	}
	c.playtime += c.now().Sub(c.heartbeat)
	c.heartbeat = time.Time{}
	c.mu.Unlock()

	c.persistNow(ctx)
}

// OnInput counts one accepted input for the actor.
func (c *Collector) OnInput(actorID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[actorID]++
	c.names[actorID] = name
	c.total++
}

// Clear resets all statistics. Used when a new run starts.
func (c *Collector) Clear(ctx context.Context) {
	c.mu.Lock()
	c.counts = make(map[string]int64)
	c.names = make(map[string]string)
	c.total = 0
	c.playtime = 0
	if !c.heartbeat.IsZero() {
		c.heartbeat = c.now()
	}
	c.mu.Unlock()

	c.persistNow(ctx)
}

// Active reports whether the heartbeat is currently accruing.
func (c *Collector) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.heartbeat.IsZero()
}

// Run pushes a summary to all consumers on the given interval until ctx is
// cancelled. Counters are persisted on every beat; paused sessions persist
// but skip the push.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.beat(ctx)
			}
		}
	}()
}

func (c *Collector) beat(ctx context.Context) {
	c.mu.Lock()
	if !c.heartbeat.IsZero() {
		now := c.now()
		c.playtime += now.Sub(c.heartbeat)
		c.heartbeat = now
	}
	active := !c.heartbeat.IsZero()
	consumers := c.consumers
	c.mu.Unlock()

	c.persistNow(ctx)

	if !active {
		return
	}

	summary := c.Summary()
	var wg sync.WaitGroup
	for _, consumer := range consumers {
		wg.Add(1)
		go func(consumer Consumer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("stats: consumer panicked: %v", r)
				}
			}()
			consumer.AcceptStatistics(summary)
		}(consumer)
	}
	wg.Wait()
}

// Summary formats the current totals and a banned-filtered leaderboard.
func (c *Collector) Summary() string {
	c.mu.Lock()
	playtime := c.playtime
	if !c.heartbeat.IsZero() {
		playtime += c.now().Sub(c.heartbeat)
	}
	total := c.total
	type entry struct {
		name  string
		count int64
	}
	entries := make([]entry, 0, len(c.counts))
	users := len(c.counts)
	for id, count := range c.counts {
		if c.banned(id) {
			continue
		}
		entries = append(entries, entry{name: c.names[id], count: count})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	if len(entries) > leaderboardSize {
		entries = entries[:leaderboardSize]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Playtime: %s\n", formatPlaytime(playtime))
	fmt.Fprintf(&sb, "Received %d inputs by %d users.\n", total, users)
	sb.WriteString("Top players:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "* %s - %d\n", e.name, e.count)
	}
	return sb.String()
}

// Export returns the persisted form of the counters and playtime.
func (c *Collector) Export() ([]state.ActorCount, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make([]state.ActorCount, 0, len(c.counts))
	for id, count := range c.counts {
		counts = append(counts, state.ActorCount{ActorID: id, Name: c.names[id], Count: count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].ActorID < counts[j].ActorID })
	return counts, c.playtime.Milliseconds()
}

func (c *Collector) persistNow(ctx context.Context) {
	counts, playtimeMS := c.Export()
	if err := c.persist(ctx, counts, playtimeMS); err != nil {
		log.Printf("stats: persisting failed: %v", err)
	}
}

func formatPlaytime(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

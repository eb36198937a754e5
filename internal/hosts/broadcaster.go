package hosts

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/crowdplay/internal/observability"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/reliability"
)

// failureState tracks delivery health for one degraded host. It exists only
// while the host is failing and is dropped on the first success.
type failureState struct {
	consecutive    int
	retryNotBefore time.Time
}

// Broadcaster pushes an action to every registered host concurrently. A host
// inside its backoff window is skipped for the whole cycle; a host whose
// target is permanently gone is removed from the registry on the spot.
type Broadcaster struct {
	registry *Registry
	metrics  *observability.Metrics
	steps    []time.Duration
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]*failureState
}

func NewBroadcaster(registry *Registry, metrics *observability.Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  metrics,
		steps:    reliability.DefaultBackoffSteps,
		now:      time.Now,
		failures: make(map[string]*failureState),
	}
}

// Broadcast runs action once per registered host and waits for all attempts
// to finish. Failures are isolated per host; one slow or broken destination
// never affects its siblings.
func (b *Broadcaster) Broadcast(ctx context.Context, action func(ctx context.Context, h Host) error) {
	hosts := b.registry.Snapshot()
	var wg sync.WaitGroup
	for _, h := range hosts {
		if b.inBackoff(h.GuildID) {
			continue
		}
		wg.Add(1)
		go func(h Host) {
			defer wg.Done()
			b.deliver(ctx, h, action)
		}(h)
	}
	wg.Wait()
}

func (b *Broadcaster) deliver(ctx context.Context, h Host, action func(ctx context.Context, h Host) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hosts: broadcast action for %s panicked: %v", h.GuildID, r)
		}
	}()

	err := action(ctx, h)
	if err == nil {
		b.clearFailure(h.GuildID)
		return
	}

	if platform.IsTargetGone(err) {
		log.Printf("hosts: target gone for %s, removing host", h.GuildID)
		b.metrics.IncDeliveryError("gone")
		b.clearFailure(h.GuildID)
		b.registry.Remove(ctx, h.GuildID)
		return
	}

	wait := b.recordFailure(h.GuildID)
	b.metrics.IncDeliveryError("transient")
	log.Printf("hosts: delivery to %s failed, retrying in %s: %v", h.GuildID, wait, err)
}

func (b *Broadcaster) inBackoff(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fs, ok := b.failures[guildID]
	return ok && b.now().Before(fs.retryNotBefore)
}

func (b *Broadcaster) recordFailure(guildID string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	fs, ok := b.failures[guildID]
	if !ok {
		fs = &failureState{}
		b.failures[guildID] = fs
	}
	fs.consecutive++
	wait := reliability.StepBackoff(fs.consecutive, b.steps)
	fs.retryNotBefore = b.now().Add(wait)
	return wait
}

func (b *Broadcaster) clearFailure(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, guildID)
}

// ConsecutiveFailures reports the current failure streak for a guild.
func (b *Broadcaster) ConsecutiveFailures(guildID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	fs, ok := b.failures[guildID]
	if !ok {
		return 0
	}
	return fs.consecutive
}

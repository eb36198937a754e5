// Package hosts tracks the registered broadcast destinations and fans
// delivery actions out to them with per-host failure isolation and backoff.
package hosts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/antoniostano/crowdplay/internal/observability"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/state"
)

// ErrDuplicateHost rejects registering a second host for the same community.
var ErrDuplicateHost = errors.New("community already hosts the stream")

// Host is one live broadcast destination: the editable stream message and the
// chat surface carrying relayed messages and statistics.
type Host struct {
	GuildID string
	Mirror  platform.MessageRef
	Chat    platform.MessageRef
}

// Record converts the host into its durable form.
func (h Host) Record() state.HostRecord {
	return state.HostRecord{
		GuildID:         h.GuildID,
		MirrorChannelID: h.Mirror.ChannelID,
		MirrorMessageID: h.Mirror.MessageID,
		ChatChannelID:   h.Chat.ChannelID,
		ChatMessageID:   h.Chat.MessageID,
	}
}

// FromRecord rebuilds a host from its durable form.
func FromRecord(r state.HostRecord) Host {
	return Host{
		GuildID: r.GuildID,
		Mirror:  platform.MessageRef{ChannelID: r.MirrorChannelID, MessageID: r.MirrorMessageID},
		Chat:    platform.MessageRef{ChannelID: r.ChatChannelID, MessageID: r.ChatMessageID},
	}
}

// Persister writes the current host set into durable state. The orchestrator
// wires it to the state store so registry mutations survive restarts.
type Persister func(ctx context.Context, records []state.HostRecord) error

// Registry is the set of currently registered hosts, at most one per guild.
// Snapshot returns a copy so broadcast iteration never holds the lock during
// network calls.
type Registry struct {
	mu      sync.Mutex
	byGuild map[string]Host
	persist Persister
	metrics *observability.Metrics
}

func NewRegistry(persist Persister, metrics *observability.Metrics) *Registry {
	if persist == nil {
		persist = func(context.Context, []state.HostRecord) error { return nil }
	}
	return &Registry{
		byGuild: make(map[string]Host),
		persist: persist,
		metrics: metrics,
	}
}

// Load resolves persisted records against the platform and registers the
// survivors. Records that no longer resolve are dropped silently.
func (r *Registry) Load(ctx context.Context, records []state.HostRecord, m platform.Messenger) {
	r.mu.Lock()
	r.byGuild = make(map[string]Host, len(records))
	r.mu.Unlock()

	for _, rec := range records {
		host := FromRecord(rec)
		if err := m.ResolveMessage(ctx, host.Mirror); err != nil {
			log.Printf("hosts: dropping %s, mirror unresolved: %v", rec.GuildID, err)
			continue
		}
		if err := m.ResolveMessage(ctx, host.Chat); err != nil {
			log.Printf("hosts: dropping %s, chat unresolved: %v", rec.GuildID, err)
			continue
		}
		r.mu.Lock()
		r.byGuild[host.GuildID] = host
		r.mu.Unlock()
	}

	r.persistNow(ctx)
}

// Add registers a host. It fails if the guild already has one.
func (r *Registry) Add(ctx context.Context, h Host) error {
	r.mu.Lock()
	if _, exists := r.byGuild[h.GuildID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateHost, h.GuildID)
	}
	r.byGuild[h.GuildID] = h
	r.mu.Unlock()

	log.Printf("hosts: added %s (mirror %s/%s)", h.GuildID, h.Mirror.ChannelID, h.Mirror.MessageID)
	r.persistNow(ctx)
	return nil
}

// Remove unregisters the guild's host. It reports whether one existed.
func (r *Registry) Remove(ctx context.Context, guildID string) bool {
	r.mu.Lock()
	_, existed := r.byGuild[guildID]
	delete(r.byGuild, guildID)
	r.mu.Unlock()

	if existed {
		log.Printf("hosts: removed %s", guildID)
		r.persistNow(ctx)
	}
	return existed
}

// Has reports whether the guild currently hosts the stream.
func (r *Registry) Has(guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byGuild[guildID]
	return ok
}

// Get returns the guild's host.
func (r *Registry) Get(guildID string) (Host, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byGuild[guildID]
	return h, ok
}

// Snapshot returns a consistent copy of the current host set.
func (r *Registry) Snapshot() []Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Host, 0, len(r.byGuild))
	for _, h := range r.byGuild {
		out = append(out, h)
	}
	return out
}

// Records returns the durable form of the current host set.
func (r *Registry) Records() []state.HostRecord {
	hosts := r.Snapshot()
	records := make([]state.HostRecord, 0, len(hosts))
	for _, h := range hosts {
		records = append(records, h.Record())
	}
	return records
}

func (r *Registry) persistNow(ctx context.Context) {
	records := r.Records()
	r.metrics.SetActiveHosts(len(records))
	if err := r.persist(ctx, records); err != nil {
		log.Printf("hosts: persisting registry failed: %v", err)
	}
}

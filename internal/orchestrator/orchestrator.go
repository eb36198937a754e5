// Package orchestrator coordinates the shared session: one emulated console,
// one render loop, many host communities mirroring the stream. It owns the
// persisted document and is the single writer of session state.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"sync"
	"time"

	"github.com/antoniostano/crowdplay/internal/admission"
	"github.com/antoniostano/crowdplay/internal/config"
	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/hosts"
	"github.com/antoniostano/crowdplay/internal/observability"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/state"
	"github.com/antoniostano/crowdplay/internal/stats"
	"github.com/antoniostano/crowdplay/internal/stream"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrEmptyMessage   = errors.New("message must not be empty")
	ErrUnknownHost    = errors.New("community is not hosting the stream")
)

const (
	inputLockedBanner = "User input is currently locked"
	pausedBanner      = "Game is paused, press any key to continue"
	offlineBanner     = "Stream is offline"
)

// Scheduler is a background task tied to the session lifetime: started by
// StartGame, stopped by StopGame. The save reminder scheduler is one.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
}

// Orchestrator ties the session together. It consumes the engine's frames and
// batches, applies the inactivity pause, and fans deliveries out to every
// registered host through the broadcaster.
type Orchestrator struct {
	cfg       config.Config
	console   device.Console
	messenger platform.Messenger
	store     state.Store
	metrics   *observability.Metrics

	overlay     *stream.OverlayRenderer
	engine      *stream.Engine
	registry    *hosts.Registry
	broadcaster *hosts.Broadcaster
	control     *admission.Controller
	chatLimiter *admission.Limiter
	stats       *stats.Collector

	now func() time.Time

	scheduler Scheduler
	runCtx    context.Context

	mu          sync.Mutex
	doc         state.Document
	running     bool
	inputLocked bool
	paused      bool
	preview     bool
	lastInput   time.Time
	lastFrame   *image.RGBA

	clickMu sync.Mutex
}

func New(cfg config.Config, console device.Console, messenger platform.Messenger, store state.Store, doc state.Document, metrics *observability.Metrics) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		console:   console,
		messenger: messenger,
		store:     store,
		metrics:   metrics,
		now:       time.Now,
		runCtx:    context.Background(),
		doc:       doc,
	}

	o.overlay = stream.NewOverlayRenderer()
	o.engine = stream.NewEngine(console, o.overlay, metrics, cfg.FramePeriod, cfg.BatchFrames, cfg.PlaybackDelay)
	o.registry = hosts.NewRegistry(o.persistHosts, metrics)
	o.broadcaster = hosts.NewBroadcaster(o.registry, metrics)
	o.control = admission.NewController(o, admission.NewLimiter(cfg.InputCooldown, cfg.RateLimitCapacity, cfg.RateLimitTTL))
	o.chatLimiter = admission.NewLimiter(cfg.ChatCooldown, cfg.RateLimitCapacity, cfg.RateLimitTTL)
	o.stats = stats.NewCollector(doc, o.persistStats, o.Banned)

	o.engine.AddConsumer(o)
	o.stats.AddConsumer(o)
	return o
}

// Engine exposes the render loop for additional consumers (live preview,
// frame recorder).
func (o *Orchestrator) Engine() *stream.Engine { return o.engine }

// Stats exposes the statistics collector.
func (o *Orchestrator) Stats() *stats.Collector { return o.stats }

// SetScheduler attaches a session-scoped background task. Wired once at
// startup, before any session starts.
func (o *Orchestrator) SetScheduler(s Scheduler) { o.scheduler = s }

// Run starts the background loops that outlive individual sessions. The stats
// heartbeat stays ambient; its accrual is gated on the session being active.
func (o *Orchestrator) Run(ctx context.Context) {
	o.runCtx = ctx
	o.stats.Run(ctx, o.cfg.StatsInterval)
}

// Rules implementation for the admission controller.

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) InputLocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputLocked
}

func (o *Orchestrator) Privileged(actorID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.IsOwner(actorID)
}

func (o *Orchestrator) Banned(actorID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.IsBanned(actorID)
}

// StartGame brings the session online: hosts reloaded from the document, the
// console and render loop started, input locked so owners can navigate the
// boot menus first.
func (o *Orchestrator) StartGame(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	records := o.doc.Hosts
	title := o.doc.GameTitle
	o.mu.Unlock()

	o.registry.Load(ctx, records, o.messenger)

	if err := o.console.Start(ctx); err != nil {
		return fmt.Errorf("starting console: %w", err)
	}
	if err := o.engine.Start(); err != nil {
		o.console.Stop()
		return fmt.Errorf("starting stream engine: %w", err)
	}

	o.mu.Lock()
	o.running = true
	o.paused = false
	o.lastInput = o.now()
	o.mu.Unlock()

	o.stats.OnResumed()
	o.SetInputLocked(true)
	if o.scheduler != nil {
		o.scheduler.Start(o.runCtx)
	}

	if title == "" {
		title = o.console.Title()
	}
	if err := o.messenger.SetPresence(ctx, title); err != nil {
		log.Printf("orchestrator: setting presence: %v", err)
	}
	log.Printf("orchestrator: session started (%s)", title)
	return nil
}

// StopGame takes the session offline and replaces every mirror with a static
// offline image.
func (o *Orchestrator) StopGame(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotStarted
	}
	o.running = false
	o.paused = false
	o.mu.Unlock()

	if o.scheduler != nil {
		o.scheduler.Stop()
	}
	o.stats.OnPaused(ctx)

	if err := o.engine.Stop(); err != nil {
		log.Printf("orchestrator: stopping stream engine: %v", err)
	}
	if err := o.console.Stop(); err != nil {
		log.Printf("orchestrator: stopping console: %v", err)
	}

	blob, err := o.statusImage(offlineBanner)
	if err != nil {
		log.Printf("orchestrator: rendering offline image: %v", err)
	} else {
		o.broadcaster.Broadcast(ctx, func(ctx context.Context, h hosts.Host) error {
			return o.messenger.EditMessageFile(ctx, h.Mirror, "stream.png", blob)
		})
	}

	if err := o.messenger.SetPresence(ctx, ""); err != nil {
		log.Printf("orchestrator: clearing presence: %v", err)
	}
	log.Printf("orchestrator: session stopped")
	return nil
}

// SubmitInput runs one viewer input through admission and, when accepted,
// clicks the button on the console. An accepted input resumes an auto-paused
// session.
func (o *Orchestrator) SubmitInput(ctx context.Context, actor platform.Actor, button device.Button) admission.Result {
	result := o.control.Submit(actor.ID)
	o.metrics.IncInputResult(result.String())
	if result != admission.Accepted {
		return result
	}

	o.markActivity()
	o.overlay.RecordInput(actor.Name, button)
	o.stats.OnInput(actor.ID, actor.Name)

	o.clickMu.Lock()
	defer o.clickMu.Unlock()
	if err := device.Click(ctx, o.console, button, o.cfg.ClickDuration); err != nil {
		log.Printf("orchestrator: click %s interrupted: %v", button, err)
	}
	return result
}

func (o *Orchestrator) markActivity() {
	o.mu.Lock()
	wasPaused := o.paused
	o.paused = false
	o.lastInput = o.now()
	o.mu.Unlock()

	if wasPaused {
		o.stats.OnResumed()
		log.Printf("orchestrator: session resumed by input")
	}
}

// Paused reports whether the inactivity pause is active.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// SetGlobalMessage sets the banner rendered across the top of the stream. The
// empty string is rejected; use ClearGlobalMessage to remove the banner.
func (o *Orchestrator) SetGlobalMessage(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	o.engine.SetGlobalMessage(text)
	return nil
}

// ClearGlobalMessage removes the stream banner.
func (o *Orchestrator) ClearGlobalMessage() {
	o.engine.SetGlobalMessage("")
}

// SetInputLocked restricts input to owners and surfaces the lock on the
// stream banner. Unlocking clears the banner only if the lock put it there.
func (o *Orchestrator) SetInputLocked(locked bool) {
	o.mu.Lock()
	o.inputLocked = locked
	o.mu.Unlock()

	if locked {
		o.engine.SetGlobalMessage(inputLockedBanner)
	} else if o.engine.GlobalMessage() == inputLockedBanner {
		o.engine.SetGlobalMessage("")
	}
}

// AddHost registers a community: a mirror message carrying the stream and a
// pinned chat anchor whose replies are relayed across hosts.
func (o *Orchestrator) AddHost(ctx context.Context, guildID, channelID string) error {
	if o.registry.Has(guildID) {
		return hosts.ErrDuplicateHost
	}

	mirror, err := o.messenger.SendMessage(ctx, channelID, "Setting up the stream mirror...")
	if err != nil {
		return fmt.Errorf("creating mirror message: %w", err)
	}
	chat, err := o.messenger.SendMessage(ctx, channelID, "Live chat. Messages here are relayed to every community watching.")
	if err != nil {
		return fmt.Errorf("creating chat message: %w", err)
	}
	if err := o.messenger.PinMessage(ctx, chat); err != nil {
		log.Printf("orchestrator: pinning chat message for guild %s: %v", guildID, err)
	}

	return o.registry.Add(ctx, hosts.Host{GuildID: guildID, Mirror: mirror, Chat: chat})
}

// RemoveHost unregisters a community. It reports whether one was registered.
func (o *Orchestrator) RemoveHost(ctx context.Context, guildID string) bool {
	return o.registry.Remove(ctx, guildID)
}

// HasHost reports whether the community hosts the stream.
func (o *Orchestrator) HasHost(guildID string) bool {
	return o.registry.Has(guildID)
}

// SendChatMessage broadcasts an announcement into every host's chat surface
// and pins it.
func (o *Orchestrator) SendChatMessage(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	o.broadcaster.Broadcast(ctx, func(ctx context.Context, h hosts.Host) error {
		ref, err := o.messenger.SendMessage(ctx, h.Chat.ChannelID, text)
		if err != nil {
			return err
		}
		return o.messenger.PinMessage(ctx, ref)
	})
	return nil
}

// SetCommunityMessage attaches a note to one host's mirror message. Empty
// text clears it.
func (o *Orchestrator) SetCommunityMessage(ctx context.Context, guildID, text string) error {
	h, ok := o.registry.Get(guildID)
	if !ok {
		return ErrUnknownHost
	}
	var embeds []platform.Embed
	if text != "" {
		embeds = []platform.Embed{{Description: text}}
	}
	return o.messenger.EditMessageEmbeds(ctx, h.Mirror, embeds)
}

// RelayChat forwards a viewer chat line to every other host and onto the
// stream overlay, under the chat cooldown.
func (o *Orchestrator) RelayChat(ctx context.Context, ev platform.ChatEvent) {
	if ev.FromBot || ev.Content == "" {
		return
	}
	origin, ok := o.registry.Get(ev.GuildID)
	if !ok || origin.Chat.ChannelID != ev.ChannelID {
		return
	}
	if o.Banned(ev.Actor.ID) {
		return
	}
	if !o.chatLimiter.Allow(ev.Actor.ID) {
		return
	}

	o.overlay.RecordChat(ev.Actor.Name, ev.Content)

	line := fmt.Sprintf("%s: %s", ev.Actor.Name, ev.Content)
	o.broadcaster.Broadcast(ctx, func(ctx context.Context, h hosts.Host) error {
		if h.GuildID == ev.GuildID {
			return nil
		}
		_, err := o.messenger.SendMessage(ctx, h.Chat.ChannelID, line)
		return err
	})
}

// SetLocalDisplay toggles the live preview endpoint and the console audio.
func (o *Orchestrator) SetLocalDisplay(enabled, sound bool) {
	o.mu.Lock()
	o.preview = enabled
	o.mu.Unlock()
	o.console.SetMuted(!sound)
}

// PreviewEnabled reports whether the live preview may serve clients.
func (o *Orchestrator) PreviewEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.preview
}

// Document mutations. Each one rewrites the persisted document.

// AddOwner grants the user owner privileges.
func (o *Orchestrator) AddOwner(ctx context.Context, userID string) error {
	o.mu.Lock()
	if !o.doc.IsOwner(userID) {
		o.doc.Owners = append(o.doc.Owners, userID)
	}
	o.mu.Unlock()
	return o.persist(ctx)
}

// Ban adds the user to the ban list.
func (o *Orchestrator) Ban(ctx context.Context, userID string) error {
	o.mu.Lock()
	if !o.doc.IsBanned(userID) {
		o.doc.Banned = append(o.doc.Banned, userID)
	}
	o.mu.Unlock()
	return o.persist(ctx)
}

// SetGameMetadata updates one named field of the persisted document.
func (o *Orchestrator) SetGameMetadata(ctx context.Context, entity, value string) error {
	o.mu.Lock()
	switch entity {
	case "rom":
		o.doc.ROMPath = value
	case "title":
		o.doc.GameTitle = value
	case "recording-dir":
		o.doc.RecordingDir = value
	case "autosave-time":
		o.doc.AutoSaveRemindAt = value
	default:
		o.mu.Unlock()
		return fmt.Errorf("unknown metadata entity %q", entity)
	}
	o.mu.Unlock()
	return o.persist(ctx)
}

// ClearStats resets the leaderboard and playtime.
func (o *Orchestrator) ClearStats(ctx context.Context) {
	o.stats.Clear(ctx)
}

// RemindAt returns the configured save reminder time-of-day (HH:MM).
func (o *Orchestrator) RemindAt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.AutoSaveRemindAt
}

// Owners returns the owner user ids.
func (o *Orchestrator) Owners() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.doc.Owners))
	copy(out, o.doc.Owners)
	return out
}

// Document returns a snapshot of the persisted document.
func (o *Orchestrator) Document() state.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc
}

// Stream consumer: the orchestrator receives every frame and batch.

// AcceptFrame keeps the most recent frame for pause and status images.
func (o *Orchestrator) AcceptFrame(frame *image.RGBA) {
	o.mu.Lock()
	o.lastFrame = frame
	o.mu.Unlock()
}

// AcceptBatch delivers a finished GIF batch to every host mirror, unless the
// inactivity window elapsed, in which case the session pauses and a single
// still image replaces the stream.
func (o *Orchestrator) AcceptBatch(blob []byte) {
	ctx := context.Background()

	o.mu.Lock()
	if !o.running || o.paused {
		o.mu.Unlock()
		return
	}
	idle := o.now().Sub(o.lastInput)
	if idle > o.cfg.InactivityPause {
		o.paused = true
		o.mu.Unlock()
		o.pauseSession(ctx)
		return
	}
	o.mu.Unlock()

	o.broadcaster.Broadcast(ctx, func(ctx context.Context, h hosts.Host) error {
		return o.messenger.EditMessageFile(ctx, h.Mirror, "stream.gif", blob)
	})
}

func (o *Orchestrator) pauseSession(ctx context.Context) {
	log.Printf("orchestrator: no input for %s, pausing session", o.cfg.InactivityPause)
	o.stats.OnPaused(ctx)

	blob, err := o.pauseImage()
	if err != nil {
		log.Printf("orchestrator: rendering pause image: %v", err)
		return
	}
	o.broadcaster.Broadcast(ctx, func(ctx context.Context, h hosts.Host) error {
		return o.messenger.EditMessageFile(ctx, h.Mirror, "stream.png", blob)
	})
}

// Statistics consumer: the periodic summary lands as an embed on every host's
// chat anchor.
func (o *Orchestrator) AcceptStatistics(summary string) {
	embeds := []platform.Embed{{Title: "Statistics", Description: summary}}
	o.broadcaster.Broadcast(context.Background(), func(ctx context.Context, h hosts.Host) error {
		return o.messenger.EditMessageEmbeds(ctx, h.Chat, embeds)
	})
}

func (o *Orchestrator) pauseImage() ([]byte, error) {
	o.mu.Lock()
	last := o.lastFrame
	o.mu.Unlock()

	frame := image.NewRGBA(image.Rect(0, 0, stream.StreamWidth, stream.StreamHeight))
	if last != nil {
		copy(frame.Pix, last.Pix)
	}
	screenArea := image.Rect(0, 0, stream.ScreenWidth, stream.ScreenHeight)
	stream.RenderBanner(frame, pausedBanner, screenArea, stream.PlacementCenter)
	return encodePNG(frame)
}

func (o *Orchestrator) statusImage(text string) ([]byte, error) {
	frame := image.NewRGBA(image.Rect(0, 0, stream.StreamWidth, stream.StreamHeight))
	screenArea := image.Rect(0, 0, stream.ScreenWidth, stream.ScreenHeight)
	stream.RenderBanner(frame, text, screenArea, stream.PlacementCenter)
	return encodePNG(frame)
}

func encodePNG(frame image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Persistence closures handed to the registry and the stats collector: both
// write through the orchestrator's document so every mutation lands in the
// store immediately.

func (o *Orchestrator) persistHosts(ctx context.Context, records []state.HostRecord) error {
	o.mu.Lock()
	o.doc.Hosts = records
	o.mu.Unlock()
	return o.persist(ctx)
}

func (o *Orchestrator) persistStats(ctx context.Context, counts []state.ActorCount, playtimeMS int64) error {
	o.mu.Lock()
	o.doc.InputCounts = counts
	o.doc.PlaytimeMS = playtimeMS
	o.mu.Unlock()
	return o.persist(ctx)
}

func (o *Orchestrator) persist(ctx context.Context) error {
	o.mu.Lock()
	doc := o.doc
	o.mu.Unlock()
	if err := o.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("persisting state: %w", err)
	}
	return nil
}

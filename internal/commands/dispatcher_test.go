package commands

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/crowdplay/internal/autosave"
	"github.com/antoniostano/crowdplay/internal/config"
	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/orchestrator"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/state"
)

type quietConsole struct {
	mu      sync.Mutex
	started bool
	presses []device.Button
}

func (c *quietConsole) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *quietConsole) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *quietConsole) Press(b device.Button) {
	c.mu.Lock()
	c.presses = append(c.presses, b)
	c.mu.Unlock()
}

func (c *quietConsole) Release(device.Button) {}

func (c *quietConsole) Screen() image.Image {
	return image.NewRGBA(image.Rect(0, 0, device.ScreenWidth, device.ScreenHeight))
}

func (c *quietConsole) SetMuted(bool) {}
func (c *quietConsole) Title() string { return "Test" }

func (c *quietConsole) pressCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.presses)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *platform.Mock, *quietConsole) {
	t.Helper()
	cfg := config.Config{
		InputCooldown:     1500 * time.Millisecond,
		ChatCooldown:      time.Second,
		RateLimitCapacity: 1000,
		RateLimitTTL:      10 * time.Second,
		FramePeriod:       150 * time.Millisecond,
		BatchFrames:       30,
		PlaybackDelay:     220 * time.Millisecond,
		InactivityPause:   2 * time.Minute,
		StatsInterval:     time.Minute,
	}
	store := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	messenger := platform.NewMock()
	console := &quietConsole{}
	doc := state.DefaultDocument()
	doc.Owners = []string{"owner-1"}
	orch := orchestrator.New(cfg, console, messenger, store, doc, nil)
	saver := autosave.New(orch, messenger, console, 0)
	return NewDispatcher(cfg, orch, saver, messenger), messenger, console
}

func ownerEvent(sub string, opts map[string]string) platform.CommandEvent {
	return platform.CommandEvent{
		Actor:   platform.Actor{ID: "owner-1", Name: "owner"},
		Command: "owner",
		Sub:     sub,
		Options: opts,
	}
}

func TestOwnerCommandsRequireOwnership(t *testing.T) {
	d, _, console := newTestDispatcher(t)

	ev := ownerEvent("start", nil)
	ev.Actor = platform.Actor{ID: "u1", Name: "viewer"}
	if got := d.HandleCommand(context.Background(), ev); !strings.Contains(got, "owners") {
		t.Fatalf("non-owner reply = %q", got)
	}
	if console.started {
		t.Fatal("non-owner started the game")
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	d, _, console := newTestDispatcher(t)
	ctx := context.Background()

	if got := d.HandleCommand(ctx, ownerEvent("start", nil)); !strings.Contains(got, "started") {
		t.Fatalf("start reply = %q", got)
	}
	if !console.started {
		t.Fatal("console not started")
	}
	if got := d.HandleCommand(ctx, ownerEvent("start", nil)); !strings.Contains(got, "Could not start") {
		t.Fatalf("double start reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("stop", nil)); got != "Game stopped." {
		t.Fatalf("stop reply = %q", got)
	}
}

func TestMirrorLifecycle(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()
	ev := platform.CommandEvent{
		Actor:     platform.Actor{ID: "u1", Name: "mod"},
		GuildID:   "g1",
		ChannelID: "chan-1",
		Command:   "host",
		Sub:       "mirror",
	}

	if got := d.HandleCommand(ctx, ev); !strings.Contains(got, "mirrors the stream") {
		t.Fatalf("mirror reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ev); !strings.Contains(got, "already mirrors") {
		t.Fatalf("duplicate mirror reply = %q", got)
	}

	ev.Sub = "remove-mirror"
	if got := d.HandleCommand(ctx, ev); got != "Mirror removed." {
		t.Fatalf("remove reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ev); !strings.Contains(got, "does not mirror") {
		t.Fatalf("double remove reply = %q", got)
	}
}

func TestControlPadPress(t *testing.T) {
	d, _, console := newTestDispatcher(t)
	ctx := context.Background()

	// Offline presses are rejected before reaching the console.
	got := d.HandleComponent(ctx, platform.ComponentEvent{
		Actor:       platform.Actor{ID: "u1", Name: "alice"},
		ComponentID: "pad:A",
	})
	if !strings.Contains(got, "No game is running") {
		t.Fatalf("offline press reply = %q", got)
	}
	if console.pressCount() != 0 {
		t.Fatal("offline press reached the console")
	}

	d.HandleCommand(ctx, ownerEvent("start", nil))
	d.HandleCommand(ctx, ownerEvent("lock-input", map[string]string{"locked": "false"}))

	if got := d.HandleComponent(ctx, platform.ComponentEvent{
		Actor:       platform.Actor{ID: "u1", Name: "alice"},
		ComponentID: "pad:A",
	}); got != "" {
		t.Fatalf("accepted press replied %q", got)
	}
	if console.pressCount() != 1 {
		t.Fatalf("console pressed %d times, want 1", console.pressCount())
	}

	// Within the cooldown the same viewer is rejected with a reply.
	if got := d.HandleComponent(ctx, platform.ComponentEvent{
		Actor:       platform.Actor{ID: "u1", Name: "alice"},
		ComponentID: "pad:B",
	}); !strings.Contains(got, "wait a moment") {
		t.Fatalf("rate limited reply = %q", got)
	}

	if got := d.HandleComponent(ctx, platform.ComponentEvent{
		Actor:       platform.Actor{ID: "u2", Name: "bob"},
		ComponentID: "pad:NOPE",
	}); !strings.Contains(got, "does not exist") {
		t.Fatalf("unknown button reply = %q", got)
	}

	d.HandleCommand(ctx, ownerEvent("stop", nil))
}

func TestControlPadPrompt(t *testing.T) {
	d, messenger, _ := newTestDispatcher(t)
	ev := platform.CommandEvent{
		Actor:     platform.Actor{ID: "u1", Name: "mod"},
		GuildID:   "g1",
		ChannelID: "chan-1",
		Command:   "host",
		Sub:       "controls",
	}
	if got := d.HandleCommand(context.Background(), ev); got != "Control pad posted." {
		t.Fatalf("controls reply = %q", got)
	}

	msg := messenger.LastMessageIn("chan-1")
	if msg == nil || msg.Prompt == nil {
		t.Fatal("no control pad prompt posted")
	}
	total := 0
	for _, row := range msg.Prompt.ButtonRows {
		total += len(row)
	}
	if total != len(device.Buttons) {
		t.Fatalf("control pad has %d buttons, want %d", total, len(device.Buttons))
	}
}

func TestSaveDialogRoutedThroughDispatcher(t *testing.T) {
	d, messenger, _ := newTestDispatcher(t)
	ctx := context.Background()

	if got := d.HandleCommand(ctx, ownerEvent("save", nil)); !strings.Contains(got, "direct messages") {
		t.Fatalf("save reply = %q", got)
	}
	msg := messenger.LastMessageIn("dm-owner-1")
	if msg == nil || msg.Prompt == nil {
		t.Fatal("save command did not open the dialog")
	}

	id := msg.Prompt.ButtonRows[0][0].ID
	if got := d.HandleComponent(ctx, platform.ComponentEvent{ComponentID: id}); got != "" {
		t.Fatalf("dialog component replied %q", got)
	}
}

func TestMetadataAndModeration(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	if got := d.HandleCommand(ctx, ownerEvent("game-metadata", map[string]string{"entity": "title", "value": "Red"})); got != "Updated title." {
		t.Fatalf("metadata reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("game-metadata", map[string]string{"entity": "color", "value": "x"})); !strings.Contains(got, "Could not update") {
		t.Fatalf("bad entity reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("ban", map[string]string{"user": "bad-1"})); got != "User banned." {
		t.Fatalf("ban reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("ban", nil)); !strings.Contains(got, "which user") {
		t.Fatalf("empty ban reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("add-owner", map[string]string{"user": "owner-2"})); got != "Owner added." {
		t.Fatalf("add-owner reply = %q", got)
	}

	// The new owner can immediately use owner commands.
	ev := ownerEvent("clear-stats", nil)
	ev.Actor = platform.Actor{ID: "owner-2", Name: "second"}
	if got := d.HandleCommand(ctx, ev); got != "Statistics cleared." {
		t.Fatalf("new owner reply = %q", got)
	}
}

func TestGlobalMessageCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	if got := d.HandleCommand(ctx, ownerEvent("global-message", map[string]string{"text": "brb"})); got != "Stream banner set." {
		t.Fatalf("set reply = %q", got)
	}
	if got := d.HandleCommand(ctx, ownerEvent("global-message", nil)); got != "Stream banner cleared." {
		t.Fatalf("clear reply = %q", got)
	}
}

func TestDeclaredGroups(t *testing.T) {
	groups := Groups()
	if len(groups) != 2 {
		t.Fatalf("declared %d groups, want 2", len(groups))
	}
	byName := map[string]platform.CommandGroup{}
	for _, g := range groups {
		byName[g.Name] = g
	}
	if !byName["owner"].Privileged {
		t.Fatal("owner group not privileged")
	}
	if byName["host"].Privileged {
		t.Fatal("host group must not be privileged")
	}
	wantOwner := []string{
		"start", "stop", "lock-input", "local-display", "global-message",
		"chat-message", "add-owner", "game-metadata", "ban", "save",
		"clear-stats", "log-level", "create-video",
	}
	subs := map[string]bool{}
	for _, s := range byName["owner"].Subcommands {
		subs[s.Name] = true
	}
	for _, name := range wantOwner {
		if !subs[name] {
			t.Fatalf("owner subcommand %s missing", name)
		}
	}
}

// Package autosave runs the guided save dialog: a daily reminder to the
// owners, a short DM conversation locating the in-game SAVE entry, and a
// replayed button sequence that commits the save. The dialog is a resumable
// state machine driven by component activations; it never blocks waiting for
// a reply.
package autosave

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/platform"
)

const (
	componentPrefix = "autosave"

	phaseReminder = "reminder"
	phasePrepare  = "prepare"
	phaseMenu     = "menu"
	phaseConfirm  = "confirm"

	// A session whose activation is being handled. Claimed atomically with
	// the phase check so a double-click on the same prompt runs the handler
	// once.
	phaseBusy = "busy"

	// Skew past the configured time-of-day so a clock-synced restart does not
	// fire the reminder twice.
	reminderSkew = time.Minute
)

// Controller is the session control the dialog needs from the orchestrator.
type Controller interface {
	Owners() []string
	RemindAt() string
	SetInputLocked(locked bool)
	SetGlobalMessage(text string) error
	ClearGlobalMessage()
}

type session struct {
	token     string
	phase     string
	ownerID   string
	dmChannel string
}

// AutoSaver owns the active dialog sessions. Each outbound prompt carries a
// fresh correlation token; activations with a stale token or a mismatched
// phase are dropped. As a stream consumer it keeps the last rendered frame so
// each phase can show the owner what the viewers currently see.
type AutoSaver struct {
	control   Controller
	messenger platform.Messenger
	console   device.Console

	clickHold   time.Duration
	stepDelay   time.Duration
	settleShort time.Duration
	settleLong  time.Duration
	now         func() time.Time

	mu        sync.Mutex
	sessions  map[string]*session
	cancel    context.CancelFunc
	lastFrame *image.RGBA
}

func New(control Controller, messenger platform.Messenger, console device.Console, clickHold time.Duration) *AutoSaver {
	return &AutoSaver{
		control:     control,
		messenger:   messenger,
		console:     console,
		clickHold:   clickHold,
		stepDelay:   500 * time.Millisecond,
		settleShort: 3 * time.Second,
		settleLong:  6 * time.Second,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

// Start launches the daily reminder scheduler. It runs until Stop or until
// ctx is cancelled; a second Start while running is a no-op. The scheduler is
// tied to the session lifetime, so reminders never fire against a stopped
// game.
func (a *AutoSaver) Start(ctx context.Context) {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	go a.loop(ctx)
}

// Stop halts the reminder scheduler. Open dialogs are left to finish on their
// own.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *AutoSaver) loop(ctx context.Context) {
	for {
		next, err := nextReminder(a.now(), a.control.RemindAt())
		if err != nil {
			log.Printf("autosave: bad reminder time %q: %v", a.control.RemindAt(), err)
			return
		}
		timer := time.NewTimer(next.Sub(a.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.Trigger(ctx)
		}
	}
}

// nextReminder returns the next occurrence of the HH:MM time-of-day after
// now, plus the skew.
func nextReminder(now time.Time, remindAt string) (time.Time, error) {
	tod, err := time.Parse("15:04", remindAt)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour(), tod.Minute(), 0, 0, now.Location()).Add(reminderSkew)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// Stream consumer: the saver keeps the most recent composited frame for the
// per-phase snapshots.

func (a *AutoSaver) AcceptFrame(frame *image.RGBA) {
	a.mu.Lock()
	a.lastFrame = frame
	a.mu.Unlock()
}

func (a *AutoSaver) AcceptBatch([]byte) {}

// Trigger opens a reminder dialog with every owner. Also used by the manual
// save command.
func (a *AutoSaver) Trigger(ctx context.Context) {
	for _, ownerID := range a.control.Owners() {
		if err := a.remind(ctx, ownerID); err != nil {
			log.Printf("autosave: reminding %s: %v", ownerID, err)
		}
	}
}

func (a *AutoSaver) remind(ctx context.Context, ownerID string) error {
	dm, err := a.messenger.OpenDM(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("opening dm: %w", err)
	}

	s := &session{token: uuid.NewString(), phase: phaseReminder, ownerID: ownerID, dmChannel: dm}
	a.mu.Lock()
	a.sessions[s.token] = s
	a.mu.Unlock()

	a.sendSnapshot(ctx, s)
	prompt := platform.Prompt{
		Text: "Time to save the game. Start the save routine?",
		ButtonRows: [][]platform.Button{{
			{ID: a.componentID(phaseReminder, "start", s.token), Label: "Save now", Style: platform.ButtonSuccess},
			{ID: a.componentID(phaseReminder, "cancel", s.token), Label: "Not now", Style: platform.ButtonSecondary},
		}},
	}
	if _, err := a.messenger.SendPrompt(ctx, dm, prompt); err != nil {
		a.drop(s.token)
		return fmt.Errorf("sending reminder: %w", err)
	}
	return nil
}

func (a *AutoSaver) componentID(phase, value, token string) string {
	return strings.Join([]string{componentPrefix, phase, value, token}, ":")
}

// HandleComponent consumes button and select activations belonging to a save
// dialog. It reports whether the event was one of ours. The session is
// claimed under the mutex before the handler runs, so a duplicate activation
// of the same prompt fails the phase check and is dropped.
func (a *AutoSaver) HandleComponent(ctx context.Context, ev platform.ComponentEvent) bool {
	parts := strings.SplitN(ev.ComponentID, ":", 4)
	if len(parts) != 4 || parts[0] != componentPrefix {
		return false
	}
	phase, value, token := parts[1], parts[2], parts[3]

	a.mu.Lock()
	s, ok := a.sessions[token]
	if !ok || s.phase != phase {
		a.mu.Unlock()
		log.Printf("autosave: dropping stale activation %s", ev.ComponentID)
		return true
	}
	s.phase = phaseBusy
	a.mu.Unlock()

	switch phase {
	case phaseReminder:
		a.onReminder(ctx, s, value)
	case phasePrepare:
		a.onPrepare(ctx, s, value)
	case phaseMenu:
		if len(ev.Values) == 1 {
			value = ev.Values[0]
		}
		a.onMenu(ctx, s, value)
	case phaseConfirm:
		a.onConfirm(ctx, s)
	}
	return true
}

func (a *AutoSaver) onReminder(ctx context.Context, s *session, value string) {
	if value != "start" {
		// The lock was never taken here; a declined reminder must not
		// clobber an operator-set lock or banner.
		a.dismiss(ctx, s, "Okay. Run the save command whenever you are ready.")
		return
	}

	a.control.SetInputLocked(true)
	if err := a.control.SetGlobalMessage("Saving the game, input is disabled"); err != nil {
		log.Printf("autosave: setting banner: %v", err)
	}
	a.sendSnapshot(ctx, s)

	a.advance(s, phasePrepare)
	prompt := platform.Prompt{
		Text: "Input is locked. When you are ready I will open the in-game menu.",
		ButtonRows: [][]platform.Button{{
			{ID: a.componentID(phasePrepare, "ready", s.token), Label: "Ready", Style: platform.ButtonPrimary},
			{ID: a.componentID(phasePrepare, "cancel", s.token), Label: "Cancel", Style: platform.ButtonDanger},
		}},
	}
	if _, err := a.messenger.SendPrompt(ctx, s.dmChannel, prompt); err != nil {
		log.Printf("autosave: preparation prompt: %v", err)
		a.endRoutine(ctx, s, "Could not continue the save routine.")
	}
}

func (a *AutoSaver) onPrepare(ctx context.Context, s *session, value string) {
	if value != "ready" {
		a.endRoutine(ctx, s, "Save routine cancelled.")
		return
	}

	// Open the in-game menu before asking where the cursor sits.
	if err := device.Click(ctx, a.console, device.ButtonStart, a.clickHold); err != nil {
		a.endRoutine(ctx, s, "Could not open the in-game menu.")
		return
	}
	a.sendSnapshot(ctx, s)

	a.advance(s, phaseMenu)
	prompt := platform.Prompt{
		Text: "Where is the SAVE entry relative to the cursor?",
		Select: &platform.Select{
			ID: a.componentID(phaseMenu, "pick", s.token),
			Options: []platform.SelectOption{
				{Label: "3 below", Value: "-3"},
				{Label: "2 below", Value: "-2"},
				{Label: "1 below", Value: "-1"},
				{Label: "Cursor is on SAVE", Value: "0"},
				{Label: "1 above", Value: "1"},
				{Label: "2 above", Value: "2"},
				{Label: "Cancel", Value: "cancel"},
			},
		},
	}
	if _, err := a.messenger.SendPrompt(ctx, s.dmChannel, prompt); err != nil {
		log.Printf("autosave: menu prompt: %v", err)
		a.endRoutine(ctx, s, "Could not continue the save routine.")
	}
}

func (a *AutoSaver) onMenu(ctx context.Context, s *session, value string) {
	if value == "cancel" {
		a.endRoutine(ctx, s, "Save routine cancelled.")
		return
	}
	offset, err := strconv.Atoi(value)
	if err != nil {
		a.endRoutine(ctx, s, "Save routine cancelled.")
		return
	}

	if err := a.replaySave(ctx, offset); err != nil {
		a.endRoutine(ctx, s, fmt.Sprintf("Save routine failed: %v", err))
		return
	}

	if shot, err := a.snapshotPNG(); err == nil {
		if _, err := a.messenger.SendFile(ctx, s.dmChannel, "after-save.png", shot); err != nil {
			log.Printf("autosave: sending confirmation screenshot: %v", err)
		}
	}

	// Input stays locked until the owner has checked the result; a botched
	// save can still be redone by hand while the viewers are held off.
	a.advance(s, phaseConfirm)
	prompt := platform.Prompt{
		Text: "The save ran. Check the screenshot; press Done to unlock input.",
		ButtonRows: [][]platform.Button{{
			{ID: a.componentID(phaseConfirm, "done", s.token), Label: "Done", Style: platform.ButtonSuccess},
		}},
	}
	if _, err := a.messenger.SendPrompt(ctx, s.dmChannel, prompt); err != nil {
		log.Printf("autosave: confirmation prompt: %v", err)
		a.endRoutine(ctx, s, "Game saved. Input is unlocked again.")
	}
}

func (a *AutoSaver) onConfirm(ctx context.Context, s *session) {
	a.endRoutine(ctx, s, "Game saved. Input is unlocked again.")
}

// replaySave moves the cursor onto SAVE, confirms, and lets the game settle.
// Negative offsets move down, positive up.
func (a *AutoSaver) replaySave(ctx context.Context, offset int) error {
	move := device.ButtonUp
	steps := offset
	if offset < 0 {
		move = device.ButtonDown
		steps = -offset
	}
	for i := 0; i < steps; i++ {
		if err := device.Click(ctx, a.console, move, a.clickHold); err != nil {
			return err
		}
		if err := a.sleep(ctx, a.stepDelay); err != nil {
			return err
		}
	}
	if err := device.Click(ctx, a.console, device.ButtonA, a.clickHold); err != nil {
		return err
	}
	if err := a.sleep(ctx, a.settleShort); err != nil {
		return err
	}
	if err := device.Click(ctx, a.console, device.ButtonA, a.clickHold); err != nil {
		return err
	}
	return a.sleep(ctx, a.settleLong)
}

func (a *AutoSaver) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendSnapshot posts the current stream frame into the dialog so the owner
// sees what the viewers see at each step. Failures only log; the dialog goes
// on without the picture.
func (a *AutoSaver) sendSnapshot(ctx context.Context, s *session) {
	shot, err := a.snapshotPNG()
	if err != nil {
		log.Printf("autosave: rendering snapshot: %v", err)
		return
	}
	if _, err := a.messenger.SendFile(ctx, s.dmChannel, "snapshot.png", shot); err != nil {
		log.Printf("autosave: sending snapshot: %v", err)
	}
}

// snapshotPNG encodes the last composited stream frame, falling back to the
// raw console screen before the first render tick.
func (a *AutoSaver) snapshotPNG() ([]byte, error) {
	a.mu.Lock()
	frame := a.lastFrame
	a.mu.Unlock()

	var src image.Image = frame
	if frame == nil {
		src = a.console.Screen()
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *AutoSaver) advance(s *session, phase string) {
	a.mu.Lock()
	s.phase = phase
	a.mu.Unlock()
}

func (a *AutoSaver) drop(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// dismiss discards a dialog that never took the input lock. Session state is
// untouched.
func (a *AutoSaver) dismiss(ctx context.Context, s *session, farewell string) {
	a.drop(s.token)
	if _, err := a.messenger.SendMessage(ctx, s.dmChannel, farewell); err != nil {
		log.Printf("autosave: closing message: %v", err)
	}
}

// endRoutine is the single exit of every dialog past the reminder: the
// session is discarded, input unlocks, and the banner clears, no matter how
// the dialog ended.
func (a *AutoSaver) endRoutine(ctx context.Context, s *session, farewell string) {
	a.drop(s.token)
	a.control.SetInputLocked(false)
	a.control.ClearGlobalMessage()
	if _, err := a.messenger.SendMessage(ctx, s.dmChannel, farewell); err != nil {
		log.Printf("autosave: closing message: %v", err)
	}
}

// ActiveSessions reports how many dialogs are open.
func (a *AutoSaver) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/antoniostano/crowdplay/internal/admission"
	"github.com/antoniostano/crowdplay/internal/autosave"
	"github.com/antoniostano/crowdplay/internal/config"
	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/hosts"
	"github.com/antoniostano/crowdplay/internal/orchestrator"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/recorder"
)

// Dispatcher routes platform events to the session. Every handler returns the
// user-facing reply text; the transport adapter decides how to deliver it.
type Dispatcher struct {
	cfg       config.Config
	orch      *orchestrator.Orchestrator
	saver     *autosave.AutoSaver
	messenger platform.Messenger
}

func NewDispatcher(cfg config.Config, orch *orchestrator.Orchestrator, saver *autosave.AutoSaver, messenger platform.Messenger) *Dispatcher {
	return &Dispatcher{cfg: cfg, orch: orch, saver: saver, messenger: messenger}
}

// HandleCommand executes one slash command and returns the reply.
func (d *Dispatcher) HandleCommand(ctx context.Context, ev platform.CommandEvent) string {
	switch ev.Command {
	case "owner":
		if !d.orch.Privileged(ev.Actor.ID) {
			return "Only owners can do that."
		}
		return d.ownerCommand(ctx, ev)
	case "host":
		return d.hostCommand(ctx, ev)
	default:
		return "Unknown command."
	}
}

func (d *Dispatcher) ownerCommand(ctx context.Context, ev platform.CommandEvent) string {
	switch ev.Sub {
	case "start":
		if err := d.orch.StartGame(ctx); err != nil {
			return fmt.Sprintf("Could not start: %v", err)
		}
		return "Game started. Input is locked until you unlock it."
	case "stop":
		if err := d.orch.StopGame(ctx); err != nil {
			return fmt.Sprintf("Could not stop: %v", err)
		}
		return "Game stopped."
	case "lock-input":
		locked := ev.Options["locked"] == "true"
		d.orch.SetInputLocked(locked)
		if locked {
			return "Input is now restricted to owners."
		}
		return "Input is open to everyone again."
	case "local-display":
		enabled := ev.Options["enabled"] == "true"
		sound := ev.Options["sound"] == "true"
		d.orch.SetLocalDisplay(enabled, sound)
		if enabled {
			return "Live preview enabled."
		}
		return "Live preview disabled."
	case "global-message":
		text := ev.Options["text"]
		if text == "" {
			d.orch.ClearGlobalMessage()
			return "Stream banner cleared."
		}
		if err := d.orch.SetGlobalMessage(text); err != nil {
			return fmt.Sprintf("Could not set the banner: %v", err)
		}
		return "Stream banner set."
	case "chat-message":
		if err := d.orch.SendChatMessage(ctx, ev.Options["text"]); err != nil {
			return fmt.Sprintf("Could not announce: %v", err)
		}
		return "Announcement sent to every community."
	case "add-owner":
		user := ev.Options["user"]
		if user == "" {
			return "Tell me which user to promote."
		}
		if err := d.orch.AddOwner(ctx, user); err != nil {
			return fmt.Sprintf("Could not add the owner: %v", err)
		}
		return "Owner added."
	case "game-metadata":
		if err := d.orch.SetGameMetadata(ctx, ev.Options["entity"], ev.Options["value"]); err != nil {
			return fmt.Sprintf("Could not update: %v", err)
		}
		return fmt.Sprintf("Updated %s.", ev.Options["entity"])
	case "ban":
		user := ev.Options["user"]
		if user == "" {
			return "Tell me which user to ban."
		}
		if err := d.orch.Ban(ctx, user); err != nil {
			return fmt.Sprintf("Could not ban: %v", err)
		}
		return "User banned."
	case "save":
		d.saver.Trigger(ctx)
		return "Check your direct messages to run the save routine."
	case "clear-stats":
		d.orch.ClearStats(ctx)
		return "Statistics cleared."
	case "log-level":
		return setLogLevel(ev.Options["level"])
	case "create-video":
		doc := d.orch.Document()
		out, err := recorder.CreateVideo(doc.RecordingDir, ev.Options["date"], d.cfg.PlaybackDelay)
		if err != nil {
			return fmt.Sprintf("Could not create the video: %v", err)
		}
		return fmt.Sprintf("Video written to %s.", out)
	default:
		return "Unknown subcommand."
	}
}

func (d *Dispatcher) hostCommand(ctx context.Context, ev platform.CommandEvent) string {
	switch ev.Sub {
	case "mirror":
		if err := d.orch.AddHost(ctx, ev.GuildID, ev.ChannelID); err != nil {
			if errors.Is(err, hosts.ErrDuplicateHost) {
				return "This community already mirrors the stream."
			}
			return fmt.Sprintf("Could not set up the mirror: %v", err)
		}
		return "This channel now mirrors the stream."
	case "remove-mirror":
		if !d.orch.RemoveHost(ctx, ev.GuildID) {
			return "This community does not mirror the stream."
		}
		return "Mirror removed."
	case "community-message":
		if err := d.orch.SetCommunityMessage(ctx, ev.GuildID, ev.Options["text"]); err != nil {
			return fmt.Sprintf("Could not update the note: %v", err)
		}
		if ev.Options["text"] == "" {
			return "Community note cleared."
		}
		return "Community note set."
	case "controls":
		if _, err := d.messenger.SendPrompt(ctx, ev.ChannelID, ControlPad()); err != nil {
			return fmt.Sprintf("Could not post the control pad: %v", err)
		}
		return "Control pad posted."
	default:
		return "Unknown subcommand."
	}
}

// HandleComponent routes a button or select activation. Save-dialog
// components go to the dialog; control pad presses go through admission.
func (d *Dispatcher) HandleComponent(ctx context.Context, ev platform.ComponentEvent) string {
	if d.saver.HandleComponent(ctx, ev) {
		return ""
	}
	if strings.HasPrefix(ev.ComponentID, padPrefix) {
		button, err := device.ParseButton(strings.TrimPrefix(ev.ComponentID, padPrefix))
		if err != nil {
			return "That button does not exist."
		}
		return resultReply(d.orch.SubmitInput(ctx, ev.Actor, button))
	}
	return ""
}

// HandleChat forwards a chat line into the cross-community relay.
func (d *Dispatcher) HandleChat(ctx context.Context, ev platform.ChatEvent) {
	d.orch.RelayChat(ctx, ev)
}

// resultReply maps an admission decision to the user-facing reply. Accepted
// inputs stay silent.
func resultReply(r admission.Result) string {
	switch r {
	case admission.Accepted:
		return ""
	case admission.RateLimited:
		return "Easy there, wait a moment before the next press."
	case admission.LockedNonPrivileged:
		return "Input is currently locked."
	case admission.Banned:
		return "You are banned from playing."
	case admission.SessionOffline:
		return "No game is running right now."
	default:
		return "That did not work."
	}
}

func setLogLevel(level string) string {
	switch level {
	case "debug":
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		return "Log level set to debug."
	case "info":
		log.SetFlags(log.LstdFlags)
		return "Log level set to info."
	default:
		return "Unknown log level."
	}
}

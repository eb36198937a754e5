// Package commands declares the slash-command surface and dispatches
// platform events onto the orchestrator and the save dialog.
package commands

import (
	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/platform"
)

// Groups declares every command the service registers with the platform.
func Groups() []platform.CommandGroup {
	return []platform.CommandGroup{
		{
			Name:        "owner",
			Description: "Operate the shared game session",
			Privileged:  true,
			Subcommands: []platform.Subcommand{
				{Name: "start", Description: "Start the game session"},
				{Name: "stop", Description: "Stop the game session"},
				{Name: "lock-input", Description: "Restrict input to owners", Options: []platform.Option{
					{Name: "locked", Description: "Lock or unlock", Type: platform.OptionBool, Required: true},
				}},
				{Name: "local-display", Description: "Toggle the live preview", Options: []platform.Option{
					{Name: "enabled", Description: "Enable or disable", Type: platform.OptionBool, Required: true},
					{Name: "sound", Description: "Enable console audio", Type: platform.OptionBool},
				}},
				{Name: "global-message", Description: "Set or clear the stream banner", Options: []platform.Option{
					{Name: "text", Description: "Banner text, omit to clear", Type: platform.OptionString},
				}},
				{Name: "chat-message", Description: "Announce into every community chat", Options: []platform.Option{
					{Name: "text", Description: "Announcement text", Type: platform.OptionString, Required: true},
				}},
				{Name: "add-owner", Description: "Grant owner privileges", Options: []platform.Option{
					{Name: "user", Description: "User to promote", Type: platform.OptionUser, Required: true},
				}},
				{Name: "game-metadata", Description: "Update a stored game property", Options: []platform.Option{
					{Name: "entity", Description: "Property to update", Type: platform.OptionChoice, Required: true,
						Choices: []string{"rom", "title", "recording-dir", "autosave-time"}},
					{Name: "value", Description: "New value", Type: platform.OptionString, Required: true},
				}},
				{Name: "ban", Description: "Ban a user from playing", Options: []platform.Option{
					{Name: "user", Description: "User to ban", Type: platform.OptionUser, Required: true},
				}},
				{Name: "save", Description: "Start the guided save routine"},
				{Name: "clear-stats", Description: "Reset playtime and the leaderboard"},
				{Name: "log-level", Description: "Adjust log verbosity", Options: []platform.Option{
					{Name: "level", Description: "Verbosity", Type: platform.OptionChoice, Required: true,
						Choices: []string{"info", "debug"}},
				}},
				{Name: "create-video", Description: "Assemble one day of recorded frames", Options: []platform.Option{
					{Name: "date", Description: "Day to assemble (YYYY-MM-DD)", Type: platform.OptionString, Required: true},
				}},
			},
		},
		{
			Name:        "host",
			Description: "Host the stream in this community",
			Subcommands: []platform.Subcommand{
				{Name: "mirror", Description: "Mirror the stream into this channel"},
				{Name: "remove-mirror", Description: "Stop mirroring the stream here"},
				{Name: "community-message", Description: "Attach a note to this community's mirror", Options: []platform.Option{
					{Name: "text", Description: "Note text, omit to clear", Type: platform.OptionString},
				}},
				{Name: "controls", Description: "Post the control pad in this channel"},
			},
		},
	}
}

const padPrefix = "pad:"

// ControlPad is the button grid viewers click to play.
func ControlPad() platform.Prompt {
	row := func(buttons ...device.Button) []platform.Button {
		out := make([]platform.Button, 0, len(buttons))
		for _, b := range buttons {
			out = append(out, platform.Button{
				ID:    padPrefix + string(b),
				Label: b.Glyph(),
				Style: platform.ButtonSecondary,
			})
		}
		return out
	}
	return platform.Prompt{
		Text: "Press a button to play.",
		ButtonRows: [][]platform.Button{
			row(device.ButtonA, device.ButtonUp, device.ButtonB),
			row(device.ButtonLeft, device.ButtonStart, device.ButtonRight),
			row(device.ButtonSelect, device.ButtonDown),
		},
	}
}

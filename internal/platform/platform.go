// Package platform defines the neutral contract against the remote messaging
// platform. The core never imports a platform SDK; an adapter translates real
// platform events into the event types below and implements Messenger on top
// of the platform's REST transport.
package platform

import (
	"context"
	"errors"
)

// ErrTargetGone reports that the remote surface (message, channel) no longer
// exists. Delivery to it will never succeed again.
var ErrTargetGone = errors.New("platform: target no longer exists")

// IsTargetGone classifies a delivery error as permanent.
func IsTargetGone(err error) bool {
	return errors.Is(err, ErrTargetGone)
}

// MessageRef is an opaque handle to one editable remote message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Actor identifies a platform user.
type Actor struct {
	ID   string
	Name string
}

// Embed is a rich text block attached to a message.
type Embed struct {
	Title       string
	Description string
	Footer      string
	AuthorName  string
}

// ButtonStyle selects the platform rendering of an interactive button.
type ButtonStyle string

const (
	ButtonPrimary   ButtonStyle = "primary"
	ButtonSecondary ButtonStyle = "secondary"
	ButtonSuccess   ButtonStyle = "success"
	ButtonDanger    ButtonStyle = "danger"
)

// Button is one interactive button. ID is the opaque correlation string
// delivered back in the activation event.
type Button struct {
	ID       string
	Label    string
	Emoji    string
	Style    ButtonStyle
	Disabled bool
}

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label string
	Value string
	Emoji string
}

// Select is an interactive single-choice menu.
type Select struct {
	ID      string
	Options []SelectOption
}

// Prompt is a message carrying interactive components.
type Prompt struct {
	Text       string
	Embed      *Embed
	ButtonRows [][]Button
	Select     *Select
}

// Messenger is the outbound capability surface of the platform. All calls may
// fail asynchronously on the platform side; errors wrapping ErrTargetGone mean
// the destination is permanently gone.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, text string) (MessageRef, error)
	SendFile(ctx context.Context, channelID, name string, data []byte) (MessageRef, error)
	SendEmbed(ctx context.Context, channelID string, embed Embed) (MessageRef, error)
	SendPrompt(ctx context.Context, channelID string, prompt Prompt) (MessageRef, error)

	EditMessageFile(ctx context.Context, ref MessageRef, name string, data []byte) error
	EditMessageEmbeds(ctx context.Context, ref MessageRef, embeds []Embed) error

	PinMessage(ctx context.Context, ref MessageRef) error
	CreateThread(ctx context.Context, root MessageRef, title string) (string, error)
	OpenDM(ctx context.Context, userID string) (string, error)

	// ResolveMessage verifies that a persisted handle still points at a live
	// message. Used when reloading the host registry at startup.
	ResolveMessage(ctx context.Context, ref MessageRef) error

	RegisterCommands(ctx context.Context, groups []CommandGroup) error
	SetPresence(ctx context.Context, playing string) error
}

// OptionType is the declared type of a command option.
type OptionType string

const (
	OptionBool   OptionType = "bool"
	OptionString OptionType = "string"
	OptionUser   OptionType = "user"
	OptionChoice OptionType = "choice"
)

// Option declares one typed option of a subcommand.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Choices     []string
}

// Subcommand declares one slash subcommand.
type Subcommand struct {
	Name        string
	Description string
	Options     []Option
}

// CommandGroup declares a top-level command with its subcommands.
type CommandGroup struct {
	Name        string
	Description string
	Privileged  bool
	Subcommands []Subcommand
}

// CommandEvent is an incoming slash command activation.
type CommandEvent struct {
	Actor     Actor
	GuildID   string
	ChannelID string
	Command   string
	Sub       string
	Options   map[string]string
}

// ComponentEvent is an incoming button or select-menu activation. Values
// holds the selected entries for select menus.
type ComponentEvent struct {
	Actor       Actor
	GuildID     string
	ChannelID   string
	ComponentID string
	Values      []string
}

// ChatEvent is an incoming plain chat message in a host's chat surface.
type ChatEvent struct {
	Actor     Actor
	GuildID   string
	ChannelID string
	Content   string
	FromBot   bool
}

// Handler is the inbound surface the platform adapter drives. Command and
// component handlers return the reply text shown to the caller; an empty
// reply means silent acknowledgement.
type Handler interface {
	HandleCommand(ctx context.Context, ev CommandEvent) string
	HandleComponent(ctx context.Context, ev ComponentEvent) string
	HandleChat(ctx context.Context, ev ChatEvent)
}

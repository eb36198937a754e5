package state

// HostRecord is the durable handle for one broadcast destination. The live
// Host is resolved from it against the platform at startup.
type HostRecord struct {
	GuildID         string `json:"guild_id"`
	MirrorChannelID string `json:"mirror_channel_id"`
	MirrorMessageID string `json:"mirror_message_id"`
	ChatChannelID   string `json:"chat_channel_id"`
	ChatMessageID   string `json:"chat_message_id"`
}

// ActorCount is one leaderboard entry, keyed by actor id. The display name is
// snapshotted so the leaderboard stays readable without platform lookups.
type ActorCount struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	Count   int64  `json:"count"`
}

// Document is the single persisted configuration document. It is read once at
// startup and rewritten in full after every mutation.
type Document struct {
	ROMPath          string       `json:"rom_path"`
	GameTitle        string       `json:"game_title"`
	Owners           []string     `json:"owners"`
	Banned           []string     `json:"banned"`
	Hosts            []HostRecord `json:"hosts"`
	AutoSaveRemindAt string       `json:"auto_save_remind_at"`
	InputCounts      []ActorCount `json:"input_counts"`
	PlaytimeMS       int64        `json:"playtime_ms"`
	RecordingDir     string       `json:"recording_dir"`
}

// DefaultDocument is the document used when the store holds nothing yet. The
// title is left empty so the running session falls back to whatever the
// cartridge reports.
func DefaultDocument() Document {
	return Document{
		ROMPath:          "game.gb",
		AutoSaveRemindAt: "13:00",
		RecordingDir:     "recording",
	}
}

func (d Document) IsOwner(actorID string) bool {
	return contains(d.Owners, actorID)
}

func (d Document) IsBanned(actorID string) bool {
	return contains(d.Banned, actorID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

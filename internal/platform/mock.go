package platform

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage records one outbound message created through the mock.
type SentMessage struct {
	Ref       MessageRef
	ChannelID string
	Text      string
	FileName  string
	FileData  []byte
	Embed     *Embed
	Prompt    *Prompt
	Pinned    bool
}

// EditRecord records one edit of an existing message.
type EditRecord struct {
	Ref      MessageRef
	FileName string
	FileData []byte
	Embeds   []Embed
}

// Mock is an in-memory Messenger for tests and local runs. Failures are
// scripted per message handle; every other call succeeds and is recorded.
// Inbound events reach the configured Handler through the Deliver methods.
type Mock struct {
	Handler Handler

	mu     sync.Mutex
	nextID int

	Messages []SentMessage
	Edits    []EditRecord
	Presence string

	// EditErrs scripts errors for edit calls, consumed one per call.
	EditErrs map[MessageRef][]error
	// GoneRefs marks handles whose resolution and edits fail permanently.
	GoneRefs map[MessageRef]bool

	RegisteredGroups []CommandGroup
}

func NewMock() *Mock {
	return &Mock{
		EditErrs: make(map[MessageRef][]error),
		GoneRefs: make(map[MessageRef]bool),
	}
}

func (m *Mock) newRef(channelID string) MessageRef {
	m.nextID++
	return MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("msg-%d", m.nextID)}
}

// ScriptEditFailure queues an error for the next edit of ref.
func (m *Mock) ScriptEditFailure(ref MessageRef, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EditErrs[ref] = append(m.EditErrs[ref], err)
}

// MarkGone makes all future edits and resolutions of ref fail with
// ErrTargetGone.
func (m *Mock) MarkGone(ref MessageRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GoneRefs[ref] = true
}

func (m *Mock) editErr(ref MessageRef) error {
	if m.GoneRefs[ref] {
		return ErrTargetGone
	}
	queue := m.EditErrs[ref]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.EditErrs[ref] = queue[1:]
	return err
}

func (m *Mock) SendMessage(_ context.Context, channelID, text string) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.newRef(channelID)
	m.Messages = append(m.Messages, SentMessage{Ref: ref, ChannelID: channelID, Text: text})
	return ref, nil
}

func (m *Mock) SendFile(_ context.Context, channelID, name string, data []byte) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.newRef(channelID)
	m.Messages = append(m.Messages, SentMessage{Ref: ref, ChannelID: channelID, FileName: name, FileData: data})
	return ref, nil
}

func (m *Mock) SendEmbed(_ context.Context, channelID string, embed Embed) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.newRef(channelID)
	e := embed
	m.Messages = append(m.Messages, SentMessage{Ref: ref, ChannelID: channelID, Embed: &e})
	return ref, nil
}

func (m *Mock) SendPrompt(_ context.Context, channelID string, prompt Prompt) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.newRef(channelID)
	p := prompt
	m.Messages = append(m.Messages, SentMessage{Ref: ref, ChannelID: channelID, Prompt: &p})
	return ref, nil
}

func (m *Mock) EditMessageFile(_ context.Context, ref MessageRef, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editErr(ref); err != nil {
		return err
	}
	m.Edits = append(m.Edits, EditRecord{Ref: ref, FileName: name, FileData: data})
	return nil
}

func (m *Mock) EditMessageEmbeds(_ context.Context, ref MessageRef, embeds []Embed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.editErr(ref); err != nil {
		return err
	}
	m.Edits = append(m.Edits, EditRecord{Ref: ref, Embeds: embeds})
	return nil
}

func (m *Mock) PinMessage(_ context.Context, ref MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Messages {
		if m.Messages[i].Ref == ref {
			m.Messages[i].Pinned = true
		}
	}
	return nil
}

func (m *Mock) CreateThread(_ context.Context, root MessageRef, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "thread-" + root.MessageID, nil
}

func (m *Mock) OpenDM(_ context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

func (m *Mock) ResolveMessage(_ context.Context, ref MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GoneRefs[ref] {
		return ErrTargetGone
	}
	return nil
}

func (m *Mock) RegisterCommands(_ context.Context, groups []CommandGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisteredGroups = groups
	return nil
}

func (m *Mock) SetPresence(_ context.Context, playing string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Presence = playing
	return nil
}

// DeliverCommand feeds one command event into the handler, as a real adapter
// event loop would, and returns the reply.
func (m *Mock) DeliverCommand(ctx context.Context, ev CommandEvent) string {
	if m.Handler == nil {
		return ""
	}
	return m.Handler.HandleCommand(ctx, ev)
}

// DeliverComponent feeds one component activation into the handler.
func (m *Mock) DeliverComponent(ctx context.Context, ev ComponentEvent) string {
	if m.Handler == nil {
		return ""
	}
	return m.Handler.HandleComponent(ctx, ev)
}

// DeliverChat feeds one chat line into the handler.
func (m *Mock) DeliverChat(ctx context.Context, ev ChatEvent) {
	if m.Handler != nil {
		m.Handler.HandleChat(ctx, ev)
	}
}

// EditCount returns how many successful edits hit ref.
func (m *Mock) EditCount(ref MessageRef) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Edits {
		if e.Ref == ref {
			n++
		}
	}
	return n
}

// LastMessageIn returns the most recent message sent to channelID, or nil.
func (m *Mock) LastMessageIn(channelID string) *SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Messages) - 1; i >= 0; i-- {
		if m.Messages[i].ChannelID == channelID {
			msg := m.Messages[i]
			return &msg
		}
	}
	return nil
}

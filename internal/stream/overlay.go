package stream

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/antoniostano/crowdplay/internal/device"
)

const (
	maxInputEntries = 12
	maxChatEntries  = 5
	maxNameLength   = 12
	maxChatLength   = 22
)

// Entries brighter than this age render white, older ones gray.
const inputEntryFreshFor = 20 * time.Second

type inputEntry struct {
	name   string
	button device.Button
	at     time.Time
}

type chatEntry struct {
	name string
	text string
	at   time.Time
}

// OverlayRenderer composites the fixed side column: recent viewer inputs on
// top, recent cross-community chat below. Content is recorded by the
// admission and chat paths; the engine only asks for a rendering.
type OverlayRenderer struct {
	mu     sync.Mutex
	inputs []inputEntry
	chats  []chatEntry
	now    func() time.Time
}

func NewOverlayRenderer() *OverlayRenderer {
	return &OverlayRenderer{now: time.Now}
}

// RecordInput appends an accepted input to the history.
func (o *OverlayRenderer) RecordInput(name string, button device.Button) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputs = append(o.inputs, inputEntry{name: name, button: button, at: o.now()})
	if len(o.inputs) > maxInputEntries {
		o.inputs = o.inputs[len(o.inputs)-maxInputEntries:]
	}
}

// RecordChat appends a relayed chat message to the history.
func (o *OverlayRenderer) RecordChat(name, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chats = append(o.chats, chatEntry{name: name, text: text, at: o.now()})
	if len(o.chats) > maxChatEntries {
		o.chats = o.chats[len(o.chats)-maxChatEntries:]
	}
}

// Render draws the overlay column into the given area of dst.
func (o *OverlayRenderer) Render(dst draw.Image, area image.Rectangle) {
	o.mu.Lock()
	inputs := make([]inputEntry, len(o.inputs))
	copy(inputs, o.inputs)
	chats := make([]chatEntry, len(o.chats))
	copy(chats, o.chats)
	now := o.now()
	o.mu.Unlock()

	draw.Draw(dst, area, &image.Uniform{color.Black}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := font.Drawer{Dst: dst, Face: face}
	lineHeight := face.Height + 6

	y := area.Min.Y + lineHeight
	for i := len(inputs) - 1; i >= 0; i-- {
		e := inputs[i]
		if now.Sub(e.at) < inputEntryFreshFor {
			d.Src = &image.Uniform{color.White}
		} else {
			d.Src = &image.Uniform{color.Gray{Y: 128}}
		}
		d.Dot = fixed.P(area.Min.X+8, y)
		d.DrawString(e.button.Glyph())
		d.Dot = fixed.P(area.Min.X+28, y)
		d.DrawString(truncate(e.name, maxNameLength))
		y += lineHeight
		if y > area.Max.Y-lineHeight*(maxChatEntries+1) {
			break
		}
	}

	y = area.Max.Y - lineHeight*maxChatEntries
	d.Src = &image.Uniform{color.RGBA{R: 180, G: 180, B: 255, A: 255}}
	for _, e := range chats {
		d.Dot = fixed.P(area.Min.X+8, y)
		d.DrawString(truncate(e.name+": "+e.text, maxChatLength))
		y += lineHeight
	}
}

// truncate cuts s to at most max runes; slicing by bytes could split a
// multi-byte rune in a display name or chat line.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

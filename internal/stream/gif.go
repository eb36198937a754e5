package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"time"
)

// Batch accumulates frames and flushes them into one encoded animated GIF.
// Exactly one batch is open at a time; the engine replaces it on every flush.
type Batch struct {
	anim  *gif.GIF
	delay int // per-frame playback delay in 100ths of a second
}

// NewBatch opens an empty batch with the given per-frame playback delay.
func NewBatch(playbackDelay time.Duration) *Batch {
	return &Batch{
		anim:  &gif.GIF{},
		delay: int(playbackDelay / (10 * time.Millisecond)),
	}
}

// Append quantizes one frame and adds it to the sequence.
func (b *Batch) Append(frame *image.RGBA) {
	pal := image.NewPaletted(frame.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(pal, frame.Bounds(), frame, image.Point{})
	b.anim.Image = append(b.anim.Image, pal)
	b.anim.Delay = append(b.anim.Delay, b.delay)
}

// Len reports the number of appended frames.
func (b *Batch) Len() int { return len(b.anim.Image) }

// Encode closes the sequence and returns the GIF bytes.
func (b *Batch) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, b.anim); err != nil {
		return nil, fmt.Errorf("encode batch gif: %w", err)
	}
	return buf.Bytes(), nil
}

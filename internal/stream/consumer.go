// Package stream renders the shared session on a fixed cadence and fans the
// result out to every registered consumer, batching frames into animated GIFs
// for destinations that cannot keep up with single frames.
package stream

import "image"

// Stream geometry. The emulated 160x144 screen is scaled by 2.5 and a fixed
// overlay column is composited on the right.
const (
	ScaleFactor   = 2.5
	ScreenWidth   = 400
	ScreenHeight  = 360
	OverlayWidth  = 170
	OverlayHeight = ScreenHeight
	StreamWidth   = ScreenWidth + OverlayWidth
	StreamHeight  = ScreenHeight
)

// Consumer receives rendered output. AcceptFrame is called once per render
// tick with the composited frame; AcceptBatch is called once per flushed
// batch with the encoded GIF. Implementations must tolerate concurrent calls
// relative to each other but not to themselves.
type Consumer interface {
	AcceptFrame(frame *image.RGBA)
	AcceptBatch(gif []byte)
}

package device

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
)

// PatternConsole renders a deterministic moving test pattern instead of a real
// game. It is the development and test stand-in for the emulator.
type PatternConsole struct {
	mu      sync.Mutex
	running bool
	muted   bool
	tick    int
	held    map[Button]bool
	lastHit Button
}

func NewPatternConsole() *PatternConsole {
	return &PatternConsole{held: make(map[Button]bool)}
}

func (c *PatternConsole) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("console already running")
	}
	c.running = true
	return nil
}

func (c *PatternConsole) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return errors.New("console not running")
	}
	c.running = false
	return nil
}

func (c *PatternConsole) Press(b Button) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held[b] = true
	c.lastHit = b
}

func (c *PatternConsole) Release(b Button) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, b)
}

func (c *PatternConsole) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
}

func (c *PatternConsole) Title() string { return "Pattern Demo" }

// Screen renders the current pattern frame. Each call advances the animation
// by one step so consecutive frames differ even without input.
func (c *PatternConsole) Screen() image.Image {
	c.mu.Lock()
	tick := c.tick
	c.tick++
	last := c.lastHit
	held := len(c.held) > 0
	c.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	for y := 0; y < ScreenHeight; y++ {
		for x := 0; x < ScreenWidth; x++ {
			v := uint8((x + y + tick*3) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: uint8(255 - int(v)), B: uint8((tick * 5) % 256), A: 255})
		}
	}

	// A marker square tracks the last pressed button so input visibly
	// reaches the device during manual testing.
	mx, my := markerFor(last)
	size := 12
	if held {
		size = 18
	}
	for y := my; y < my+size && y < ScreenHeight; y++ {
		for x := mx; x < mx+size && x < ScreenWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func markerFor(b Button) (int, int) {
	switch b {
	case ButtonUp:
		return ScreenWidth/2 - 6, 8
	case ButtonDown:
		return ScreenWidth/2 - 6, ScreenHeight - 26
	case ButtonLeft:
		return 8, ScreenHeight/2 - 6
	case ButtonRight:
		return ScreenWidth - 26, ScreenHeight/2 - 6
	case ButtonA:
		return ScreenWidth - 40, 30
	case ButtonB:
		return 28, ScreenHeight - 44
	case ButtonStart:
		return ScreenWidth/2 - 20, ScreenHeight/2 - 6
	case ButtonSelect:
		return ScreenWidth/2 + 8, ScreenHeight/2 - 6
	default:
		return ScreenWidth/2 - 6, ScreenHeight/2 - 6
	}
}

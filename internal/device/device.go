// Package device abstracts the emulated game console. The real emulator
// binding lives outside this repository; the service only relies on the
// capability surface below.
package device

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Native resolution of the emulated screen.
const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// Button is one physical input of the console.
type Button string

const (
	ButtonA      Button = "A"
	ButtonB      Button = "B"
	ButtonUp     Button = "UP"
	ButtonDown   Button = "DOWN"
	ButtonLeft   Button = "LEFT"
	ButtonRight  Button = "RIGHT"
	ButtonStart  Button = "START"
	ButtonSelect Button = "SELECT"
)

// Buttons lists all inputs in control-pad order.
var Buttons = []Button{
	ButtonA, ButtonB, ButtonUp, ButtonDown,
	ButtonLeft, ButtonRight, ButtonStart, ButtonSelect,
}

// ParseButton maps a symbol string back to a Button.
func ParseButton(s string) (Button, error) {
	for _, b := range Buttons {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown button %q", s)
}

// Glyph returns the single-character overlay label for the button.
func (b Button) Glyph() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	case ButtonStart:
		return "+"
	case ButtonSelect:
		return "-"
	case ButtonUp:
		return "^"
	case ButtonDown:
		return "v"
	case ButtonLeft:
		return "<"
	case ButtonRight:
		return ">"
	default:
		return "?"
	}
}

// Console is the emulated device. Screen must be safe to call from the render
// loop while buttons are pressed from the input path.
type Console interface {
	Start(ctx context.Context) error
	Stop() error
	Press(b Button)
	Release(b Button)
	Screen() image.Image
	SetMuted(muted bool)
	Title() string
}

// Click presses and releases a button with the given hold time, honoring
// context cancellation during the hold.
func Click(ctx context.Context, c Console, b Button, hold time.Duration) error {
	c.Press(b)
	defer c.Release(b)
	select {
	case <-time.After(hold):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

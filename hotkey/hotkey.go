// Package hotkey delivers global Ctrl+Shift+Space presses. Recording is
// toggle-based, so only the press edge is reported.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Pressed() <-chan struct{}
}

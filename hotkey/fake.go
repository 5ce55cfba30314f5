package hotkey

// FakeHotkey stands in for a platform listener in tests. SimPress
// injects one press event.
type FakeHotkey struct {
	pressed chan struct{}
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{pressed: make(chan struct{}, 1)}
}

func (f *FakeHotkey) Register() error          { return nil }
func (f *FakeHotkey) Unregister()              { close(f.pressed) }
func (f *FakeHotkey) Pressed() <-chan struct{} { return f.pressed }

func (f *FakeHotkey) SimPress() { f.pressed <- struct{}{} }

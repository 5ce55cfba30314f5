package audio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrPickerAborted is returned when the user leaves the device picker
// without choosing (Ctrl+C or q).
var ErrPickerAborted = errors.New("device selection aborted")

// SelectDevice lists capture sources and lets the user pick one with the
// arrow keys. With zero devices it fails, with exactly one it returns
// that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, errors.New("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	render(devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		switch key(buf[:n]) {
		case keyEnter:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case keyQuit:
			fmt.Print("\r\n")
			return nil, ErrPickerAborted
		case keyUp:
			if cursor > 0 {
				cursor--
			}
		case keyDown:
			if cursor < len(devices)-1 {
				cursor++
			}
		}

		// Redraw in place.
		fmt.Printf("\x1b[%dA", len(devices)+2)
		render(devices, cursor)
	}
}

func render(devices []DeviceInfo, cursor int) {
	fmt.Print("\r\x1b[J")
	fmt.Print("Choose input device (arrows move, Enter confirms):\r\n\r\n")
	for i, d := range devices {
		tag := ""
		if IsBluetooth(d.Name) {
			tag = " \x1b[33m[bluetooth: reduced quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Printf("  \x1b[1;36m> %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Printf("    %s%s\r\n", d.Name, tag)
		}
	}
}

type pickerKey int

const (
	keyNone pickerKey = iota
	keyEnter
	keyQuit
	keyUp
	keyDown
)

func key(buf []byte) pickerKey {
	if len(buf) == 1 {
		switch buf[0] {
		case '\r':
			return keyEnter
		case 3, 'q': // Ctrl+C or q
			return keyQuit
		case 'k':
			return keyUp
		case 'j':
			return keyDown
		}
	}
	if len(buf) == 3 && buf[0] == 0x1b && buf[1] == '[' {
		switch buf[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyNone
}

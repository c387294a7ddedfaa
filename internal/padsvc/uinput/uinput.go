// Package uinput emits decoded pad state as a virtual input device through
// /dev/uinput.
package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/pospeselr/bydpad/byd"
	"github.com/pospeselr/bydpad/internal/padsvc"
)

// uinput.h
const (
	maxNameSize = 80
	absSize     = 64

	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetAbsBit  = 0x40045567
	uiSetPropBit = 0x4004556a
)

// input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03

	synReport = 0x00

	btn0          = 0x100
	btn1          = 0x101
	btn2          = 0x102
	btn3          = 0x103
	btnLeft       = 0x110
	btnRight      = 0x111
	btnToolFinger = 0x145
	btnTouch      = 0x14a

	absX = 0x00
	absY = 0x01

	propPointer = 0x00

	busI8042 = 0x11
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const defaultPath = "/dev/uinput"

// Opener creates one virtual device per attached pad.
type Opener struct {
	log  *zap.Logger
	path string
}

type OpenerOption func(*Opener)

// WithDevicePath overrides the uinput node location.
func WithDevicePath(path string) OpenerOption {
	return func(o *Opener) {
		o.path = path
	}
}

func NewOpener(log *zap.Logger, opts ...OpenerOption) *Opener {
	o := &Opener{
		log:  log,
		path: defaultPath,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Opener) OpenSink(model byd.Model) (padsvc.Sink, error) {
	return OpenDevice(o.log, o.path, model)
}

// Device is a virtual touchpad. It reports absolute position with the touch
// key, a constantly asserted finger tool key, the two physical buttons, and
// two-finger scroll pulses as presses of the four scroll buttons.
type Device struct {
	log  *zap.Logger
	file *os.File
	last byd.State
}

func OpenDevice(log *zap.Logger, path string, model byd.Model) (*Device, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := setup(file, model); err != nil {
		file.Close()
		return nil, err
	}
	return &Device{
		log:  log,
		file: file,
	}, nil
}

func setup(file *os.File, model byd.Model) error {
	fd := int(file.Fd())
	bits := []struct {
		req   uint
		value int
	}{
		{uiSetEvBit, evKey},
		{uiSetKeyBit, btnLeft},
		{uiSetKeyBit, btnRight},
		{uiSetKeyBit, btnTouch},
		{uiSetKeyBit, btnToolFinger},
		// two-finger scroll pulses arrive as the scroll button pair
		{uiSetKeyBit, btn0},
		{uiSetKeyBit, btn1},
		{uiSetKeyBit, btn2},
		{uiSetKeyBit, btn3},
		{uiSetEvBit, evAbs},
		{uiSetAbsBit, absX},
		{uiSetAbsBit, absY},
		{uiSetPropBit, propPointer},
	}
	for _, b := range bits {
		if err := unix.IoctlSetInt(fd, b.req, b.value); err != nil {
			return fmt.Errorf("ioctl %#x %#x: %w", b.req, b.value, err)
		}
	}

	dev := userDev{
		ID: inputID{
			Bustype: busI8042,
			Vendor:  0x0002,
			Product: 0x000c,
			Version: 0x0001,
		},
	}
	copy(dev.Name[:], "BYD "+model.Name+" Touchpad")
	dev.Absmin[absX] = 0
	dev.Absmax[absX] = byd.PadWidth
	dev.Absmin[absY] = 0
	dev.Absmax[absY] = byd.PadHeight

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		return fmt.Errorf("failed to encode device setup: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write device setup: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// stateEvents diffs two snapshots into the input events that move the
// device from one to the other. Keys are only written on change; the kernel
// holds their state, so the constantly-true finger indicator is asserted
// once and stays, and the decoder's pulse-then-neutral scroll snapshots
// come out as a press/release pair on the scroll buttons.
func stateEvents(last, next byd.State) []inputEvent {
	var events []inputEvent
	key := func(code uint16, was, is bool) {
		if was != is {
			events = append(events, inputEvent{Type: evKey, Code: code, Value: boolValue(is)})
		}
	}
	key(btnLeft, last.Left, next.Left)
	key(btnRight, last.Right, next.Right)
	key(btnTouch, last.Touch, next.Touch)
	key(btnToolFinger, last.FingerPresent, next.FingerPresent)
	key(btn0, last.ScrollUp, next.ScrollUp)
	key(btn1, last.ScrollDown, next.ScrollDown)
	key(btn2, last.ScrollLeft, next.ScrollLeft)
	key(btn3, last.ScrollRight, next.ScrollRight)
	if next.Touch && (next.X != last.X || !last.Touch) {
		events = append(events, inputEvent{Type: evAbs, Code: absX, Value: next.X})
	}
	if next.Touch && (next.Y != last.Y || !last.Touch) {
		events = append(events, inputEvent{Type: evAbs, Code: absY, Value: next.Y})
	}
	return events
}

// Report translates a state snapshot into input events.
func (d *Device) Report(s byd.State) {
	events := stateEvents(d.last, s)
	d.last = s
	if len(events) == 0 {
		return
	}
	events = append(events, inputEvent{Type: evSyn, Code: synReport})
	if err := d.writeEvents(events); err != nil {
		d.log.Error("Failed to write input events", zap.Error(err))
	}
}

func (d *Device) writeEvents(events []inputEvent) error {
	buf := new(bytes.Buffer)
	for _, ev := range events {
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return err
		}
	}
	_, err := d.file.Write(buf.Bytes())
	return err
}

func (d *Device) Close() error {
	if err := unix.IoctlSetInt(int(d.file.Fd()), uiDevDestroy, 0); err != nil {
		d.log.Warn("Failed to destroy device", zap.Error(err))
	}
	return d.file.Close()
}

package byd

import "fmt"

// Settings is the vendor configuration table written to the pad during
// bring-up. Zero-valued optional fields are not written. Every field is
// range-checked by Validate before any command goes on the wire.
type Settings struct {
	// Handedness: 1 right handed, 2 left handed.
	Handedness uint8 `json:"handedness"`
	// PhysicalButtons maps the physical button function: 0 enable,
	// 4 normal, 5 left button custom command, 6 right button custom
	// command, 8 disable.
	PhysicalButtons uint8 `json:"physicalButtons"`
	// Tap to click: 1 enable, 2 disable.
	Tap uint8 `json:"tap"`
	// OneFingerScroll: 1 vertical, 2 horizontal, 3 both, 4 disable.
	OneFingerScroll uint8 `json:"oneFingerScroll"`
	// EdgeMotion: 1 disable, 2 enable when dragging, 3 enable when
	// dragging and pointing.
	EdgeMotion uint8 `json:"edgeMotion"`
	// PalmCheck disregards palm presses as clicks: 0 off, 1-6 smallest to
	// largest region.
	PalmCheck uint8 `json:"palmCheck"`
	// Multitouch gestures: 1 enable, 2 disable.
	Multitouch uint8 `json:"multitouch"`
	// TwoFingerScroll: 1 vertical, 2 horizontal, 3 both, 4 disable.
	TwoFingerScroll uint8 `json:"twoFingerScroll"`
	// TwoFingerScrollFunc: 0 free scrolling, 1 free scrolling with
	// momentum, 2 edge motion, 3 momentum plus edge motion, 4 disable.
	TwoFingerScrollFunc uint8 `json:"twoFingerScrollFunc"`
	// Edge region sizes, smallest to largest: left/right 0-7, top/bottom
	// 0-9.
	LeftEdgeRegion   uint8 `json:"leftEdgeRegion"`
	TopEdgeRegion    uint8 `json:"topEdgeRegion"`
	RightEdgeRegion  uint8 `json:"rightEdgeRegion"`
	BottomEdgeRegion uint8 `json:"bottomEdgeRegion"`
	// AbsoluteMode: 0 disable, 2 enable 1-byte X/Y resolution reports.
	// The decoder depends on absolute mode being on.
	AbsoluteMode uint8 `json:"absoluteMode"`

	// Optional settings, written after the fixed table only when set.
	// A nil pointer leaves the firmware default untouched.

	// OffscreenSwipe enables the swipe gesture from off-pad to on-pad:
	// 0 disable, 1 enable.
	OffscreenSwipe *uint8 `json:"offscreenSwipe,omitempty"`
	// TapDragDelayTime: 0 disable, 1-8 least to most delay.
	TapDragDelayTime *uint8 `json:"tapDragDelayTime,omitempty"`
	// TapDrag: 1 tap and hold to drag, 2 drag with lock, 3 disable.
	TapDrag *uint8 `json:"tapDrag,omitempty"`
	// TouchSensitivity: 1-7 least to most sensitive.
	TouchSensitivity *uint8 `json:"touchSensitivity,omitempty"`
	// SlidingSpeed: 1-5 slowest to fastest.
	SlidingSpeed *uint8 `json:"slidingSpeed,omitempty"`
	// EdgeMotionSpeed: 0 control with finger pressure, 1-9 slowest to
	// fastest.
	EdgeMotionSpeed *uint8 `json:"edgeMotionSpeed,omitempty"`
}

// DefaultSettings returns the configuration applied at init: right handed,
// normal buttons, taps and one-finger scrolling off, multitouch on,
// two-finger scrolling on both axes, no edge regions, absolute mode on.
func DefaultSettings() Settings {
	return Settings{
		Handedness:          0x01,
		PhysicalButtons:     0x04,
		Tap:                 0x02,
		OneFingerScroll:     0x04,
		EdgeMotion:          0x01,
		PalmCheck:           0x00,
		Multitouch:          0x01,
		TwoFingerScroll:     0x03,
		TwoFingerScrollFunc: 0x00,
		LeftEdgeRegion:      0x00,
		TopEdgeRegion:       0x00,
		RightEdgeRegion:     0x00,
		BottomEdgeRegion:    0x00,
		AbsoluteMode:        0x02,
	}
}

// Validate range-checks every field against the values the firmware
// accepts.
func (s Settings) Validate() error {
	checks := []struct {
		name  string
		value uint8
		valid func(uint8) bool
	}{
		{"handedness", s.Handedness, oneOf(1, 2)},
		{"physicalButtons", s.PhysicalButtons, oneOf(0, 4, 5, 6, 8)},
		{"tap", s.Tap, oneOf(1, 2)},
		{"oneFingerScroll", s.OneFingerScroll, inRange(1, 4)},
		{"edgeMotion", s.EdgeMotion, inRange(1, 3)},
		{"palmCheck", s.PalmCheck, inRange(0, 6)},
		{"multitouch", s.Multitouch, oneOf(1, 2)},
		{"twoFingerScroll", s.TwoFingerScroll, inRange(1, 4)},
		{"twoFingerScrollFunc", s.TwoFingerScrollFunc, inRange(0, 4)},
		{"leftEdgeRegion", s.LeftEdgeRegion, inRange(0, 7)},
		{"topEdgeRegion", s.TopEdgeRegion, inRange(0, 9)},
		{"rightEdgeRegion", s.RightEdgeRegion, inRange(0, 7)},
		{"bottomEdgeRegion", s.BottomEdgeRegion, inRange(0, 9)},
		{"absoluteMode", s.AbsoluteMode, oneOf(0, 2)},
	}
	for _, c := range checks {
		if !c.valid(c.value) {
			return fmt.Errorf("%s: invalid value %d", c.name, c.value)
		}
	}

	optional := []struct {
		name  string
		value *uint8
		valid func(uint8) bool
	}{
		{"offscreenSwipe", s.OffscreenSwipe, inRange(0, 1)},
		{"tapDragDelayTime", s.TapDragDelayTime, inRange(0, 8)},
		{"tapDrag", s.TapDrag, inRange(1, 3)},
		{"touchSensitivity", s.TouchSensitivity, inRange(1, 7)},
		{"slidingSpeed", s.SlidingSpeed, inRange(1, 5)},
		{"edgeMotionSpeed", s.EdgeMotionSpeed, inRange(0, 9)},
	}
	for _, c := range optional {
		if c.value != nil && !c.valid(*c.value) {
			return fmt.Errorf("%s: invalid value %d", c.name, *c.value)
		}
	}
	return nil
}

type settingCommand struct {
	command byte
	value   uint8
}

// commandTable produces the (setting, value) pairs in write order. The
// fixed part replicates the vendor driver's init sequence verbatim; the
// firmware applies some settings relative to earlier ones, so the order
// must not change. Optional settings follow the fixed table.
func (s Settings) commandTable() []settingCommand {
	table := []settingCommand{
		{cmdSetHandedness, s.Handedness},
		{cmdSetPhysicalButtons, s.PhysicalButtons},
		{cmdSetTap, s.Tap},
		{cmdSetOneFingerScroll, s.OneFingerScroll},
		{cmdSetEdgeMotion, s.EdgeMotion},
		{cmdSetPalmCheck, s.PalmCheck},
		{cmdSetMultitouch, s.Multitouch},
		{cmdSetTwoFingerScroll, s.TwoFingerScroll},
		{cmdSetTwoFingerScrollFn, s.TwoFingerScrollFunc},
		{cmdSetLeftEdgeRegion, s.LeftEdgeRegion},
		{cmdSetTopEdgeRegion, s.TopEdgeRegion},
		{cmdSetRightEdgeRegion, s.RightEdgeRegion},
		{cmdSetBottomEdgeRegion, s.BottomEdgeRegion},
		{cmdSetAbsoluteMode, s.AbsoluteMode},
	}
	optional := []struct {
		command byte
		value   *uint8
	}{
		{cmdSetOffscreenSwipe, s.OffscreenSwipe},
		{cmdSetTapDragDelayTime, s.TapDragDelayTime},
		{cmdSetTapDrag, s.TapDrag},
		{cmdSetTouchSensitivity, s.TouchSensitivity},
		{cmdSetSlidingSpeed, s.SlidingSpeed},
		{cmdSetEdgeMotionSpeed, s.EdgeMotionSpeed},
	}
	for _, opt := range optional {
		if opt.value != nil {
			table = append(table, settingCommand{opt.command, *opt.value})
		}
	}
	return table
}

func oneOf(values ...uint8) func(uint8) bool {
	return func(v uint8) bool {
		for _, ok := range values {
			if v == ok {
				return true
			}
		}
		return false
	}
}

func inRange(lo, hi uint8) func(uint8) bool {
	return func(v uint8) bool {
		return v >= lo && v <= hi
	}
}

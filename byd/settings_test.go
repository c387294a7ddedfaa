package byd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"left handed", func(s *Settings) { s.Handedness = 2 }, true},
		{"handedness zero", func(s *Settings) { s.Handedness = 0 }, false},
		{"handedness out of range", func(s *Settings) { s.Handedness = 3 }, false},
		{"buttons disabled", func(s *Settings) { s.PhysicalButtons = 8 }, true},
		{"buttons invalid", func(s *Settings) { s.PhysicalButtons = 7 }, false},
		{"tap enabled", func(s *Settings) { s.Tap = 1 }, true},
		{"tap invalid", func(s *Settings) { s.Tap = 3 }, false},
		{"palm check off", func(s *Settings) { s.PalmCheck = 0 }, true},
		{"palm check max", func(s *Settings) { s.PalmCheck = 6 }, true},
		{"palm check invalid", func(s *Settings) { s.PalmCheck = 7 }, false},
		{"left edge max", func(s *Settings) { s.LeftEdgeRegion = 7 }, true},
		{"left edge invalid", func(s *Settings) { s.LeftEdgeRegion = 8 }, false},
		{"top edge max", func(s *Settings) { s.TopEdgeRegion = 9 }, true},
		{"top edge invalid", func(s *Settings) { s.TopEdgeRegion = 10 }, false},
		{"absolute mode off", func(s *Settings) { s.AbsoluteMode = 0 }, true},
		{"absolute mode invalid", func(s *Settings) { s.AbsoluteMode = 1 }, false},
		{"scroll func momentum", func(s *Settings) { s.TwoFingerScrollFunc = 1 }, true},
		{"scroll func invalid", func(s *Settings) { s.TwoFingerScrollFunc = 5 }, false},
		{"sensitivity valid", func(s *Settings) { v := uint8(7); s.TouchSensitivity = &v }, true},
		{"sensitivity zero", func(s *Settings) { v := uint8(0); s.TouchSensitivity = &v }, false},
		{"sliding speed invalid", func(s *Settings) { v := uint8(6); s.SlidingSpeed = &v }, false},
		{"tap drag delay max", func(s *Settings) { v := uint8(8); s.TapDragDelayTime = &v }, true},
		{"tap drag delay invalid", func(s *Settings) { v := uint8(9); s.TapDragDelayTime = &v }, false},
		{"edge motion speed pressure", func(s *Settings) { v := uint8(0); s.EdgeMotionSpeed = &v }, true},
		{"offscreen swipe invalid", func(s *Settings) { v := uint8(2); s.OffscreenSwipe = &v }, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := DefaultSettings()
			test.mutate(&s)
			err := s.Validate()
			if test.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCommandTableOrder(t *testing.T) {
	table := DefaultSettings().commandTable()
	require.Len(t, table, 14)

	wantOrder := []byte{
		cmdSetHandedness,
		cmdSetPhysicalButtons,
		cmdSetTap,
		cmdSetOneFingerScroll,
		cmdSetEdgeMotion,
		cmdSetPalmCheck,
		cmdSetMultitouch,
		cmdSetTwoFingerScroll,
		cmdSetTwoFingerScrollFn,
		cmdSetLeftEdgeRegion,
		cmdSetTopEdgeRegion,
		cmdSetRightEdgeRegion,
		cmdSetBottomEdgeRegion,
		cmdSetAbsoluteMode,
	}
	for i, cmd := range wantOrder {
		assert.Equal(t, cmd, table[i].command, "index %d", i)
	}
}

func TestCommandTableValues(t *testing.T) {
	table := DefaultSettings().commandTable()
	values := map[byte]uint8{}
	for _, sc := range table {
		values[sc.command] = sc.value
	}
	assert.Equal(t, uint8(0x01), values[cmdSetHandedness])
	assert.Equal(t, uint8(0x04), values[cmdSetPhysicalButtons])
	assert.Equal(t, uint8(0x02), values[cmdSetTap])
	assert.Equal(t, uint8(0x04), values[cmdSetOneFingerScroll])
	assert.Equal(t, uint8(0x01), values[cmdSetEdgeMotion])
	assert.Equal(t, uint8(0x00), values[cmdSetPalmCheck])
	assert.Equal(t, uint8(0x01), values[cmdSetMultitouch])
	assert.Equal(t, uint8(0x03), values[cmdSetTwoFingerScroll])
	assert.Equal(t, uint8(0x00), values[cmdSetTwoFingerScrollFn])
	assert.Equal(t, uint8(0x02), values[cmdSetAbsoluteMode])
}

func TestCommandTableOptional(t *testing.T) {
	s := DefaultSettings()
	drag := uint8(2)
	speed := uint8(3)
	s.TapDrag = &drag
	s.SlidingSpeed = &speed

	table := s.commandTable()
	require.Len(t, table, 16)
	assert.Equal(t, settingCommand{cmdSetTapDrag, 2}, table[14])
	assert.Equal(t, settingCommand{cmdSetSlidingSpeed, 3}, table[15])
}

package byd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketType(t *testing.T) {
	assert.Equal(t, PacketAbsolute, Packet{0x00, 0x80, 0x40, 0xf8}.Type())
	assert.Equal(t, PacketRelative, Packet{0x01, 0x05, 0x00, 0x00}.Type())
	assert.Equal(t, PacketTwoFingerUp, Packet{0x00, 0x00, 0x00, 0xd5}.Type())

	// classification is total: arbitrary trailing bytes map to a type
	for b := 0; b < 256; b++ {
		p := Packet{0x00, 0x00, 0x00, byte(b)}
		assert.Equal(t, PacketType(b), p.Type())
	}
}

func TestPacketButtons(t *testing.T) {
	tests := []struct {
		b0          byte
		left, right bool
	}{
		{0x00, false, false},
		{0x01, true, false},
		{0x02, false, true},
		{0x03, true, true},
		{0xf0, false, false},
	}
	for _, test := range tests {
		left, right := Packet{test.b0, 0, 0, 0}.Buttons()
		assert.Equal(t, test.left, left, "b0=%02x", test.b0)
		assert.Equal(t, test.right, right, "b0=%02x", test.b0)
	}
}

func TestAbsoluteScaling(t *testing.T) {
	for raw := 0; raw < 256; raw++ {
		p := Packet{0x00, byte(raw), byte(raw), 0xf8}
		assert.Equal(t, int32(raw)*(PadWidth/256), p.AbsX())
		assert.Equal(t, int32(255-raw)*(PadHeight/256), p.AbsY())
	}

	// corners of the coordinate space
	assert.Equal(t, int32(0), Packet{0, 0, 255, 0xf8}.AbsX())
	assert.Equal(t, int32(0), Packet{0, 0, 255, 0xf8}.AbsY())
	assert.Equal(t, int32(255*44), Packet{0, 255, 0, 0xf8}.AbsX())
	assert.Equal(t, int32(255*26), Packet{0, 255, 0, 0xf8}.AbsY())
}

func TestRelativeRoundTrip(t *testing.T) {
	// -256 is not representable: a zero magnitude byte always decodes as
	// no motion, whatever the sign bit says.
	for dx := int16(-255); dx <= 255; dx++ {
		p := EncodeRelative(dx, 0, false, false)
		require.Equal(t, dx, p.RelX(), "dx=%d", dx)
		require.Equal(t, int16(0), p.RelY(), "dx=%d", dx)
	}
	for dy := int16(-255); dy <= 255; dy++ {
		p := EncodeRelative(0, dy, false, false)
		require.Equal(t, dy, p.RelY(), "dy=%d", dy)
		require.Equal(t, int16(0), p.RelX(), "dy=%d", dy)
	}
}

func TestRelativeZeroMagnitude(t *testing.T) {
	// sign bits without magnitude mean no motion
	p := Packet{0x30, 0x00, 0x00, 0x00}
	assert.Equal(t, int16(0), p.RelX())
	assert.Equal(t, int16(0), p.RelY())
}

func TestRelativeKnownVectors(t *testing.T) {
	tests := []struct {
		packet Packet
		dx, dy int16
	}{
		{Packet{0x00, 0x05, 0x00, 0x00}, 5, 0},
		{Packet{0x10, 0xfb, 0x00, 0x00}, -5, 0},
		{Packet{0x20, 0x00, 0xfb, 0x00}, 0, 5},
		{Packet{0x00, 0x00, 0x05, 0x00}, 0, -5},
		{Packet{0x00, 0xff, 0x00, 0x00}, 255, 0},
		{Packet{0x10, 0x01, 0x00, 0x00}, -255, 0},
	}
	for _, test := range tests {
		assert.Equal(t, test.dx, test.packet.RelX(), "packet=%x", test.packet)
		assert.Equal(t, test.dy, test.packet.RelY(), "packet=%x", test.packet)
	}
}

func TestEncodeRelativeButtons(t *testing.T) {
	p := EncodeRelative(0, 0, true, true)
	left, right := p.Buttons()
	assert.True(t, left)
	assert.True(t, right)
}

func TestCommandEncoding(t *testing.T) {
	assert.Equal(t, byte(0xe8), CmdSetResolution.Byte())
	assert.Equal(t, 1, CmdSetResolution.SendBytes())
	assert.Equal(t, 0, CmdSetResolution.ReceiveBytes())

	assert.Equal(t, 3, CmdGetInfo.ReceiveBytes())
	assert.Equal(t, 2, CmdGetID.ReceiveBytes())
	assert.Equal(t, 2, CmdReset.ReceiveBytes())

	pair := PairCommand(0xe2)
	assert.Equal(t, byte(0xe2), pair.Byte())
	assert.Equal(t, 1, pair.SendBytes())
	assert.Equal(t, 0, pair.ReceiveBytes())

	pairR := PairCommandR(4, 0xe0)
	assert.Equal(t, byte(0xe0), pairR.Byte())
	assert.Equal(t, 1, pairR.SendBytes())
	assert.Equal(t, 4, pairR.ReceiveBytes())
}

func TestFramer(t *testing.T) {
	var f Framer
	var frames []Packet
	stream := []byte{0x00, 0x80, 0x40, 0xf8, 0x01, 0x05, 0x00, 0x00}
	for _, b := range stream {
		if p, ok := f.Push(b); ok {
			frames = append(frames, p)
		}
	}
	require.Len(t, frames, 2)
	assert.Equal(t, Packet{0x00, 0x80, 0x40, 0xf8}, frames[0])
	assert.Equal(t, Packet{0x01, 0x05, 0x00, 0x00}, frames[1])
}

func TestFramerReset(t *testing.T) {
	var f Framer
	f.Push(0x01)
	f.Push(0x02)
	f.Reset()
	for i, b := range []byte{0x00, 0x80, 0x40, 0xf8} {
		p, ok := f.Push(b)
		if i < 3 {
			require.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, Packet{0x00, 0x80, 0x40, 0xf8}, p)
	}
}

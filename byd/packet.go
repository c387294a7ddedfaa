// Package byd implements the wire protocol of the BYD BTP-10463 PS/2
// touchpad: detection, the vendor bring-up handshake, and the decoding of
// 4-byte report packets into an accumulated pointer state.
package byd

// FrameSize is the fixed size of every report packet the pad produces.
const FrameSize = 4

// Reported device coordinate space. The true sensor resolution is unknown;
// experiments put it around 111 units/mm, and the active area is
// 101.6 x 60.1 mm per the spec sheet. Width and height are multiples of 256
// so that the 1-byte absolute coordinates scale without remainder.
const (
	PadWidth      = 11264
	PadHeight     = 6656
	PadResolution = 111
)

// Relative reports arrive at a fixed cadence of one unit per 11 ms
// regardless of the time delta between packets, so each delta unit maps to
// this many internal units.
const relUnitScale = 11

// PacketType is the trailing type/flags byte of a report packet.
// Classification is total: every byte value is a valid PacketType, and the
// session treats the ones without a dedicated case as a no-op.
type PacketType byte

const (
	PacketRelative PacketType = 0x00
	PacketAbsolute PacketType = 0xf8

	PacketPinchIn          PacketType = 0xd8
	PacketPinchOut         PacketType = 0x28
	PacketRotateClockwise  PacketType = 0x29
	PacketRotateCounter    PacketType = 0xd7
	PacketTwoFingerRight   PacketType = 0x2a
	PacketTwoFingerDown    PacketType = 0x2b
	PacketTwoFingerUp      PacketType = 0xd5
	PacketTwoFingerLeft    PacketType = 0xd6
	PacketThreeFingerRight PacketType = 0x2c
	PacketThreeFingerDown  PacketType = 0x2d
	PacketThreeFingerUp    PacketType = 0xd3
	PacketThreeFingerLeft  PacketType = 0xd4
	PacketFourFingerDown   PacketType = 0x33
	PacketFourFingerUp     PacketType = 0xcd
	PacketRegionRight      PacketType = 0x35
	PacketRegionDown       PacketType = 0x36
	PacketRegionUp         PacketType = 0xca
	PacketRegionLeft       PacketType = 0xcb
	PacketRightCornerClick PacketType = 0xd2
	PacketLeftCornerClick  PacketType = 0x2e
	PacketBothCornersClick PacketType = 0x2f
	PacketOntoPadRight     PacketType = 0x37
	PacketOntoPadDown      PacketType = 0x30
	PacketOntoPadUp        PacketType = 0xd0
	PacketOntoPadLeft      PacketType = 0xc9
)

// Packet is one complete report frame.
type Packet [FrameSize]byte

// Type returns the packet classification from the trailing byte.
func (p Packet) Type() PacketType {
	return PacketType(p[3])
}

// Buttons reads the physical button bits. The low two bits of byte 0 carry
// the left and right button state in both absolute and relative packets.
func (p Packet) Buttons() (left, right bool) {
	return p[0]&1 != 0, p[0]>>1&1 != 0
}

// AbsX scales the raw 0-255 X coordinate of an absolute packet into pad
// units.
func (p Packet) AbsX() int32 {
	return int32(p[1]) * (PadWidth / 256)
}

// AbsY scales the raw Y coordinate into pad units. The sensor Y axis is
// inverted, so the raw value is mirrored before scaling.
func (p Packet) AbsY() int32 {
	return int32(255-p[2]) * (PadHeight / 256)
}

// RelX reconstructs the signed 9-bit X delta of a relative packet. The
// magnitude lives in byte 1 and the sign in bit 4 of byte 0; a zero
// magnitude always means no motion, so the encoding cannot express -256.
func (p Packet) RelX() int16 {
	if p[1] == 0 {
		return 0
	}
	return int16(p[1]) - int16(uint16(p[0])<<4&0x100)
}

// RelY reconstructs the signed 9-bit Y delta. The magnitude is byte 2, the
// sign bit 5 of byte 0, and the axis is inverted relative to the wire value.
func (p Packet) RelY() int16 {
	if p[2] == 0 {
		return 0
	}
	return int16(uint16(p[0])<<3&0x100) - int16(p[2])
}

// EncodeRelative packs signed deltas into the relative report
// representation, the inverse of RelX/RelY. Deltas must be within
// [-255, 255]; values outside are clipped to the representable range.
func EncodeRelative(dx, dy int16, left, right bool) Packet {
	var p Packet
	p[3] = byte(PacketRelative)
	if left {
		p[0] |= 1 << 0
	}
	if right {
		p[0] |= 1 << 1
	}
	dx = clip(dx, -255, 255)
	dy = clip(dy, -255, 255)
	if dx < 0 {
		p[0] |= 1 << 4
	}
	p[1] = byte(dx & 0xff)
	// wire Y axis is inverted
	if -dy < 0 {
		p[0] |= 1 << 5
	}
	p[2] = byte(-dy & 0xff)
	return p
}

func clip(v, lo, hi int16) int16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

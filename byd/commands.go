package byd

// Command is a PS/2 command word. The encoding follows the usual host-side
// convention: bits 12-15 carry the number of argument bytes written after the
// command byte, bits 8-11 the number of response bytes read back, and the low
// byte is the command itself.
type Command uint16

// Standard PS/2 mouse commands used during detection and bring-up.
const (
	CmdSetResolution Command = 0x10e8
	CmdGetInfo       Command = 0x03e9
	CmdSetStream     Command = 0x00ea
	CmdGetID         Command = 0x02f2
	CmdSetRate       Command = 0x10f3
	CmdEnable        Command = 0x00f4
	CmdDisable       Command = 0x00f5
	CmdReset         Command = 0x02ff
)

// Byte returns the command byte written on the wire.
func (c Command) Byte() byte {
	return byte(c)
}

// SendBytes returns the number of argument bytes the command carries.
func (c Command) SendBytes() int {
	return int(c >> 12 & 0xf)
}

// ReceiveBytes returns the number of response bytes the command produces.
func (c Command) ReceiveBytes() int {
	return int(c >> 8 & 0xf)
}

// PairCommand forms a vendor "paired" command: a plain command byte with one
// argument byte attached.
func PairCommand(c byte) Command {
	return Command(1<<12 | uint16(c))
}

// PairCommandR forms a vendor paired command that additionally reads r
// response bytes.
func PairCommandR(r int, c byte) Command {
	return Command(1<<12 | uint16(r)<<8 | uint16(c))
}

// Vendor configuration setting IDs, reverse engineered from the Windows
// driver. Each is written as a (setting, value) pair while the pad is in
// vendor command mode. Valid value ranges are documented on the Settings
// fields.
const (
	cmdSetOffscreenSwipe    = 0xcc
	cmdSetTapDragDelayTime  = 0xcf
	cmdSetPhysicalButtons   = 0xd0
	cmdSetAbsoluteMode      = 0xd1
	cmdSetTwoFingerScroll   = 0xd2
	cmdSetHandedness        = 0xd3
	cmdSetTap               = 0xd4
	cmdSetTapDrag           = 0xd5
	cmdSetTouchSensitivity  = 0xd6
	cmdSetOneFingerScroll   = 0xd7
	cmdSetOneFingerScrollFn = 0xd8
	cmdSetSlidingSpeed      = 0xda
	cmdSetEdgeMotion        = 0xdb
	cmdSetLeftEdgeRegion    = 0xdc
	cmdSetTopEdgeRegion     = 0xdd
	cmdSetPalmCheck         = 0xde
	cmdSetRightEdgeRegion   = 0xdf
	cmdSetBottomEdgeRegion  = 0xe1
	cmdSetMultitouch        = 0xe3
	cmdSetEdgeMotionSpeed   = 0xe4
	cmdSetTwoFingerScrollFn = 0xe5
	cmdVendorModeIdentify   = 0xe0
	cmdVendorModeEnter      = 0xe2
)

// Responses to the vendor identification probe must match this sequence
// exactly; the vendor driver reads the same magic.
var vendorMagic = [4]byte{0x08, 0x01, 0x01, 0x31}

// Model describes a supported pad as a human-readable name plus the 2-byte
// identification fingerprint reported at bytes 1-2 of the GetInfo response.
type Model struct {
	Name string
	ID   [2]byte
}

var models = []Model{
	{Name: "BTP10463", ID: [2]byte{0x03, 0x64}},
}

func matchModel(id []byte) (Model, bool) {
	for _, m := range models {
		if id[0] == m.ID[0] && id[1] == m.ID[1] {
			return m, true
		}
	}
	return Model{}, false
}

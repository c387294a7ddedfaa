package byd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errPortBroken = errors.New("port broken")

type portCall struct {
	cmd Command
	arg []byte
}

// fakePort answers command exchanges the way a healthy BTP-10463 would,
// with configurable identification responses and a fail-at-Nth-exchange
// switch for atomicity tests.
type fakePort struct {
	infoID [2]byte
	idByte byte
	magic  [4]byte
	failAt int // 1-based exchange index that fails; 0 = never
	calls  []portCall
}

func newFakePort() *fakePort {
	return &fakePort{
		infoID: [2]byte{0x03, 0x64},
		idByte: 3,
		magic:  vendorMagic,
	}
}

func (p *fakePort) Command(cmd Command, arg []byte) ([]byte, error) {
	p.calls = append(p.calls, portCall{cmd, append([]byte(nil), arg...)})
	if p.failAt != 0 && len(p.calls) == p.failAt {
		return nil, errPortBroken
	}
	switch cmd {
	case CmdReset:
		return []byte{0xaa, 0x00}, nil
	case CmdGetInfo:
		return []byte{0x00, p.infoID[0], p.infoID[1]}, nil
	case CmdGetID:
		return []byte{p.idByte, 0x00}, nil
	case PairCommandR(4, cmdVendorModeIdentify):
		return p.magic[:], nil
	}
	return nil, nil
}

func (p *fakePort) lastCall() portCall {
	return p.calls[len(p.calls)-1]
}

func TestDetect(t *testing.T) {
	port := newFakePort()
	model, err := Detect(zap.NewNop(), port)
	require.NoError(t, err)
	assert.Equal(t, "BTP10463", model.Name)

	// reset, four resolution writes, info request
	require.Len(t, port.calls, 6)
	assert.Equal(t, CmdReset, port.calls[0].cmd)
	for i := 1; i <= 4; i++ {
		assert.Equal(t, CmdSetResolution, port.calls[i].cmd)
		assert.Equal(t, []byte{0x03}, port.calls[i].arg)
	}
	assert.Equal(t, CmdGetInfo, port.calls[5].cmd)
}

func TestDetectMismatch(t *testing.T) {
	port := newFakePort()
	port.infoID = [2]byte{0x12, 0x34}
	_, err := Detect(zap.NewNop(), port)
	require.ErrorIs(t, err, ErrUnknownDevice)
}

func TestDetectTransportFailure(t *testing.T) {
	port := newFakePort()
	port.failAt = 1
	_, err := Detect(zap.NewNop(), port)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownDevice)
	assert.ErrorIs(t, err, errPortBroken)
}

// initExchanges is the number of command exchanges a successful bring-up
// performs: reset, three rates, id query, activate, mode entry, two
// identification probes, the 14-entry settings table, finalize, mode exit.
const initExchanges = 1 + 3 + 1 + 1 + 1 + 2 + 14 + 1 + 1

func initPort(t *testing.T, port *fakePort, settings Settings) (*Session, error) {
	t.Helper()
	model := models[0]
	return Init(zap.NewNop(), port, model, settings, SinkFunc(func(State) {}))
}

func TestInitHappyPath(t *testing.T) {
	port := newFakePort()
	sess, err := initPort(t, port, DefaultSettings())
	require.NoError(t, err)
	require.NotNil(t, sess)
	defer sess.Close()

	require.Len(t, port.calls, initExchanges)

	assert.Equal(t, CmdReset, port.calls[0].cmd)
	for i, rate := range []byte{200, 100, 80} {
		assert.Equal(t, CmdSetRate, port.calls[1+i].cmd)
		assert.Equal(t, []byte{rate}, port.calls[1+i].arg)
	}
	assert.Equal(t, CmdGetID, port.calls[4].cmd)
	assert.Equal(t, CmdEnable, port.calls[5].cmd)
	assert.Equal(t, PairCommand(cmdVendorModeEnter), port.calls[6].cmd)
	assert.Equal(t, []byte{0x00}, port.calls[6].arg)
	assert.Equal(t, PairCommand(cmdVendorModeIdentify), port.calls[7].cmd)
	assert.Equal(t, []byte{0x02}, port.calls[7].arg)
	assert.Equal(t, PairCommandR(4, cmdVendorModeIdentify), port.calls[8].cmd)
	assert.Equal(t, []byte{0x01}, port.calls[8].arg)

	// the vendor table, verbatim order and values
	wantTable := []portCall{
		{PairCommand(cmdSetHandedness), []byte{0x01}},
		{PairCommand(cmdSetPhysicalButtons), []byte{0x04}},
		{PairCommand(cmdSetTap), []byte{0x02}},
		{PairCommand(cmdSetOneFingerScroll), []byte{0x04}},
		{PairCommand(cmdSetEdgeMotion), []byte{0x01}},
		{PairCommand(cmdSetPalmCheck), []byte{0x00}},
		{PairCommand(cmdSetMultitouch), []byte{0x01}},
		{PairCommand(cmdSetTwoFingerScroll), []byte{0x03}},
		{PairCommand(cmdSetTwoFingerScrollFn), []byte{0x00}},
		{PairCommand(cmdSetLeftEdgeRegion), []byte{0x00}},
		{PairCommand(cmdSetTopEdgeRegion), []byte{0x00}},
		{PairCommand(cmdSetRightEdgeRegion), []byte{0x00}},
		{PairCommand(cmdSetBottomEdgeRegion), []byte{0x00}},
		{PairCommand(cmdSetAbsoluteMode), []byte{0x02}},
	}
	assert.Equal(t, wantTable, port.calls[9:23])

	assert.Equal(t, PairCommand(cmdVendorModeIdentify), port.calls[23].cmd)
	assert.Equal(t, []byte{0x00}, port.calls[23].arg)
	assert.Equal(t, PairCommand(cmdVendorModeEnter), port.calls[24].cmd)
	assert.Equal(t, []byte{0x01}, port.calls[24].arg)
}

func TestInitWrongDeviceFamily(t *testing.T) {
	port := newFakePort()
	port.idByte = 0
	sess, err := initPort(t, port, DefaultSettings())
	require.ErrorIs(t, err, ErrUnknownDevice)
	assert.Nil(t, sess)
	assert.Equal(t, CmdDisable, port.lastCall().cmd)
}

func TestInitBadMagic(t *testing.T) {
	port := newFakePort()
	port.magic = [4]byte{0x08, 0x01, 0x01, 0x32}
	sess, err := initPort(t, port, DefaultSettings())
	require.ErrorIs(t, err, ErrUnknownDevice)
	assert.Nil(t, sess)
	assert.Equal(t, CmdDisable, port.lastCall().cmd)
}

func TestInitAtomicity(t *testing.T) {
	// a transport failure on any exchange must leave the device
	// deactivated and expose no session
	for failAt := 1; failAt <= initExchanges; failAt++ {
		t.Run(fmt.Sprintf("exchange%02d", failAt), func(t *testing.T) {
			port := newFakePort()
			port.failAt = failAt
			sess, err := initPort(t, port, DefaultSettings())
			require.Error(t, err)
			assert.ErrorIs(t, err, errPortBroken)
			assert.NotErrorIs(t, err, ErrUnknownDevice)
			assert.Nil(t, sess)
			assert.Equal(t, CmdDisable, port.lastCall().cmd)
		})
	}
}

func TestInitRejectsInvalidSettings(t *testing.T) {
	port := newFakePort()
	sess, err := initPort(t, port, Settings{})
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Empty(t, port.calls, "nothing may reach the wire")
}

func TestInitWritesOptionalSettings(t *testing.T) {
	settings := DefaultSettings()
	sensitivity := uint8(5)
	settings.TouchSensitivity = &sensitivity

	port := newFakePort()
	sess, err := initPort(t, port, settings)
	require.NoError(t, err)
	defer sess.Close()

	require.Len(t, port.calls, initExchanges+1)
	// optional settings go after the fixed table, before finalize
	assert.Equal(t, portCall{PairCommand(cmdSetTouchSensitivity), []byte{0x05}}, port.calls[23])
	assert.Equal(t, PairCommand(cmdVendorModeIdentify), port.calls[24].cmd)
}

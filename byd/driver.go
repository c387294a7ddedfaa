package byd

import (
	"fmt"

	"go.uber.org/zap"
)

// Port is the serial link the pad hangs off. Command performs one
// synchronous command/response exchange: it writes the command byte and the
// argument bytes, then reads back the number of response bytes the command
// word encodes. Exchanges are ordered and blocking; there is no in-flight
// cancellation.
type Port interface {
	Command(cmd Command, arg []byte) ([]byte, error)
}

// Detect probes the port for a supported pad. It resets the device, issues
// the magic knock from the datasheet (four resolution writes followed by an
// info request) and matches the reported fingerprint against the model
// table. A pad that answers but does not match yields ErrUnknownDevice.
func Detect(log *zap.Logger, port Port) (Model, error) {
	if _, err := port.Command(CmdReset, nil); err != nil {
		return Model{}, fmt.Errorf("reset: %w", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := port.Command(CmdSetResolution, []byte{0x03}); err != nil {
			return Model{}, fmt.Errorf("magic knock: %w", err)
		}
	}
	info, err := port.Command(CmdGetInfo, nil)
	if err != nil {
		return Model{}, fmt.Errorf("get info: %w", err)
	}

	// The first info byte depends on the state of the pad and is unusable
	// for identification after suspend; match on bytes 1-2 only.
	model, ok := matchModel(info[1:3])
	if !ok {
		log.Debug("no model match",
			zap.Uint8("id0", info[1]),
			zap.Uint8("id1", info[2]),
		)
		return Model{}, fmt.Errorf("fingerprint %02x %02x: %w", info[1], info[2], ErrUnknownDevice)
	}
	log.Debug("matched model", zap.String("model", model.Name))
	return model, nil
}

// Init drives the bring-up handshake and returns a ready session. The
// sequence is strict and fail-fast: the first error deactivates the device
// and aborts, and no partially initialized session is ever returned.
func Init(log *zap.Logger, port Port, model Model, settings Settings, sink Sink, opts ...SessionOption) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("byd: settings: %w", err)
	}

	sess, err := initialize(log, port, model, settings, sink, opts...)
	if err != nil {
		// Leave the device deactivated; a half-configured pad must not
		// keep streaming.
		if _, derr := port.Command(CmdDisable, nil); derr != nil {
			log.Warn("deactivate after failed init", zap.Error(derr))
		}
		return nil, err
	}
	return sess, nil
}

func initialize(log *zap.Logger, port Port, model Model, settings Settings, sink Sink, opts ...SessionOption) (*Session, error) {
	// Step 1: back to power-on defaults.
	if _, err := port.Command(CmdReset, nil); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	// Step 2: the pad needs the intellimouse-style rate dance before it
	// produces 4-byte packets. Wrong ID here means a different device
	// family, not a transport problem.
	for _, rate := range []byte{200, 100, 80} {
		if _, err := port.Command(CmdSetRate, []byte{rate}); err != nil {
			return nil, fmt.Errorf("set rate %d: %w", rate, err)
		}
	}
	id, err := port.Command(CmdGetID, nil)
	if err != nil {
		return nil, fmt.Errorf("get id: %w", err)
	}
	if id[0] != 3 {
		return nil, fmt.Errorf("device id %d: %w", id[0], ErrUnknownDevice)
	}

	// Step 3: some of the vendor commands only take while the stream is
	// running.
	if _, err := port.Command(CmdEnable, nil); err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	// Step 4: enter vendor command mode.
	if _, err := port.Command(PairCommand(cmdVendorModeEnter), []byte{0x00}); err != nil {
		return nil, fmt.Errorf("enter command mode: %w", err)
	}
	log.Debug("entered command mode")

	// Step 5: second identification probe; the vendor driver reads the
	// same magic.
	if _, err := port.Command(PairCommand(cmdVendorModeIdentify), []byte{0x02}); err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	magic, err := port.Command(PairCommandR(4, cmdVendorModeIdentify), []byte{0x01})
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if [4]byte(magic[:4]) != vendorMagic {
		log.Error("unknown magic, expected 08 01 01 31",
			zap.Uint8("m0", magic[0]), zap.Uint8("m1", magic[1]),
			zap.Uint8("m2", magic[2]), zap.Uint8("m3", magic[3]),
		)
		return nil, fmt.Errorf("vendor magic %02x %02x %02x %02x: %w",
			magic[0], magic[1], magic[2], magic[3], ErrUnknownDevice)
	}

	// Step 6: write the vendor configuration table. The order of the fixed
	// table is load-bearing; the firmware applies some settings relative to
	// earlier ones.
	for _, sc := range settings.commandTable() {
		if _, err := port.Command(PairCommand(sc.command), []byte{sc.value}); err != nil {
			return nil, fmt.Errorf("setting %02x=%02x: %w", sc.command, sc.value, err)
		}
	}

	// Step 7: commit the table, then leave vendor command mode.
	if _, err := port.Command(PairCommand(cmdVendorModeIdentify), []byte{0x00}); err != nil {
		return nil, fmt.Errorf("finalize settings: %w", err)
	}
	if _, err := port.Command(PairCommand(cmdVendorModeEnter), []byte{0x01}); err != nil {
		return nil, fmt.Errorf("exit command mode: %w", err)
	}
	log.Debug("exited command mode")

	// Step 8: zeroed session, liveness timer disarmed until the first
	// touch frame.
	return newSession(log, model, sink, opts...), nil
}

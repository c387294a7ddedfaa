package byd

import "errors"

// ErrUnknownDevice means the attached device responded, but its
// identification bytes or vendor magic did not match a supported pad. This
// is "not this device", not an I/O failure: callers should leave the port
// for other drivers. Every other error out of Detect or Init is a transport
// failure on the command exchange.
var ErrUnknownDevice = errors.New("byd: unrecognized device")

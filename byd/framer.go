package byd

// Framer assembles the raw byte stream into fixed-size frames. The pad
// emits nothing but 4-byte packets once absolute mode is on, so framing is
// plain chunking; Reset realigns after a stream restart.
type Framer struct {
	buf Packet
	n   int
}

// Push adds one byte. When it completes a frame the frame is returned and
// the framer starts over.
func (f *Framer) Push(b byte) (Packet, bool) {
	f.buf[f.n] = b
	f.n++
	if f.n < FrameSize {
		return Packet{}, false
	}
	f.n = 0
	return f.buf, true
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.n = 0
}

package wire

import (
	"encoding/binary"
	"io"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// MaxFrameSize is the largest message a 16-bit length prefix can express,
// and so the largest frame this codec reads or writes.
const MaxFrameSize = 65535

// ReadFrame reads one 16-bit-length-prefixed DNS message from r, per the
// TCP/DoT/DoQ framing in spec section 4.1.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return nil, xerrors.MalformedMessage("zero-length TCP frame")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes msg to w preceded by its 16-bit big-endian length.
func WriteFrame(w io.Writer, msg []byte) error {
	if len(msg) > MaxFrameSize {
		return xerrors.Internal("message too large to frame: ", len(msg), " bytes")
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(msg)
	return err
}

// Package protocol is the wire format between a remote backend and the
// agent: length-prefixed JSON frames carrying one Request or Response each,
// preceded by a version-and-token handshake. One request is outstanding per
// connection at a time, so correlation ids are a safety check rather than a
// multiplexing mechanism.
package protocol

import (
	"encoding/binary"
	"io"

	"transfer-agent/internal/domain"
)

// MaxFrame bounds any single message. Control traffic is tiny; anything
// bigger is a corrupted stream.
const MaxFrame = 0x4000

// WriteFrame writes a 4-byte big-endian length followed by the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrame {
		return domain.Errf("write frame", "", domain.ErrProtocolError,
			"frame of %d bytes exceeds limit %d", len(payload), MaxFrame)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload. Short reads surface as I/O
// errors, never as a partially parsed message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return nil, domain.Errf("read frame", "", domain.ErrProtocolError,
			"frame of %d bytes exceeds limit %d", n, MaxFrame)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

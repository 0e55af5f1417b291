// internal/protocol/frame.go
//
// Length-prefixed framing over a byte stream.
//
// Wire layout of one frame:
//
//	[length: 8 bytes, little-endian uint64][payload: length bytes]
//
// The prefix width is fixed at 8 bytes on every platform so both ends always
// agree on frame boundaries.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PrefixSize is the width of the length prefix in bytes.
const PrefixSize = 8

// DefaultMaxFrame bounds the payload size a reader will allocate.
const DefaultMaxFrame = 1 << 20

var (
	// ErrConnectionClosed means the peer closed the stream on a frame boundary.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrShortFrame means the stream ended inside a prefix or payload.
	ErrShortFrame = errors.New("short frame")
	// ErrFrameTooLarge means the announced payload exceeds the reader's limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ReadFrame reads one frame and returns its payload. max limits the payload
// size; zero means DefaultMaxFrame.
func ReadFrame(r io.Reader, max uint64) ([]byte, error) {
	if max == 0 {
		max = DefaultMaxFrame
	}
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("read prefix: %w: %w", ErrShortFrame, err)
		}
		return nil, fmt.Errorf("read prefix: %w", err)
	}
	n := binary.LittleEndian.Uint64(prefix[:])
	if n > max {
		return nil, fmt.Errorf("payload of %d bytes (limit %d): %w", n, max, ErrFrameTooLarge)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read payload: %w: %w", ErrShortFrame, io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes the prefix and payload with a single Write call so that
// frames from one writer never interleave.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, PrefixSize+len(payload))
	binary.LittleEndian.PutUint64(buf[:PrefixSize], uint64(len(payload)))
	copy(buf[PrefixSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// internal/protocol/messages.go
//
// Payload encoding for the two directions of the robot protocol.
//
//   - Request payload: a movement command.
//   - Response payload: a Reply, either a world update or an error message.
//
// Payloads use bincode's fixed-int little-endian encoding. The world update
// body keeps that layout, but responses wrap it in a Reply envelope whose u32
// tag comes first; a client expecting a bare update will not parse them.
// Layout rules:
//
//	enum variant  u32 discriminant, then the variant's fields
//	Vec<T>        u64 length, then the elements
//	String        u64 byte length, then UTF-8 bytes
//
// So a world update is: u64 rows, per row (u64 cols, cols × u32 cell),
// then u32 search state.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/robalobadob/feedbot/internal/world"
)

// ErrDecode is returned for malformed or truncated payloads.
var ErrDecode = errors.New("decode error")

const (
	replyUpdate uint32 = 0
	replyError  uint32 = 1
)

// Reply is the response payload. Exactly one of Update or Err is set.
type Reply struct {
	Update *world.Update
	Err    string
}

// EncodeCommand serializes a movement command.
func EncodeCommand(d world.Direction) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("encode %v: %w", d, world.ErrUnknownDirection)
	}
	return binary.LittleEndian.AppendUint32(nil, uint32(d)), nil
}

// DecodeCommand parses a movement command payload.
func DecodeCommand(b []byte) (world.Direction, error) {
	dec := decoder{buf: b}
	v, err := dec.u32()
	if err != nil {
		return 0, err
	}
	if err := dec.done(); err != nil {
		return 0, err
	}
	d := world.Direction(v)
	if !d.Valid() {
		return 0, fmt.Errorf("direction discriminant %d: %w", v, ErrDecode)
	}
	return d, nil
}

// EncodeUpdate serializes a world update body, the payload of an Update reply.
func EncodeUpdate(u world.Update) ([]byte, error) {
	return appendUpdate(nil, u)
}

// ReplySize is the encoded size of an Update reply for an h×w world.
func ReplySize(h, w int) uint64 {
	return 4 + 8 + uint64(h)*(8+4*uint64(w)) + 4
}

// DecodeUpdate parses a world update payload.
func DecodeUpdate(b []byte) (world.Update, error) {
	dec := decoder{buf: b}
	u, err := dec.update()
	if err != nil {
		return world.Update{}, err
	}
	if err := dec.done(); err != nil {
		return world.Update{}, err
	}
	return u, nil
}

// EncodeReply serializes a response payload.
func EncodeReply(r Reply) ([]byte, error) {
	if r.Update != nil {
		if r.Err != "" {
			return nil, errors.New("encode reply: both update and error set")
		}
		body, err := EncodeUpdate(*r.Update)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 0, 4+len(body))
		b = binary.LittleEndian.AppendUint32(b, replyUpdate)
		return append(b, body...), nil
	}
	b := binary.LittleEndian.AppendUint32(nil, replyError)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(r.Err)))
	return append(b, r.Err...), nil
}

// DecodeReply parses a response payload.
func DecodeReply(b []byte) (Reply, error) {
	dec := decoder{buf: b}
	tag, err := dec.u32()
	if err != nil {
		return Reply{}, err
	}
	var r Reply
	switch tag {
	case replyUpdate:
		u, err := DecodeUpdate(dec.buf[dec.off:])
		if err != nil {
			return Reply{}, err
		}
		return Reply{Update: &u}, nil
	case replyError:
		s, err := dec.str()
		if err != nil {
			return Reply{}, err
		}
		r.Err = s
	default:
		return Reply{}, fmt.Errorf("reply discriminant %d: %w", tag, ErrDecode)
	}
	if err := dec.done(); err != nil {
		return Reply{}, err
	}
	return r, nil
}

func appendUpdate(b []byte, u world.Update) ([]byte, error) {
	if u.Grid == nil {
		return nil, errors.New("encode update: nil grid")
	}
	if !u.State.Valid() {
		return nil, fmt.Errorf("encode update: unknown state %v", u.State)
	}
	h, w := u.Grid.Height(), u.Grid.Width()
	b = append(make([]byte, 0, len(b)+8+h*(8+4*w)+4), b...)
	b = binary.LittleEndian.AppendUint64(b, uint64(h))
	for _, row := range u.Grid.Cells() {
		b = binary.LittleEndian.AppendUint64(b, uint64(len(row)))
		for _, c := range row {
			b = binary.LittleEndian.AppendUint32(b, uint32(c))
		}
	}
	return binary.LittleEndian.AppendUint32(b, uint32(u.State)), nil
}

// decoder walks a payload front to back.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("u32 at offset %d: %w", d.off, ErrDecode)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("u64 at offset %d: %w", d.off, ErrDecode)
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

// length reads a u64 element count and rejects counts that could not fit in
// the rest of the payload at elemSize bytes each.
func (d *decoder) length(elemSize int) (int, error) {
	n, err := d.u64()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.remaining()/elemSize) {
		return 0, fmt.Errorf("length %d exceeds payload at offset %d: %w", n, d.off, ErrDecode)
	}
	return int(n), nil
}

func (d *decoder) str() (string, error) {
	n, err := d.length(1)
	if err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+n])
	d.off += n
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("string is not utf-8: %w", ErrDecode)
	}
	return s, nil
}

func (d *decoder) update() (world.Update, error) {
	h, err := d.length(8)
	if err != nil {
		return world.Update{}, err
	}
	rows := make([][]world.Cell, h)
	for r := range rows {
		w, err := d.length(4)
		if err != nil {
			return world.Update{}, err
		}
		row := make([]world.Cell, w)
		for c := range row {
			v, err := d.u32()
			if err != nil {
				return world.Update{}, err
			}
			cell := world.Cell(v)
			if !cell.Valid() {
				return world.Update{}, fmt.Errorf("cell discriminant %d at [%d][%d]: %w", v, r, c, ErrDecode)
			}
			row[c] = cell
		}
		rows[r] = row
	}
	v, err := d.u32()
	if err != nil {
		return world.Update{}, err
	}
	state := world.SearchState(v)
	if !state.Valid() {
		return world.Update{}, fmt.Errorf("state discriminant %d: %w", v, ErrDecode)
	}
	g, err := world.FromCells(rows)
	if err != nil {
		return world.Update{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return world.Update{Grid: g, State: state}, nil
}

func (d *decoder) done() error {
	if n := d.remaining(); n != 0 {
		return fmt.Errorf("%d trailing bytes: %w", n, ErrDecode)
	}
	return nil
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/robalobadob/feedbot/internal/world"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{{}, {1}, bytes.Repeat([]byte{0xab}, 4096)}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
	if _, err := ReadFrame(&buf, 0); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("after last frame: err = %v, want ErrConnectionClosed", err)
	}
}

func TestFramePrefixIsEightByteLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("abc")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := []byte{3, 0, 0, 0, 0, 0, 0, 0, 'a', 'b', 'c'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("frame bytes = %v, want %v", buf.Bytes(), want)
	}
}

func TestReadFrameShortReads(t *testing.T) {
	full := binary.LittleEndian.AppendUint64(nil, 10)
	full = append(full, []byte("0123456789")...)
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty stream", nil, ErrConnectionClosed},
		{"partial prefix", full[:3], ErrShortFrame},
		{"partial payload", full[:12], ErrShortFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.in), 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	in := binary.LittleEndian.AppendUint64(nil, 1<<40)
	if _, err := ReadFrame(bytes.NewReader(in), 1024); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWriteFrameError(t *testing.T) {
	if err := WriteFrame(failWriter{}, []byte{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	for _, d := range world.Directions {
		b, err := EncodeCommand(d)
		if err != nil {
			t.Fatalf("EncodeCommand(%v): %v", d, err)
		}
		got, err := DecodeCommand(b)
		if err != nil || got != d {
			t.Fatalf("DecodeCommand(%v) = %v, %v", d, got, err)
		}
	}
}

func TestCommandWireValues(t *testing.T) {
	want := map[world.Direction]uint32{world.Up: 0, world.Left: 1, world.Right: 2, world.Down: 3}
	for d, v := range want {
		b, _ := EncodeCommand(d)
		if got := binary.LittleEndian.Uint32(b); got != v || len(b) != 4 {
			t.Fatalf("%v encodes as %v, want u32 %d", d, b, v)
		}
	}
}

func TestDecodeCommandMalformed(t *testing.T) {
	for _, in := range [][]byte{nil, {0}, {0, 0, 0}, {4, 0, 0, 0}, {0, 0, 0, 0, 0}} {
		if _, err := DecodeCommand(in); !errors.Is(err, ErrDecode) {
			t.Fatalf("DecodeCommand(%v): err = %v, want ErrDecode", in, err)
		}
	}
}

func randomUpdates(t *testing.T) []world.Update {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	var out []world.Update
	for _, sz := range [][2]int{{1, 2}, {3, 5}, {world.DefaultHeight, world.DefaultWidth}} {
		g, err := world.NewRandom(rng, sz[0], sz[1])
		if err != nil {
			t.Fatalf("NewRandom: %v", err)
		}
		out = append(out, g.Snapshot())
	}
	eaten, err := world.NewAt(2, 2, world.Pos{Row: 0, Col: 0}, world.Pos{Row: 0, Col: 1})
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	if err := eaten.MoveRobot(world.Left); err != nil {
		t.Fatalf("MoveRobot: %v", err)
	}
	return append(out, eaten.Snapshot())
}

func TestUpdateRoundTrip(t *testing.T) {
	for _, u := range randomUpdates(t) {
		b, err := EncodeUpdate(u)
		if err != nil {
			t.Fatalf("EncodeUpdate: %v", err)
		}
		got, err := DecodeUpdate(b)
		if err != nil {
			t.Fatalf("DecodeUpdate: %v", err)
		}
		if !got.Equal(u) {
			t.Fatalf("round trip mismatch for %dx%d grid", u.Grid.Height(), u.Grid.Width())
		}
	}
}

func TestUpdateLayout(t *testing.T) {
	g, err := world.NewAt(1, 2, world.Pos{Row: 0, Col: 1}, world.Pos{Row: 0, Col: 0})
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	b, err := EncodeUpdate(g.Snapshot())
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	var want []byte
	want = binary.LittleEndian.AppendUint64(want, 1)
	want = binary.LittleEndian.AppendUint64(want, 2)
	want = binary.LittleEndian.AppendUint32(want, 0) // robot
	want = binary.LittleEndian.AppendUint32(want, 1) // food
	want = binary.LittleEndian.AppendUint32(want, 1) // searching
	if !bytes.Equal(b, want) {
		t.Fatalf("layout = %v, want %v", b, want)
	}
}

func TestDecodeUpdateMalformed(t *testing.T) {
	u := randomUpdates(t)[1]
	good, err := EncodeUpdate(u)
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	badState := append([]byte(nil), good...)
	badState[len(badState)-1] = 9
	badCell := append([]byte(nil), good...)
	badCell[16] = 5
	huge := binary.LittleEndian.AppendUint64(nil, 1<<62)

	tests := map[string][]byte{
		"empty":      nil,
		"truncated":  good[:len(good)-2],
		"trailing":   append(append([]byte(nil), good...), 0),
		"bad state":  badState,
		"bad cell":   badCell,
		"huge count": huge,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeUpdate(in); !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	for _, u := range randomUpdates(t) {
		u := u
		b, err := EncodeReply(Reply{Update: &u})
		if err != nil {
			t.Fatalf("EncodeReply: %v", err)
		}
		got, err := DecodeReply(b)
		if err != nil {
			t.Fatalf("DecodeReply: %v", err)
		}
		if got.Update == nil || got.Err != "" || !got.Update.Equal(u) {
			t.Fatalf("update reply mismatch: %+v", got)
		}
	}
	for _, msg := range []string{"", "move up from (0,4): out of bounds", strings.Repeat("é", 100)} {
		b, err := EncodeReply(Reply{Err: msg})
		if err != nil {
			t.Fatalf("EncodeReply: %v", err)
		}
		got, err := DecodeReply(b)
		if err != nil {
			t.Fatalf("DecodeReply: %v", err)
		}
		if got.Update != nil || got.Err != msg {
			t.Fatalf("error reply = %+v, want %q", got, msg)
		}
	}
}

func TestDecodeReplyMalformed(t *testing.T) {
	badUTF8 := binary.LittleEndian.AppendUint32(nil, replyError)
	badUTF8 = binary.LittleEndian.AppendUint64(badUTF8, 1)
	badUTF8 = append(badUTF8, 0xff)
	for name, in := range map[string][]byte{
		"unknown tag": {2, 0, 0, 0},
		"short":       {1, 0},
		"bad utf8":    badUTF8,
	} {
		if _, err := DecodeReply(in); !errors.Is(err, ErrDecode) {
			t.Fatalf("%s: err = %v, want ErrDecode", name, err)
		}
	}
}

func TestReplySizeMatchesEncoding(t *testing.T) {
	for _, dims := range [][2]int{{1, 2}, {3, 7}, {100, 100}} {
		g, err := world.NewAt(dims[0], dims[1], world.Pos{Row: 0, Col: 0}, world.Pos{Row: dims[0] - 1, Col: dims[1] - 1})
		if err != nil {
			t.Fatalf("NewAt %v: %v", dims, err)
		}
		u := g.Snapshot()
		b, err := EncodeReply(Reply{Update: &u})
		if err != nil {
			t.Fatalf("EncodeReply: %v", err)
		}
		if got := ReplySize(dims[0], dims[1]); got != uint64(len(b)) {
			t.Errorf("ReplySize(%d, %d) = %d, encoded %d", dims[0], dims[1], got, len(b))
		}
	}
}

func TestUpdateReplyWrapsUpdateBody(t *testing.T) {
	g, err := world.NewAt(4, 5, world.Pos{Row: 1, Col: 1}, world.Pos{Row: 3, Col: 4})
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}
	u := g.Snapshot()
	body, err := EncodeUpdate(u)
	if err != nil {
		t.Fatalf("EncodeUpdate: %v", err)
	}
	reply, err := EncodeReply(Reply{Update: &u})
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	if tag := binary.LittleEndian.Uint32(reply[:4]); tag != 0 || !bytes.Equal(reply[4:], body) {
		t.Fatalf("reply = tag %d + % x, want tag 0 + % x", tag, reply[4:], body)
	}

	got, err := DecodeReply(reply)
	if err != nil || got.Update == nil || !got.Update.Equal(u) {
		t.Fatalf("DecodeReply = %+v, %v", got, err)
	}
	// Trailing bytes after the body are rejected through the same path.
	if _, err := DecodeReply(append(reply, 0)); !errors.Is(err, ErrDecode) {
		t.Fatalf("trailing byte: err = %v", err)
	}
}

package binrec

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func buildFrame(tag uint16, body []byte) []byte {
	buf := make([]byte, 6+len(body))
	binary.LittleEndian.PutUint16(buf[0:], tag)
	binary.LittleEndian.PutUint32(buf[2:], uint32(len(body)))
	copy(buf[6:], body)
	return buf
}

func TestPrimitiveReadsAndOffsetTracking(t *testing.T) {
	body := make([]byte, 0, 20)
	body = binary.LittleEndian.AppendUint16(body, 7)
	body = binary.LittleEndian.AppendUint32(body, 123456)
	body = binary.LittleEndian.AppendUint32(body, math.Float32bits(3.5))

	r := NewReader(body)
	u16, err := r.Uint16()
	if err != nil || u16 != 7 {
		t.Fatalf("Uint16: %v, %v", u16, err)
	}
	u32, err := r.Uint32()
	if err != nil || u32 != 123456 {
		t.Fatalf("Uint32: %v, %v", u32, err)
	}
	f32, err := r.Float32()
	if err != nil || f32 != 3.5 {
		t.Fatalf("Float32: %v, %v", f32, err)
	}
	if r.Offset() != 10 {
		t.Errorf("expected offset 10, got %d", r.Offset())
	}
	if r.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", r.Remaining())
	}
}

func TestReadPastEndReturnsEndOfStream(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.Uint32(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("expected ErrEndOfStream, got %v", err)
	}
}

func TestFixedStringTrimsNulPadding(t *testing.T) {
	r := NewReader([]byte{'A', 'B', 'C', 0, 0})
	s, err := r.FixedString(5)
	if err != nil {
		t.Fatal(err)
	}
	if s != "ABC" {
		t.Errorf("expected %q, got %q", "ABC", s)
	}
}

func TestFrameHeaderEnforcesParentBound(t *testing.T) {
	inner := buildFrame(2, []byte{9, 9})
	outer := buildFrame(1, inner)

	r := NewReader(outer)
	h, childEnd, err := r.ReadFrameHeader(len(outer))
	if err != nil {
		t.Fatalf("outer header: %v", err)
	}
	if h.Tag != 1 || childEnd != len(outer) {
		t.Fatalf("unexpected outer header: %+v end=%d", h, childEnd)
	}

	h2, innerEnd, err := r.ReadFrameHeader(childEnd)
	if err != nil {
		t.Fatalf("inner header: %v", err)
	}
	if h2.Tag != 2 || innerEnd != childEnd {
		t.Fatalf("unexpected inner header: %+v end=%d", h2, innerEnd)
	}
}

func TestFrameHeaderRejectsOversizedChild(t *testing.T) {
	// Declares a length that reaches past parentEnd.
	buf := buildFrame(5, []byte{1, 2, 3, 4})
	r := NewReader(buf)
	if _, _, err := r.ReadFrameHeader(len(buf) - 1); !errors.Is(err, ErrCorruptedFrame) {
		t.Errorf("expected ErrCorruptedFrame, got %v", err)
	}
}

func TestDispatchLoopSkipsUnknownTagsAndStaysInBounds(t *testing.T) {
	frame := append(append([]byte{}, buildFrame(1, []byte{0xAA})...), buildFrame(2, []byte{0xBB, 0xCC})...)

	r := NewReader(frame)
	var seen []uint16
	var unknown []error
	frameEnd := len(frame)
	for r.Offset() < frameEnd {
		h, childEnd, err := r.ReadFrameHeader(frameEnd)
		if err != nil {
			t.Fatalf("unexpected header error: %v", err)
		}
		if h.Tag != 1 {
			unknown = append(unknown, &UnknownTagError{Tag: h.Tag})
		}
		seen = append(seen, h.Tag)
		if err := r.Seek(childEnd); err != nil {
			t.Fatalf("seek: %v", err)
		}
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("unexpected tag sequence: %v", seen)
	}
	if len(unknown) != 1 {
		t.Errorf("expected 1 unknown tag collected, got %d", len(unknown))
	}
}

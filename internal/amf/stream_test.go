package amf_test

import (
	"errors"
	"testing"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

func TestStreamPrimitives(t *testing.T) {
	t.Parallel()

	w := amf.NewWriter()
	w.WriteUint8(0xAB)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteInt32(-2)
	w.WriteFloat64(1.5)
	if err := w.WriteUTF("héllo"); err != nil {
		t.Fatal(err)
	}
	w.WriteLongUTF("wörld")

	r := amf.NewReader(w.Bytes())

	if v, err := r.ReadUint8(); err != nil || v != 0xAB {
		t.Errorf("u8 = %v, %v", v, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x1234 {
		t.Errorf("u16 = %v, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Errorf("u32 = %v, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -2 {
		t.Errorf("i32 = %v, %v", v, err)
	}
	if v, err := r.ReadFloat64(); err != nil || v != 1.5 {
		t.Errorf("f64 = %v, %v", v, err)
	}
	if v, err := r.ReadUTF(); err != nil || v != "héllo" {
		t.Errorf("utf = %q, %v", v, err)
	}
	if v, err := r.ReadLongUTF(); err != nil || v != "wörld" {
		t.Errorf("long utf = %q, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining = %d", r.Remaining())
	}
}

func TestStreamShortReads(t *testing.T) {
	t.Parallel()

	r := amf.NewReader([]byte{0x00})
	if _, err := r.ReadUint16(); !errors.Is(err, amf.ErrTruncated) {
		t.Errorf("u16 on 1 byte = %v, want ErrTruncated", err)
	}

	// A length prefix pointing past the end must fail, not panic.
	r = amf.NewReader([]byte{0x00, 0x10, 'a', 'b'})
	if _, err := r.ReadUTF(); !errors.Is(err, amf.ErrTruncated) {
		t.Errorf("short utf = %v, want ErrTruncated", err)
	}
}

func TestStreamInvalidUTF8(t *testing.T) {
	t.Parallel()

	r := amf.NewReader([]byte{0x00, 0x02, 0xFF, 0xFE})
	if _, err := r.ReadUTF(); !errors.Is(err, amf.ErrBadUTF8) {
		t.Errorf("invalid utf8 = %v, want ErrBadUTF8", err)
	}
}

func TestWriteUTFTooLong(t *testing.T) {
	t.Parallel()

	w := amf.NewWriter()
	if err := w.WriteUTF(string(make([]byte, 0x10000))); !errors.Is(err, amf.ErrStringTooLong) {
		t.Errorf("oversized WriteUTF = %v, want ErrStringTooLong", err)
	}
}

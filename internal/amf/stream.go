package amf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// -------------------------------------------------------------------------
// Reader — big-endian primitive decoding
// -------------------------------------------------------------------------

// Reader decodes big-endian primitives from an in-memory buffer with
// bounds checking. Every short read fails with ErrTruncated carrying the
// stream offset; decoding never panics on malformed input.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over buf. The Reader does not copy buf;
// callers must not mutate it while decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current read position, used in error context.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// take returns the next n bytes without copying, advancing the offset.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d: %w",
			n, r.off, r.Remaining(), ErrTruncated)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	u, err := r.ReadUint32()
	return int32(u), err
}

// ReadFloat64 reads a big-endian IEEE-754 binary64.
func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadBytes reads n raw bytes. The returned slice aliases the input
// buffer; callers that retain it must copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// readUTFBytes reads n bytes and validates them as UTF-8.
func (r *Reader) readUTFBytes(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("string at offset %d: %w", r.off-n, ErrBadUTF8)
	}
	return string(b), nil
}

// ReadUTF reads a u16 length prefix followed by that many UTF-8 bytes
// (AMF0 spec Section 2.4).
func (r *Reader) ReadUTF() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	return r.readUTFBytes(int(n))
}

// ReadLongUTF reads a u32 length prefix followed by that many UTF-8
// bytes (AMF0 spec Section 2.14).
func (r *Reader) ReadLongUTF() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	return r.readUTFBytes(int(n))
}

// -------------------------------------------------------------------------
// Writer — big-endian primitive encoding
// -------------------------------------------------------------------------

// Writer encodes big-endian primitives into a growable buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes accumulated so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

// WriteUint16 writes a big-endian unsigned 16-bit integer.
func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint32 writes a big-endian unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteInt32 writes a big-endian signed 32-bit integer.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteFloat64 writes a big-endian IEEE-754 binary64.
func (w *Writer) WriteFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// WriteUTF writes a u16 length prefix followed by the UTF-8 bytes of s
// (AMF0 spec Section 2.4). Strings beyond 65535 bytes are rejected;
// contexts that permit promotion use the long-string marker instead.
func (w *Writer) WriteUTF(s string) error {
	if len(s) > maxUint16 {
		return fmt.Errorf("write utf: %d bytes: %w", len(s), ErrStringTooLong)
	}
	w.WriteUint16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

// WriteLongUTF writes a u32 length prefix followed by the UTF-8 bytes
// of s (AMF0 spec Section 2.14).
func (w *Writer) WriteLongUTF(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf.WriteString(s)
}

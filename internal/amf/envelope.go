package amf

import (
	"fmt"
)

// -------------------------------------------------------------------------
// Well-Known Names
// -------------------------------------------------------------------------

// Well-known envelope header names.
const (
	// HeaderCredentials carries a userid/password record for gateway
	// authentication.
	HeaderCredentials = "Credentials"

	// HeaderRequestPersistentHeader asks the client to replay a header
	// on subsequent packets; the gateway uses it to clear credentials
	// after a successful login.
	HeaderRequestPersistentHeader = "RequestPersistentHeader"

	// HeaderAppendToGatewayURL asks the client to append a string to
	// the gateway URL (legacy session affinity).
	HeaderAppendToGatewayURL = "AppendToGatewayUrl"
)

// Response target suffixes appended to the request's response URI.
const (
	// SuffixOnResult marks a successful response body.
	SuffixOnResult = "/onResult"

	// SuffixOnStatus marks an error response body.
	SuffixOnStatus = "/onStatus"
)

// unknownLength is written for header and body length fields. Computing
// real lengths would require buffering each value twice; every consumer
// tolerates the unknown sentinel.
const unknownLength int32 = -1

// -------------------------------------------------------------------------
// Envelope Entities — AMF0 spec Section 4
// -------------------------------------------------------------------------

// Packet is a framed AMF envelope: version, headers, bodies
// (AMF0 spec Section 4.1).
type Packet struct {
	// Version selects the body value codec: EncodingAMF0, EncodingFMS
	// (treated as AMF0), or EncodingAMF3.
	Version uint16

	Headers []Header
	Bodies  []Body
}

// Header is one envelope header (AMF0 spec Section 4.2).
type Header struct {
	Name           string
	MustUnderstand bool
	Data           Value
}

// Body is one envelope body (AMF0 spec Section 4.3).
type Body struct {
	TargetURI   string
	ResponseURI string
	Data        Value
}

// BodyEncodeError reports which body failed to encode, letting the
// dispatcher substitute an error payload and retry the packet.
type BodyEncodeError struct {
	Index int
	Err   error
}

func (e *BodyEncodeError) Error() string {
	return fmt.Sprintf("encode body %d: %v", e.Index, e.Err)
}

func (e *BodyEncodeError) Unwrap() error { return e.Err }

// -------------------------------------------------------------------------
// ReadPacket
// -------------------------------------------------------------------------

// ReadPacket decodes a complete AMF envelope. Header and body values are
// AMF0 at the top level; AMF3 payloads arrive through the AVM+ escape
// marker. One AMF0 reference table spans the whole packet; each escape
// gets fresh AMF3 tables.
//
// Any decoding failure is fatal for the packet.
func ReadPacket(data []byte, registry *TypeRegistry) (*Packet, error) {
	r := NewReader(data)
	dec := NewAMF0Decoder(r, registry)

	version, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("read packet version: %w", err)
	}
	switch version {
	case EncodingAMF0, EncodingFMS, EncodingAMF3:
	default:
		return nil, fmt.Errorf("packet version 0x%04X: %w", version, ErrBadVersion)
	}

	pkt := &Packet{Version: version}

	headerCount, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("read header count: %w", err)
	}
	for i := uint16(0); i < headerCount; i++ {
		h, err := readHeader(r, dec)
		if err != nil {
			return nil, fmt.Errorf("read header %d: %w", i, err)
		}
		pkt.Headers = append(pkt.Headers, h)
	}

	bodyCount, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("read body count: %w", err)
	}
	for i := uint16(0); i < bodyCount; i++ {
		b, err := readBody(r, dec)
		if err != nil {
			return nil, fmt.Errorf("read body %d: %w", i, err)
		}
		pkt.Bodies = append(pkt.Bodies, b)
	}

	return pkt, nil
}

func readHeader(r *Reader, dec *AMF0Decoder) (Header, error) {
	name, err := r.ReadUTF()
	if err != nil {
		return Header{}, err
	}
	mu, err := r.ReadUint8()
	if err != nil {
		return Header{}, err
	}
	// Length field may be -1 (unknown); it is not trusted either way.
	if _, err := r.ReadInt32(); err != nil {
		return Header{}, err
	}
	data, err := dec.Decode()
	if err != nil {
		return Header{}, err
	}
	return Header{Name: name, MustUnderstand: mu != 0, Data: data}, nil
}

func readBody(r *Reader, dec *AMF0Decoder) (Body, error) {
	target, err := r.ReadUTF()
	if err != nil {
		return Body{}, err
	}
	response, err := r.ReadUTF()
	if err != nil {
		return Body{}, err
	}
	if _, err := r.ReadInt32(); err != nil {
		return Body{}, err
	}
	data, err := dec.Decode()
	if err != nil {
		return Body{}, err
	}
	return Body{TargetURI: target, ResponseURI: response, Data: data}, nil
}

// -------------------------------------------------------------------------
// WritePacket
// -------------------------------------------------------------------------

// WritePacket encodes a complete AMF envelope. Headers are always AMF0;
// body values follow the packet version, escaping to AMF3 when the
// version is EncodingAMF3. Length fields are written as -1.
//
// A body value that fails to encode is reported as *BodyEncodeError so
// the caller can substitute an error payload. Bytes already written for
// the failed packet are discarded by the caller (a fresh call builds a
// fresh buffer).
func WritePacket(pkt *Packet, registry *TypeRegistry) ([]byte, error) {
	w := NewWriter()
	enc := NewAMF0Encoder(w, registry)

	w.WriteUint16(pkt.Version)

	w.WriteUint16(uint16(len(pkt.Headers)))
	for i, h := range pkt.Headers {
		if err := writeHeader(w, enc, h); err != nil {
			return nil, fmt.Errorf("write header %d: %w", i, err)
		}
	}

	w.WriteUint16(uint16(len(pkt.Bodies)))
	for i, b := range pkt.Bodies {
		if err := writeBody(w, enc, b, pkt.Version); err != nil {
			return nil, &BodyEncodeError{Index: i, Err: err}
		}
	}

	return w.Bytes(), nil
}

func writeHeader(w *Writer, enc *AMF0Encoder, h Header) error {
	if err := w.WriteUTF(h.Name); err != nil {
		return err
	}
	if h.MustUnderstand {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	w.WriteInt32(unknownLength)
	return enc.Encode(h.Data)
}

func writeBody(w *Writer, enc *AMF0Encoder, b Body, version uint16) error {
	if err := w.WriteUTF(b.TargetURI); err != nil {
		return err
	}
	if err := w.WriteUTF(b.ResponseURI); err != nil {
		return err
	}
	w.WriteInt32(unknownLength)
	if version == EncodingAMF3 {
		return enc.EncodeAMF3(b.Data)
	}
	return enc.Encode(b.Data)
}

package amf

import "errors"

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

// Sentinel errors for decoding failures. Any of these is fatal for the
// packet being decoded: a malformed stream cannot be resynchronized.
var (
	// ErrTruncated indicates the stream ended inside a value.
	ErrTruncated = errors.New("truncated input")

	// ErrUnknownMarker indicates an unrecognized or reserved type marker.
	ErrUnknownMarker = errors.New("unknown type marker")

	// ErrBadReference indicates a reference index beyond the current
	// reference table.
	ErrBadReference = errors.New("reference index out of range")

	// ErrBadVersion indicates an envelope version other than AMF0, AMF3,
	// or the FMS sentinel (AMF0 spec Section 4.1).
	ErrBadVersion = errors.New("unknown envelope version")

	// ErrBadUTF8 indicates string bytes that are not valid UTF-8.
	ErrBadUTF8 = errors.New("invalid UTF-8 in string")

	// ErrExternalizableUnknown indicates an externalizable trait whose
	// alias has no registered Go type. The body encoding is owned by the
	// class, so an unknown alias cannot be skipped.
	ErrExternalizableUnknown = errors.New("externalizable alias not registered")
)

// Sentinel errors for encoding failures. These abort the value being
// encoded but are recoverable per body at the envelope layer.
var (
	// ErrUnsupportedValue indicates a Go value with no AMF encoding.
	ErrUnsupportedValue = errors.New("unsupported value type")

	// ErrIntegerRange indicates a value outside the U29 payload range
	// where widening to double is not permitted (vector lengths,
	// reference indices, string lengths).
	ErrIntegerRange = errors.New("integer exceeds U29 range")

	// ErrStringTooLong indicates a string beyond the u16 length prefix
	// in a context that does not permit long-string promotion.
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")
)

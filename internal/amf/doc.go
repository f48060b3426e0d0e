// Package amf implements the AMF0 and AMF3 binary codecs
// (Adobe AMF0 spec, December 2007; AMF3 spec, January 2013).
//
// This includes the primitive big-endian stream, the envelope (packet)
// framing, both value codecs with their per-packet reference tables, and
// the wire-alias type registry used to map ActionScript class names onto
// registered Go types.
//
// All codec state lives for a single packet. Decoders and encoders are not
// safe for concurrent use; callers that process packets in parallel run
// one codec instance per packet.
package amf

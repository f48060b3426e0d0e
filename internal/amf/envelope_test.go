package amf_test

import (
	"errors"
	"testing"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// -------------------------------------------------------------------------
// Framing
// -------------------------------------------------------------------------

// TestEnvelopeFraming verifies the byte budget: version(2) +
// headerCount(2) + bodyCount(2) + per-body target/response/length/value.
func TestEnvelopeFraming(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 3} {
		pkt := &amf.Packet{Version: amf.EncodingAMF0}
		for i := 0; i < n; i++ {
			pkt.Bodies = append(pkt.Bodies, amf.Body{
				TargetURI:   "a",
				ResponseURI: "b",
				Data:        nil,
			})
		}

		data, err := amf.WritePacket(pkt, nil)
		if err != nil {
			t.Fatal(err)
		}

		// Each body: 2+1 target, 2+1 response, 4 length, 1 null marker.
		want := 6 + n*11
		if len(data) != want {
			t.Errorf("%d bodies: %d bytes, want %d", n, len(data), want)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	pkt := &amf.Packet{
		Version: amf.EncodingAMF0,
		Headers: []amf.Header{{
			Name:           "TestHeader",
			MustUnderstand: true,
			Data:           "hv",
		}},
		Bodies: []amf.Body{
			{TargetURI: "Svc.m", ResponseURI: "/1", Data: amf.NewArray(1.0, "x")},
			{TargetURI: "Svc.n", ResponseURI: "/2", Data: nil},
		},
	}

	data, err := amf.WritePacket(pkt, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := amf.ReadPacket(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got.Version != amf.EncodingAMF0 {
		t.Errorf("version = %d", got.Version)
	}
	if len(got.Headers) != 1 || got.Headers[0].Name != "TestHeader" ||
		!got.Headers[0].MustUnderstand || got.Headers[0].Data != "hv" {
		t.Errorf("headers = %#v", got.Headers)
	}
	if len(got.Bodies) != 2 || got.Bodies[0].TargetURI != "Svc.m" ||
		got.Bodies[1].ResponseURI != "/2" {
		t.Errorf("bodies = %#v", got.Bodies)
	}
	arr, ok := got.Bodies[0].Data.(*amf.Array)
	if !ok || len(arr.Dense) != 2 || arr.Dense[1] != "x" {
		t.Errorf("body 0 data = %#v", got.Bodies[0].Data)
	}
}

// TestEnvelopeAMF3Bodies verifies version-3 packets escape body values
// to AMF3 and reproduce AMF3-only shapes.
func TestEnvelopeAMF3Bodies(t *testing.T) {
	t.Parallel()

	pkt := &amf.Packet{
		Version: amf.EncodingAMF3,
		Bodies: []amf.Body{{
			TargetURI:   "null",
			ResponseURI: "/1",
			Data:        amf.ByteArray{9, 8, 7},
		}},
	}

	data, err := amf.WritePacket(pkt, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := amf.ReadPacket(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Bodies[0].Data.(amf.ByteArray); !ok {
		t.Errorf("body data = %#v", got.Bodies[0].Data)
	}
}

// -------------------------------------------------------------------------
// Versions
// -------------------------------------------------------------------------

func TestEnvelopeVersions(t *testing.T) {
	t.Parallel()

	// FMS envelopes are accepted and treated as AMF0.
	fms := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	if pkt, err := amf.ReadPacket(fms, nil); err != nil || pkt.Version != amf.EncodingFMS {
		t.Errorf("fms = %v, %v", pkt, err)
	}

	// Truly unknown versions are fatal.
	bad := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x00}
	if _, err := amf.ReadPacket(bad, nil); !errors.Is(err, amf.ErrBadVersion) {
		t.Errorf("unknown version = %v, want ErrBadVersion", err)
	}
}

func TestEnvelopeTruncated(t *testing.T) {
	t.Parallel()

	if _, err := amf.ReadPacket([]byte{0x00}, nil); !errors.Is(err, amf.ErrTruncated) {
		t.Errorf("one byte = %v, want ErrTruncated", err)
	}

	// Body count promising more bodies than present.
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	if _, err := amf.ReadPacket(data, nil); !errors.Is(err, amf.ErrTruncated) {
		t.Errorf("missing bodies = %v, want ErrTruncated", err)
	}
}

// -------------------------------------------------------------------------
// Body Encode Errors
// -------------------------------------------------------------------------

// unencodable has no AMF representation.
type unencodable chan int

func TestEnvelopeBodyEncodeError(t *testing.T) {
	t.Parallel()

	pkt := &amf.Packet{
		Version: amf.EncodingAMF0,
		Bodies: []amf.Body{
			{TargetURI: "a", ResponseURI: "b", Data: nil},
			{TargetURI: "c", ResponseURI: "d", Data: unencodable(nil)},
		},
	}

	_, err := amf.WritePacket(pkt, nil)
	var bodyErr *amf.BodyEncodeError
	if !errors.As(err, &bodyErr) {
		t.Fatalf("err = %v, want BodyEncodeError", err)
	}
	if bodyErr.Index != 1 {
		t.Errorf("failed index = %d, want 1", bodyErr.Index)
	}
	if !errors.Is(err, amf.ErrUnsupportedValue) {
		t.Errorf("cause = %v, want ErrUnsupportedValue", err)
	}
}

package amf_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// encode0 encodes one value with a fresh AMF0 encoder.
func encode0(t *testing.T, reg *amf.TypeRegistry, v amf.Value) []byte {
	t.Helper()
	w := amf.NewWriter()
	if err := amf.NewAMF0Encoder(w, reg).Encode(v); err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	return w.Bytes()
}

// decode0 decodes one value with a fresh AMF0 decoder.
func decode0(t *testing.T, reg *amf.TypeRegistry, data []byte) amf.Value {
	t.Helper()
	v, err := amf.NewAMF0Decoder(amf.NewReader(data), reg).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// -------------------------------------------------------------------------
// TestAMF0StrictArrayGolden — AMF0 spec Section 2.12
// -------------------------------------------------------------------------

func TestAMF0StrictArrayGolden(t *testing.T) {
	t.Parallel()

	in := amf.NewArray(1.0, 2.0, 3.0)
	want := []byte{
		0x0A,                   // strict array marker
		0x00, 0x00, 0x00, 0x03, // length 3
		0x00, 0x3F, 0xF0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 1.0
		0x00, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 2.0
		0x00, 0x40, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 3.0
	}
	if got := encode0(t, nil, in); !bytes.Equal(got, want) {
		t.Errorf("encoded =\n% X\nwant\n% X", got, want)
	}
}

// -------------------------------------------------------------------------
// TestAMF0RoundTrip
// -------------------------------------------------------------------------

func TestAMF0RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_721_000_000_123).UTC()

	tests := []struct {
		name string
		in   amf.Value
		want amf.Value
	}{
		{"null", nil, nil},
		{"undefined", amf.Undefined{}, amf.Undefined{}},
		{"bool", true, true},
		{"number", 12.5, 12.5},
		{"integer becomes number", int32(7), 7.0},
		{"string", "héllo", "héllo"},
		{"date", now, now},
		{"xml document", amf.XMLDocument("<a/>"), amf.XMLDocument("<a/>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := decode0(t, nil, encode0(t, nil, tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("round trip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAMF0LongStringPromotion(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 70_000)
	data := encode0(t, nil, long)
	if data[0] != 0x0C {
		t.Fatalf("marker = 0x%02X, want long string 0x0C", data[0])
	}
	if got := decode0(t, nil, data); got != long {
		t.Error("long string round trip mismatch")
	}
}

func TestAMF0ObjectRoundTrip(t *testing.T) {
	t.Parallel()

	in := amf.NewObject()
	in.Dynamic.Set("name", "ada")
	in.Dynamic.Set("age", 36.0)

	got, ok := decode0(t, nil, encode0(t, nil, in)).(*amf.Object)
	if !ok {
		t.Fatal("not an object")
	}
	if v, _ := got.Field("name"); v != "ada" {
		t.Errorf("name = %#v", v)
	}
	if v, _ := got.Field("age"); v != 36.0 {
		t.Errorf("age = %#v", v)
	}
}

// TestAMF0UnderscoreKeysSkipped verifies the private-field convention:
// keys beginning with an underscore are dropped on write.
func TestAMF0UnderscoreKeysSkipped(t *testing.T) {
	t.Parallel()

	in := amf.NewObject()
	in.Dynamic.Set("public", 1.0)
	in.Dynamic.Set("_private", 2.0)

	got := decode0(t, nil, encode0(t, nil, in)).(*amf.Object)
	if _, ok := got.Field("_private"); ok {
		t.Error("_private survived encoding")
	}
	if _, ok := got.Field("public"); !ok {
		t.Error("public was dropped")
	}
}

// -------------------------------------------------------------------------
// Array Tie-Break on Write
// -------------------------------------------------------------------------

func TestAMF0ArrayTieBreak(t *testing.T) {
	t.Parallel()

	dense := amf.NewArray(1.0, 2.0)

	sparse := amf.NewArray()
	sparse.Assoc.Set("0", "a")
	sparse.Assoc.Set("5", "b")

	mixed := amf.NewArray(1.0)
	mixed.Assoc.Set("name", "x")

	tests := []struct {
		name   string
		in     *amf.Array
		marker uint8
	}{
		{"dense is strict array", dense, 0x0A},
		{"sparse numeric is ecma array", sparse, 0x08},
		{"non-numeric key is object", mixed, 0x03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := encode0(t, nil, tt.in)
			if data[0] != tt.marker {
				t.Errorf("marker = 0x%02X, want 0x%02X", data[0], tt.marker)
			}
		})
	}
}

func TestAMF0EcmaArrayRoundTrip(t *testing.T) {
	t.Parallel()

	in := amf.NewArray()
	in.Assoc.Set("0", "a")
	in.Assoc.Set("2", "c")

	got, ok := decode0(t, nil, encode0(t, nil, in)).(*amf.Array)
	if !ok {
		t.Fatal("not an array")
	}
	if v, _ := got.Assoc.Get("2"); v != "c" {
		t.Errorf("assoc 2 = %#v", v)
	}
}

// -------------------------------------------------------------------------
// References
// -------------------------------------------------------------------------

func TestAMF0Reference(t *testing.T) {
	t.Parallel()

	shared := amf.NewObject()
	shared.Dynamic.Set("k", 1.0)
	in := amf.NewArray(shared, shared)

	data := encode0(t, nil, in)

	got := decode0(t, nil, data).(*amf.Array)
	if got.Dense[0].(*amf.Object) != got.Dense[1].(*amf.Object) {
		t.Error("positions do not share identity after decode")
	}
	if n := bytes.Count(data, []byte{0x07}); n == 0 {
		t.Error("no reference marker emitted")
	}
}

// -------------------------------------------------------------------------
// Typed Objects
// -------------------------------------------------------------------------

func TestAMF0TypedObjectRoundTrip(t *testing.T) {
	t.Parallel()

	reg := newContactRegistry(t)
	in := &contactElt{ID: 3, Name: "bob"}

	data := encode0(t, reg, in)
	if data[0] != 0x10 {
		t.Fatalf("marker = 0x%02X, want typed object 0x10", data[0])
	}

	got, ok := decode0(t, reg, data).(*contactElt)
	if !ok {
		t.Fatalf("decoded into %T", got)
	}
	if got.ID != 3 || got.Name != "bob" {
		t.Errorf("decoded = %+v", got)
	}
}

// -------------------------------------------------------------------------
// AVM+ Escape
// -------------------------------------------------------------------------

func TestAMF0EscapeToAMF3(t *testing.T) {
	t.Parallel()

	// Byte arrays have no AMF0 form: they must travel via the escape.
	in := amf.ByteArray{1, 2, 3}
	data := encode0(t, nil, in)
	if data[0] != 0x11 {
		t.Fatalf("marker = 0x%02X, want avmplus 0x11", data[0])
	}

	got, ok := decode0(t, nil, data).(amf.ByteArray)
	if !ok || !bytes.Equal(got, in) {
		t.Errorf("round trip = %#v", got)
	}
}

func TestAMF0ExplicitEscape(t *testing.T) {
	t.Parallel()

	w := amf.NewWriter()
	enc := amf.NewAMF0Encoder(w, nil)
	if err := enc.EncodeAMF3("amf3 payload"); err != nil {
		t.Fatal(err)
	}

	if got := decode0(t, nil, w.Bytes()); got != "amf3 payload" {
		t.Errorf("decoded = %#v", got)
	}
}

func TestAMF0UnknownMarker(t *testing.T) {
	t.Parallel()

	if _, err := amf.NewAMF0Decoder(amf.NewReader([]byte{0x42}), nil).Decode(); err == nil {
		t.Fatal("unknown marker decoded successfully")
	}
}

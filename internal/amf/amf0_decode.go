package amf

import (
	"fmt"
	"reflect"
)

// -------------------------------------------------------------------------
// AMF0Decoder — AMF0 spec Section 2
// -------------------------------------------------------------------------

// AMF0Decoder reads AMF0 values from a Reader. AMF0 carries a single
// object reference table (AMF0 spec Section 2.9) covering anonymous
// objects, typed objects, and both array forms. The AVM+ escape marker
// hands the rest of the current value to a fresh AMF3 decoder
// (AMF0 spec Section 3.1).
type AMF0Decoder struct {
	r        *Reader
	registry *TypeRegistry
	objects  []Value
}

// NewAMF0Decoder returns a decoder over r resolving wire aliases
// through registry.
func NewAMF0Decoder(r *Reader, registry *TypeRegistry) *AMF0Decoder {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &AMF0Decoder{r: r, registry: registry}
}

// Decode reads one AMF0 value.
func (d *AMF0Decoder) Decode() (Value, error) {
	marker, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}

	switch marker {
	case amf0NumberMarker:
		return d.r.ReadFloat64()
	case amf0BooleanMarker:
		b, err := d.r.ReadUint8()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case amf0StringMarker:
		return d.r.ReadUTF()
	case amf0ObjectMarker:
		return d.readObject("")
	case amf0NullMarker:
		return nil, nil
	case amf0UndefinedMarker:
		return Undefined{}, nil
	case amf0ReferenceMarker:
		return d.readReference()
	case amf0EcmaArrayMarker:
		return d.readEcmaArray()
	case amf0StrictArrayMarker:
		return d.readStrictArray()
	case amf0DateMarker:
		return d.readDate()
	case amf0LongStringMarker:
		return d.r.ReadLongUTF()
	case amf0XMLDocumentMarker:
		s, err := d.r.ReadLongUTF()
		if err != nil {
			return nil, err
		}
		return XMLDocument(s), nil
	case amf0TypedObjectMarker:
		alias, err := d.r.ReadUTF()
		if err != nil {
			return nil, err
		}
		return d.readObject(alias)
	case amf0AVMPlusMarker:
		// Escape to AMF3 with fresh reference tables
		// (AMF0 spec Section 3.1).
		return NewAMF3Decoder(d.r, d.registry).Decode()
	default:
		return nil, fmt.Errorf("amf0 marker 0x%02X at offset %d: %w",
			marker, d.r.Offset()-1, ErrUnknownMarker)
	}
}

// readReference resolves a u16 index into the object reference table
// (AMF0 spec Section 2.9).
func (d *AMF0Decoder) readReference() (Value, error) {
	idx, err := d.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(idx) >= len(d.objects) {
		return nil, fmt.Errorf("amf0 reference %d of %d: %w",
			idx, len(d.objects), ErrBadReference)
	}
	return d.objects[idx], nil
}

// readPairs reads object-body name/value pairs until the empty name
// followed by the OBJECT END marker (AMF0 spec Section 2.5).
func (d *AMF0Decoder) readPairs(set func(name string, v Value) error) error {
	for {
		name, err := d.r.ReadUTF()
		if err != nil {
			return err
		}
		if name == "" {
			end, err := d.r.ReadUint8()
			if err != nil {
				return err
			}
			if end != amf0ObjectEndMarker {
				return fmt.Errorf("expected object end, got 0x%02X: %w", end, ErrUnknownMarker)
			}
			return nil
		}
		v, err := d.Decode()
		if err != nil {
			return err
		}
		if err := set(name, v); err != nil {
			return err
		}
	}
}

// readObject reads an anonymous (alias == "") or typed object body.
// Typed objects with a registered alias decode straight into the mapped
// Go type; unknown aliases decode into *Object with the alias recorded.
func (d *AMF0Decoder) readObject(alias string) (Value, error) {
	if alias != "" {
		if t, ok := d.registry.TypeFor(alias); ok {
			inst := reflect.New(t)
			d.objects = append(d.objects, inst.Interface())
			err := d.readPairs(func(name string, v Value) error {
				return setNamedField(inst, name, v)
			})
			if err != nil {
				return nil, err
			}
			return inst.Interface(), nil
		}
	}

	var obj *Object
	if alias == "" {
		obj = NewObject()
	} else {
		obj = NewTypedObject(alias)
	}
	d.objects = append(d.objects, obj)
	err := d.readPairs(func(name string, v Value) error {
		obj.Dynamic.Set(name, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// readEcmaArray reads an ECMA array (AMF0 spec Section 2.10): a u32
// nominal length followed by object-body pairs.
func (d *AMF0Decoder) readEcmaArray() (Value, error) {
	if _, err := d.r.ReadUint32(); err != nil {
		return nil, err
	}
	arr := &Array{}
	d.objects = append(d.objects, arr)
	err := d.readPairs(func(name string, v Value) error {
		arr.Assoc.Set(name, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return arr, nil
}

// readStrictArray reads a strict array (AMF0 spec Section 2.12).
func (d *AMF0Decoder) readStrictArray() (Value, error) {
	n, err := d.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(d.r.Remaining()) {
		return nil, fmt.Errorf("strict array length %d with %d bytes left: %w",
			n, d.r.Remaining(), ErrTruncated)
	}
	arr := &Array{Dense: make([]Value, 0, n)}
	d.objects = append(d.objects, arr)
	for i := uint32(0); i < n; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		arr.Dense = append(arr.Dense, v)
	}
	return arr, nil
}

// readDate reads a date (AMF0 spec Section 2.13): milliseconds since
// the epoch as a double, then a time zone field that is always zero and
// is ignored.
func (d *AMF0Decoder) readDate() (Value, error) {
	ms, err := d.r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	if _, err := d.r.ReadUint16(); err != nil {
		return nil, err
	}
	return timeFromMillis(ms), nil
}

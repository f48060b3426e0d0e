package amf

import (
	"fmt"
	"reflect"
)

// -------------------------------------------------------------------------
// AMF3Decoder — AMF3 spec Section 3
// -------------------------------------------------------------------------

// AMF3Decoder reads AMF3 values from a Reader. It owns the three AMF3
// reference tables (strings, objects, traits), which live for the
// decoder's lifetime. The envelope codec creates a fresh decoder at each
// AVM+ escape, giving every escape fresh tables (AMF0 spec Section 3.1).
type AMF3Decoder struct {
	r        *Reader
	registry *TypeRegistry

	strings []string
	objects []Value
	traits  []*Trait
}

// NewAMF3Decoder returns a decoder over r resolving wire aliases
// through registry. A nil registry decodes every typed object into an
// anonymous *Object.
func NewAMF3Decoder(r *Reader, registry *TypeRegistry) *AMF3Decoder {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &AMF3Decoder{r: r, registry: registry}
}

// Reader exposes the underlying stream for externalizable bodies.
func (d *AMF3Decoder) Reader() *Reader { return d.r }

// Decode reads one AMF3 value.
func (d *AMF3Decoder) Decode() (Value, error) {
	marker, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}

	switch marker {
	case amf3UndefinedMarker:
		return Undefined{}, nil
	case amf3NullMarker:
		return nil, nil
	case amf3FalseMarker:
		return false, nil
	case amf3TrueMarker:
		return true, nil
	case amf3IntegerMarker:
		return d.readI29()
	case amf3DoubleMarker:
		return d.r.ReadFloat64()
	case amf3StringMarker:
		return d.readString()
	case amf3XMLDocumentMarker:
		return d.readXML(true)
	case amf3DateMarker:
		return d.readDate()
	case amf3ArrayMarker:
		return d.readArray()
	case amf3ObjectMarker:
		return d.readObject()
	case amf3XMLMarker:
		return d.readXML(false)
	case amf3ByteArrayMarker:
		return d.readByteArray()
	case amf3VectorIntMarker:
		return d.readVector(VectorInt)
	case amf3VectorUintMarker:
		return d.readVector(VectorUint)
	case amf3VectorDoubleMarker:
		return d.readVector(VectorDouble)
	case amf3VectorObjectMarker:
		return d.readVector(VectorObject)
	case amf3DictionaryMarker:
		return d.readDictionary()
	default:
		return nil, fmt.Errorf("amf3 marker 0x%02X at offset %d: %w",
			marker, d.r.Offset()-1, ErrUnknownMarker)
	}
}

// readU29 reads a variable-length unsigned 29-bit integer
// (AMF3 spec Section 1.3.1). Bytes 1-3 use the high bit as continuation;
// byte 4 contributes a full 8 bits.
func (d *AMF3Decoder) readU29() (uint32, error) {
	var v uint32
	for i := 0; i < 3; i++ {
		b, err := d.r.ReadUint8()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			return v<<7 | uint32(b), nil
		}
		v = v<<7 | uint32(b&0x7F)
	}
	b, err := d.r.ReadUint8()
	if err != nil {
		return 0, err
	}
	return v<<8 | uint32(b), nil
}

// readI29 reads a U29 and sign-extends it from 29 bits
// (AMF3 spec Section 3.5).
func (d *AMF3Decoder) readI29() (int32, error) {
	u, err := d.readU29()
	if err != nil {
		return 0, err
	}
	if u&0x10000000 != 0 {
		u |= 0xE0000000 // sign extension
	}
	return int32(u), nil
}

// refHeader reads a U29 header and splits off the reference bit:
// inline=false means payload is a reference index for the caller to
// resolve in its table; inline=true means an inline value, with payload
// carrying the remaining header bits.
func (d *AMF3Decoder) refHeader() (payload uint32, inline bool, err error) {
	u, err := d.readU29()
	if err != nil {
		return 0, false, err
	}
	return u >> 1, u&1 == 1, nil
}

// objectRef resolves an object reference index.
func (d *AMF3Decoder) objectRef(idx uint32) (Value, error) {
	if int(idx) >= len(d.objects) {
		return nil, fmt.Errorf("object reference %d of %d: %w",
			idx, len(d.objects), ErrBadReference)
	}
	return d.objects[idx], nil
}

// remember appends v to the object reference table and returns it.
func (d *AMF3Decoder) remember(v Value) Value {
	d.objects = append(d.objects, v)
	return v
}

// readString reads a string header and payload (AMF3 spec Section 3.7).
// Non-empty strings are interned in the string table; the empty string
// never is.
func (d *AMF3Decoder) readString() (string, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return "", err
	}
	if !inline {
		if int(n) >= len(d.strings) {
			return "", fmt.Errorf("string reference %d of %d: %w",
				n, len(d.strings), ErrBadReference)
		}
		return d.strings[n], nil
	}
	if n == 0 {
		return "", nil
	}
	s, err := d.r.readUTFBytes(int(n))
	if err != nil {
		return "", err
	}
	d.strings = append(d.strings, s)
	return s, nil
}

// readDate reads a date (AMF3 spec Section 3.9): a double of
// milliseconds since the epoch, UTC.
func (d *AMF3Decoder) readDate() (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}
	ms, err := d.r.ReadFloat64()
	if err != nil {
		return nil, err
	}
	return d.remember(timeFromMillis(ms)), nil
}

// readByteArray reads a byte array (AMF3 spec Section 3.13). The bytes
// are copied out of the stream buffer.
func (d *AMF3Decoder) readByteArray() (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}
	raw, err := d.r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	b := make(ByteArray, len(raw))
	copy(b, raw)
	return d.remember(b), nil
}

// readXML reads an XML document (doc=true, AMF3 spec Section 3.8) or an
// E4X XML value (AMF3 spec Section 3.12).
func (d *AMF3Decoder) readXML(doc bool) (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}
	s, err := d.r.readUTFBytes(int(n))
	if err != nil {
		return nil, err
	}
	if doc {
		return d.remember(XMLDocument(s)), nil
	}
	return d.remember(XML(s)), nil
}

// readArray reads an array (AMF3 spec Section 3.11): an associative
// segment terminated by the empty string, then the dense segment.
func (d *AMF3Decoder) readArray() (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}

	// Every dense element costs at least one byte; a count beyond the
	// remaining stream is a truncation, not an allocation request.
	if int(n) > d.r.Remaining() {
		return nil, fmt.Errorf("array length %d with %d bytes left: %w",
			n, d.r.Remaining(), ErrTruncated)
	}

	arr := &Array{}
	d.remember(arr)

	for {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		arr.Assoc.Set(name, v)
	}

	arr.Dense = make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		arr.Dense = append(arr.Dense, v)
	}
	return arr, nil
}

// readVector reads a typed vector (AMF3 spec Section 3.14).
func (d *AMF3Decoder) readVector(kind VectorKind) (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}

	if int(n) > d.r.Remaining() {
		return nil, fmt.Errorf("vector length %d with %d bytes left: %w",
			n, d.r.Remaining(), ErrTruncated)
	}

	fixed, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}

	vec := &Vector{Kind: kind, Fixed: fixed != 0}
	d.remember(vec)

	if kind == VectorObject {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		vec.TypeName = name
	}

	for i := uint32(0); i < n; i++ {
		switch kind {
		case VectorInt:
			e, err := d.r.ReadInt32()
			if err != nil {
				return nil, err
			}
			vec.Ints = append(vec.Ints, e)
		case VectorUint:
			e, err := d.r.ReadUint32()
			if err != nil {
				return nil, err
			}
			vec.Uints = append(vec.Uints, e)
		case VectorDouble:
			e, err := d.r.ReadFloat64()
			if err != nil {
				return nil, err
			}
			vec.Doubles = append(vec.Doubles, e)
		case VectorObject:
			e, err := d.Decode()
			if err != nil {
				return nil, err
			}
			vec.Objects = append(vec.Objects, e)
		}
	}
	return vec, nil
}

// readDictionary reads a dictionary (AMF3 spec Section 3.15).
func (d *AMF3Decoder) readDictionary() (Value, error) {
	n, inline, err := d.refHeader()
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n)
	}

	weak, err := d.r.ReadUint8()
	if err != nil {
		return nil, err
	}

	dict := &Dictionary{WeakKeys: weak != 0}
	d.remember(dict)

	for i := uint32(0); i < n; i++ {
		k, err := d.Decode()
		if err != nil {
			return nil, err
		}
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		dict.Add(k, v)
	}
	return dict, nil
}

// readObject reads an object (AMF3 spec Section 3.12): trait resolution,
// then the externalizable, sealed, and dynamic member forms.
func (d *AMF3Decoder) readObject() (Value, error) {
	u, err := d.readU29()
	if err != nil {
		return nil, err
	}

	if u&1 == 0 {
		return d.objectRef(u >> 1)
	}

	trait, err := d.resolveTrait(u)
	if err != nil {
		return nil, err
	}

	if trait.Externalizable {
		return d.readExternalizable(trait)
	}

	// Registered alias: decode straight into the mapped Go type.
	if t, ok := d.registry.TypeFor(trait.Alias); ok {
		return d.readTyped(trait, t)
	}
	return d.readAnonymous(trait)
}

// resolveTrait reads a trait reference or an inline trait from the
// object header u (AMF3 spec Section 3.12 U29O-traits).
func (d *AMF3Decoder) resolveTrait(u uint32) (*Trait, error) {
	if u&2 == 0 {
		idx := u >> 2
		if int(idx) >= len(d.traits) {
			return nil, fmt.Errorf("trait reference %d of %d: %w",
				idx, len(d.traits), ErrBadReference)
		}
		return d.traits[idx], nil
	}

	trait := &Trait{
		Externalizable: u&4 != 0,
		Dynamic:        u&8 != 0,
	}
	alias, err := d.readString()
	if err != nil {
		return nil, err
	}
	trait.Alias = alias

	count := u >> 4
	trait.SealedNames = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		trait.SealedNames = append(trait.SealedNames, name)
	}

	d.traits = append(d.traits, trait)
	return trait, nil
}

// readExternalizable delegates the object body to the registered class.
func (d *AMF3Decoder) readExternalizable(trait *Trait) (Value, error) {
	t, ok := d.registry.TypeFor(trait.Alias)
	if !ok {
		return nil, fmt.Errorf("alias %q: %w", trait.Alias, ErrExternalizableUnknown)
	}
	inst := reflect.New(t)
	ext, ok := inst.Interface().(Externalizable)
	if !ok {
		return nil, fmt.Errorf("alias %q maps to %s which does not implement Externalizable: %w",
			trait.Alias, t, ErrExternalizableUnknown)
	}
	d.remember(inst.Interface())
	if err := ext.ReadExternal(d); err != nil {
		return nil, fmt.Errorf("read external %q: %w", trait.Alias, err)
	}
	return inst.Interface(), nil
}

// readTyped decodes sealed and dynamic members straight into a new
// instance of the registered Go type. The instance enters the reference
// table before any member is read so cyclic graphs resolve.
func (d *AMF3Decoder) readTyped(trait *Trait, t reflect.Type) (Value, error) {
	inst := reflect.New(t)
	d.remember(inst.Interface())

	for _, name := range trait.SealedNames {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		if err := setNamedField(inst, name, v); err != nil {
			return nil, fmt.Errorf("member %q of %q: %w", name, trait.Alias, err)
		}
	}

	if trait.Dynamic {
		for {
			name, err := d.readString()
			if err != nil {
				return nil, err
			}
			if name == "" {
				break
			}
			v, err := d.Decode()
			if err != nil {
				return nil, err
			}
			if err := setNamedField(inst, name, v); err != nil {
				return nil, fmt.Errorf("member %q of %q: %w", name, trait.Alias, err)
			}
		}
	}
	return inst.Interface(), nil
}

// readAnonymous decodes an object with no registered type into *Object,
// recording the wire alias on the trait.
func (d *AMF3Decoder) readAnonymous(trait *Trait) (Value, error) {
	obj := &Object{Trait: trait}
	d.remember(obj)

	obj.Sealed = make([]Value, 0, len(trait.SealedNames))
	for range trait.SealedNames {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		obj.Sealed = append(obj.Sealed, v)
	}

	if trait.Dynamic {
		for {
			name, err := d.readString()
			if err != nil {
				return nil, err
			}
			if name == "" {
				break
			}
			v, err := d.Decode()
			if err != nil {
				return nil, err
			}
			obj.Dynamic.Set(name, v)
		}
	}
	return obj, nil
}

package amf

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// -------------------------------------------------------------------------
// AMF3Encoder — AMF3 spec Section 3
// -------------------------------------------------------------------------

// AMF3Encoder writes AMF3 values to a Writer. Like the decoder it owns
// the three reference tables; the envelope codec creates a fresh encoder
// at each AVM+ escape.
//
// The object table is keyed by identity (pointer), not value equality:
// encoding the same *Object twice emits one inline instance and one
// reference marker, and cyclic graphs terminate because every inline
// composite enters the table before its members are written.
type AMF3Encoder struct {
	w        *Writer
	registry *TypeRegistry

	strings map[string]int

	// objects maps identity keys to table indices; objectCount tracks
	// the table length including entries with no usable identity (dates,
	// XML) so indices stay aligned with the read side.
	objects     map[any]int
	byteArrays  map[uintptr]int
	objectCount int

	traits []*Trait
}

// NewAMF3Encoder returns an encoder writing to w, resolving class
// aliases through registry.
func NewAMF3Encoder(w *Writer, registry *TypeRegistry) *AMF3Encoder {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &AMF3Encoder{
		w:          w,
		registry:   registry,
		strings:    make(map[string]int),
		objects:    make(map[any]int),
		byteArrays: make(map[uintptr]int),
	}
}

// Writer exposes the underlying stream for externalizable bodies.
func (e *AMF3Encoder) Writer() *Writer { return e.w }

// writeU29 writes a variable-length unsigned 29-bit integer
// (AMF3 spec Section 1.3.1).
func (e *AMF3Encoder) writeU29(v uint32) error {
	switch {
	case v < 0x80:
		e.w.WriteUint8(uint8(v))
	case v < 0x4000:
		e.w.WriteUint8(uint8(v>>7) | 0x80)
		e.w.WriteUint8(uint8(v & 0x7F))
	case v < 0x200000:
		e.w.WriteUint8(uint8(v>>14) | 0x80)
		e.w.WriteUint8(uint8(v>>7) | 0x80)
		e.w.WriteUint8(uint8(v & 0x7F))
	case v < 0x20000000:
		e.w.WriteUint8(uint8(v>>22) | 0x80)
		e.w.WriteUint8(uint8(v>>15) | 0x80)
		e.w.WriteUint8(uint8(v>>8) | 0x80)
		e.w.WriteUint8(uint8(v))
	default:
		return fmt.Errorf("u29 value %d: %w", v, ErrIntegerRange)
	}
	return nil
}

// writeStringValue writes a string header and payload without a type
// marker (AMF3 spec Section 3.7). Non-empty strings are interned; the
// empty string is always written inline and never enters the table.
func (e *AMF3Encoder) writeStringValue(s string) error {
	if s == "" {
		return e.writeU29(1)
	}
	if idx, ok := e.strings[s]; ok {
		return e.writeU29(uint32(idx) << 1)
	}
	if err := e.writeU29(uint32(len(s))<<1 | 1); err != nil {
		return err
	}
	e.w.WriteBytes([]byte(s))
	e.strings[s] = len(e.strings)
	return nil
}

// rememberObject assigns the next object table index to the identity
// key, or emits a reference when the key was seen before. A nil key
// claims the index without dedup (values with no identity).
func (e *AMF3Encoder) rememberObject(key any) (seen bool, idx int) {
	if key != nil {
		if idx, ok := e.objects[key]; ok {
			return true, idx
		}
		e.objects[key] = e.objectCount
	}
	e.objectCount++
	return false, 0
}

// writeObjectRef emits a reference marker header for table index idx.
func (e *AMF3Encoder) writeObjectRef(idx int) error {
	return e.writeU29(uint32(idx) << 1)
}

// Encode writes one AMF3 value, dispatching on the Go dynamic type.
func (e *AMF3Encoder) Encode(v Value) error {
	switch val := v.(type) {
	case nil:
		e.w.WriteUint8(amf3NullMarker)
		return nil
	case Undefined:
		e.w.WriteUint8(amf3UndefinedMarker)
		return nil
	case bool:
		if val {
			e.w.WriteUint8(amf3TrueMarker)
		} else {
			e.w.WriteUint8(amf3FalseMarker)
		}
		return nil
	case int:
		return e.encodeInt(int64(val))
	case int8:
		return e.encodeInt(int64(val))
	case int16:
		return e.encodeInt(int64(val))
	case int32:
		return e.encodeInt(int64(val))
	case int64:
		return e.encodeInt(val)
	case uint:
		return e.encodeInt(int64(val))
	case uint8:
		return e.encodeInt(int64(val))
	case uint16:
		return e.encodeInt(int64(val))
	case uint32:
		return e.encodeInt(int64(val))
	case uint64:
		return e.encodeInt(int64(val))
	case float32:
		return e.encodeDouble(float64(val))
	case float64:
		return e.encodeDouble(val)
	case string:
		e.w.WriteUint8(amf3StringMarker)
		return e.writeStringValue(val)
	case time.Time:
		return e.encodeDate(val)
	case ByteArray:
		return e.encodeByteArray(val)
	case []byte:
		return e.encodeByteArray(ByteArray(val))
	case XMLDocument:
		return e.encodeXML(amf3XMLDocumentMarker, string(val))
	case XML:
		return e.encodeXML(amf3XMLMarker, string(val))
	case *Array:
		return e.encodeArray(val)
	case []Value:
		return e.encodeArray(&Array{Dense: val})
	case *Vector:
		return e.encodeVector(val)
	case *Dictionary:
		return e.encodeDictionary(val)
	case *Object:
		return e.encodeObject(val)
	case map[string]Value:
		return e.encodeStringMap(val)
	}

	// Registered or plain struct values encode as typed objects.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		return e.encodeStruct(v, rv)
	}
	if rv.Kind() == reflect.Struct {
		return e.encodeStruct(nil, rv)
	}
	if rv.Kind() == reflect.Slice {
		return e.encodeReflectedSlice(rv)
	}

	return fmt.Errorf("amf3 encode %T: %w", v, ErrUnsupportedValue)
}

// encodeInt writes an INTEGER when v fits the signed 29-bit range and
// widens to DOUBLE otherwise (AMF3 spec Section 3.5).
func (e *AMF3Encoder) encodeInt(v int64) error {
	if v < MinInt29 || v > MaxInt29 {
		return e.encodeDouble(float64(v))
	}
	e.w.WriteUint8(amf3IntegerMarker)
	return e.writeU29(uint32(v) & 0x1FFFFFFF)
}

func (e *AMF3Encoder) encodeDouble(v float64) error {
	e.w.WriteUint8(amf3DoubleMarker)
	e.w.WriteFloat64(v)
	return nil
}

func (e *AMF3Encoder) encodeDate(t time.Time) error {
	e.w.WriteUint8(amf3DateMarker)
	// Dates carry no usable identity once boxed; always inline.
	e.rememberObject(nil)
	if err := e.writeU29(1); err != nil {
		return err
	}
	e.w.WriteFloat64(epochMillis(t))
	return nil
}

func (e *AMF3Encoder) encodeByteArray(b ByteArray) error {
	e.w.WriteUint8(amf3ByteArrayMarker)
	var key uintptr
	if len(b) > 0 {
		key = uintptr(reflect.ValueOf(b).Pointer())
		if idx, ok := e.byteArrays[key]; ok {
			return e.writeObjectRef(idx)
		}
		e.byteArrays[key] = e.objectCount
	}
	e.rememberObject(nil)
	if err := e.writeU29(uint32(len(b))<<1 | 1); err != nil {
		return err
	}
	e.w.WriteBytes(b)
	return nil
}

func (e *AMF3Encoder) encodeXML(marker uint8, s string) error {
	e.w.WriteUint8(marker)
	e.rememberObject(nil)
	if err := e.writeU29(uint32(len(s))<<1 | 1); err != nil {
		return err
	}
	e.w.WriteBytes([]byte(s))
	return nil
}

func (e *AMF3Encoder) encodeArray(a *Array) error {
	e.w.WriteUint8(amf3ArrayMarker)
	if seen, idx := e.rememberObject(a); seen {
		return e.writeObjectRef(idx)
	}
	if err := e.writeU29(uint32(len(a.Dense))<<1 | 1); err != nil {
		return err
	}
	for _, name := range a.Assoc.Names() {
		if err := e.writeStringValue(name); err != nil {
			return err
		}
		v, _ := a.Assoc.Get(name)
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	if err := e.writeStringValue(""); err != nil {
		return err
	}
	for _, v := range a.Dense {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// encodeStringMap writes a Go map as a purely associative array with
// sorted keys for deterministic output.
func (e *AMF3Encoder) encodeStringMap(m map[string]Value) error {
	arr := &Array{}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		arr.Assoc.Set(k, m[k])
	}
	return e.encodeArray(arr)
}

// encodeReflectedSlice writes any non-[]Value slice as a dense array.
func (e *AMF3Encoder) encodeReflectedSlice(rv reflect.Value) error {
	dense := make([]Value, rv.Len())
	for i := range dense {
		dense[i] = rv.Index(i).Interface()
	}
	return e.encodeArray(&Array{Dense: dense})
}

func (e *AMF3Encoder) encodeVector(v *Vector) error {
	switch v.Kind {
	case VectorInt:
		e.w.WriteUint8(amf3VectorIntMarker)
	case VectorUint:
		e.w.WriteUint8(amf3VectorUintMarker)
	case VectorDouble:
		e.w.WriteUint8(amf3VectorDoubleMarker)
	case VectorObject:
		e.w.WriteUint8(amf3VectorObjectMarker)
	default:
		return fmt.Errorf("vector kind %d: %w", v.Kind, ErrUnsupportedValue)
	}

	if seen, idx := e.rememberObject(v); seen {
		return e.writeObjectRef(idx)
	}
	if err := e.writeU29(uint32(v.Len())<<1 | 1); err != nil {
		return err
	}
	if v.Fixed {
		e.w.WriteUint8(1)
	} else {
		e.w.WriteUint8(0)
	}

	switch v.Kind {
	case VectorInt:
		for _, n := range v.Ints {
			e.w.WriteInt32(n)
		}
	case VectorUint:
		for _, n := range v.Uints {
			e.w.WriteUint32(n)
		}
	case VectorDouble:
		for _, n := range v.Doubles {
			e.w.WriteFloat64(n)
		}
	case VectorObject:
		name := v.TypeName
		if name == "" {
			name = "*"
		}
		if err := e.writeStringValue(name); err != nil {
			return err
		}
		for _, o := range v.Objects {
			if err := e.Encode(o); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *AMF3Encoder) encodeDictionary(d *Dictionary) error {
	e.w.WriteUint8(amf3DictionaryMarker)
	if seen, idx := e.rememberObject(d); seen {
		return e.writeObjectRef(idx)
	}
	if err := e.writeU29(uint32(d.Len())<<1 | 1); err != nil {
		return err
	}
	if d.WeakKeys {
		e.w.WriteUint8(1)
	} else {
		e.w.WriteUint8(0)
	}
	for i := range d.Keys {
		if err := e.Encode(d.Keys[i]); err != nil {
			return err
		}
		if err := e.Encode(d.Values[i]); err != nil {
			return err
		}
	}
	return nil
}

// writeTrait interns and writes a trait: a trait reference when an equal
// trait was written before, the inline form otherwise
// (AMF3 spec Section 3.12 U29O-traits).
func (e *AMF3Encoder) writeTrait(trait *Trait) error {
	for i, t := range e.traits {
		if t.Equal(trait) {
			// inline object (bit 0) + trait reference (bit 1 clear).
			return e.writeU29(uint32(i)<<2 | 1)
		}
	}
	e.traits = append(e.traits, trait)

	header := uint32(len(trait.SealedNames))<<4 | 0x03
	if trait.Externalizable {
		header |= 0x04
	}
	if trait.Dynamic {
		header |= 0x08
	}
	if err := e.writeU29(header); err != nil {
		return err
	}
	if err := e.writeStringValue(trait.Alias); err != nil {
		return err
	}
	for _, name := range trait.SealedNames {
		if err := e.writeStringValue(name); err != nil {
			return err
		}
	}
	return nil
}

// encodeObject writes a generic *Object.
func (e *AMF3Encoder) encodeObject(o *Object) error {
	e.w.WriteUint8(amf3ObjectMarker)
	if seen, idx := e.rememberObject(o); seen {
		return e.writeObjectRef(idx)
	}
	if err := e.writeTrait(o.Trait); err != nil {
		return err
	}
	for _, v := range o.Sealed {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	if o.Trait.Dynamic {
		for _, name := range o.Dynamic.Names() {
			if err := e.writeStringValue(name); err != nil {
				return err
			}
			v, _ := o.Dynamic.Get(name)
			if err := e.Encode(v); err != nil {
				return err
			}
		}
		if err := e.writeStringValue(""); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct writes a Go struct as a typed object. The alias comes
// from the registry; unregistered structs encode anonymously. Types
// implementing Externalizable own their body encoding.
//
// key carries the pointer identity for the reference table, nil for
// struct values passed by value.
func (e *AMF3Encoder) encodeStruct(key any, rv reflect.Value) error {
	e.w.WriteUint8(amf3ObjectMarker)
	if seen, idx := e.rememberObject(key); seen {
		return e.writeObjectRef(idx)
	}

	iface := rv.Interface()
	alias, _ := e.registry.AliasFor(iface)

	if ext, ok := iface.(Externalizable); ok {
		trait := &Trait{Alias: alias, Externalizable: true}
		if err := e.writeTrait(trait); err != nil {
			return err
		}
		if err := ext.WriteExternal(e); err != nil {
			return fmt.Errorf("write external %q: %w", alias, err)
		}
		return nil
	}

	names, values := namedFieldValues(rv)
	trait := &Trait{Alias: alias, SealedNames: names}
	if err := e.writeTrait(trait); err != nil {
		return err
	}
	for _, v := range values {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

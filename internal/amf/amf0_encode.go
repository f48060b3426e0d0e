package amf

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// -------------------------------------------------------------------------
// AMF0Encoder — AMF0 spec Section 2
// -------------------------------------------------------------------------

// AMF0Encoder writes AMF0 values to a Writer, with a single
// identity-keyed object reference table. Values with no AMF0 encoding
// (byte arrays, vectors, dictionaries) are routed through the AVM+
// escape; EncodeAMF3 forces the escape for whole AMF3 response bodies.
type AMF0Encoder struct {
	w        *Writer
	registry *TypeRegistry

	objects     map[any]int
	objectCount int
}

// NewAMF0Encoder returns an encoder writing to w, resolving class
// aliases through registry.
func NewAMF0Encoder(w *Writer, registry *TypeRegistry) *AMF0Encoder {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &AMF0Encoder{
		w:        w,
		registry: registry,
		objects:  make(map[any]int),
	}
}

// Writer exposes the underlying stream.
func (e *AMF0Encoder) Writer() *Writer { return e.w }

// EncodeAMF3 writes the AVM+ escape marker and encodes v with a fresh
// AMF3 encoder (AMF0 spec Section 3.1). Each escape starts with empty
// AMF3 reference tables.
func (e *AMF0Encoder) EncodeAMF3(v Value) error {
	e.w.WriteUint8(amf0AVMPlusMarker)
	return NewAMF3Encoder(e.w, e.registry).Encode(v)
}

// rememberOrRef emits a Reference marker when key was written before,
// claiming the next table index otherwise (AMF0 spec Section 2.9).
func (e *AMF0Encoder) rememberOrRef(key any) (seen bool, err error) {
	if key != nil {
		if idx, ok := e.objects[key]; ok {
			if idx > maxUint16 {
				return false, fmt.Errorf("amf0 reference index %d: %w", idx, ErrIntegerRange)
			}
			e.w.WriteUint8(amf0ReferenceMarker)
			e.w.WriteUint16(uint16(idx))
			return true, nil
		}
		e.objects[key] = e.objectCount
	}
	e.objectCount++
	return false, nil
}

// Encode writes one AMF0 value, dispatching on the Go dynamic type.
func (e *AMF0Encoder) Encode(v Value) error {
	switch val := v.(type) {
	case nil:
		e.w.WriteUint8(amf0NullMarker)
		return nil
	case Undefined:
		e.w.WriteUint8(amf0UndefinedMarker)
		return nil
	case bool:
		e.w.WriteUint8(amf0BooleanMarker)
		if val {
			e.w.WriteUint8(1)
		} else {
			e.w.WriteUint8(0)
		}
		return nil
	case int:
		return e.encodeNumber(float64(val))
	case int8:
		return e.encodeNumber(float64(val))
	case int16:
		return e.encodeNumber(float64(val))
	case int32:
		return e.encodeNumber(float64(val))
	case int64:
		return e.encodeNumber(float64(val))
	case uint:
		return e.encodeNumber(float64(val))
	case uint8:
		return e.encodeNumber(float64(val))
	case uint16:
		return e.encodeNumber(float64(val))
	case uint32:
		return e.encodeNumber(float64(val))
	case uint64:
		return e.encodeNumber(float64(val))
	case float32:
		return e.encodeNumber(float64(val))
	case float64:
		return e.encodeNumber(val)
	case string:
		return e.encodeString(val)
	case time.Time:
		return e.encodeDate(val)
	case XMLDocument:
		e.w.WriteUint8(amf0XMLDocumentMarker)
		e.w.WriteLongUTF(string(val))
		return nil
	case XML:
		e.w.WriteUint8(amf0XMLDocumentMarker)
		e.w.WriteLongUTF(string(val))
		return nil
	case ByteArray, *Vector, *Dictionary:
		// AMF3-only shapes: reachable only through the escape.
		return e.EncodeAMF3(v)
	case []byte:
		return e.EncodeAMF3(ByteArray(val))
	case *Array:
		return e.encodeArray(val)
	case []Value:
		return e.encodeArray(&Array{Dense: val})
	case *Object:
		return e.encodeObject(val)
	case map[string]Value:
		return e.encodeStringMap(val)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		return e.encodeStruct(v, rv)
	}
	if rv.Kind() == reflect.Struct {
		return e.encodeStruct(nil, rv)
	}
	if rv.Kind() == reflect.Slice {
		dense := make([]Value, rv.Len())
		for i := range dense {
			dense[i] = rv.Index(i).Interface()
		}
		return e.encodeArray(&Array{Dense: dense})
	}

	return fmt.Errorf("amf0 encode %T: %w", v, ErrUnsupportedValue)
}

func (e *AMF0Encoder) encodeNumber(v float64) error {
	e.w.WriteUint8(amf0NumberMarker)
	e.w.WriteFloat64(v)
	return nil
}

// encodeString writes STRING, promoting to LONG STRING when the UTF-8
// byte length exceeds 65535 (AMF0 spec Sections 2.4, 2.14).
func (e *AMF0Encoder) encodeString(s string) error {
	if len(s) > maxUint16 {
		e.w.WriteUint8(amf0LongStringMarker)
		e.w.WriteLongUTF(s)
		return nil
	}
	e.w.WriteUint8(amf0StringMarker)
	return e.w.WriteUTF(s)
}

// encodeDate writes a date (AMF0 spec Section 2.13). The time zone
// field is reserved and always written as zero.
func (e *AMF0Encoder) encodeDate(t time.Time) error {
	e.w.WriteUint8(amf0DateMarker)
	e.w.WriteFloat64(epochMillis(t))
	e.w.WriteUint16(0)
	return nil
}

// writePairs writes object-body name/value pairs followed by the empty
// name and the OBJECT END marker. Names beginning with an underscore
// are skipped (private field convention).
func (e *AMF0Encoder) writePairs(names []string, get func(string) Value) error {
	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if err := e.w.WriteUTF(name); err != nil {
			return err
		}
		if err := e.Encode(get(name)); err != nil {
			return err
		}
	}
	if err := e.w.WriteUTF(""); err != nil {
		return err
	}
	e.w.WriteUint8(amf0ObjectEndMarker)
	return nil
}

// denseKeys reports whether every associative key is a decimal index
// (the sparse-numeric case that selects ECMA ARRAY on write).
func denseKeys(names []string) bool {
	for _, n := range names {
		if _, err := strconv.ParseUint(n, 10, 32); err != nil {
			return false
		}
	}
	return true
}

// encodeArray applies the array tie-break: keys exactly 0..n-1 (a pure
// dense segment) select STRICT ARRAY, any non-numeric key selects an
// anonymous object body, and numeric-but-sparse keys select ECMA ARRAY.
func (e *AMF0Encoder) encodeArray(a *Array) error {
	assocNames := a.Assoc.Names()

	switch {
	case len(assocNames) == 0:
		if seen, err := e.rememberOrRef(a); err != nil || seen {
			return err
		}
		e.w.WriteUint8(amf0StrictArrayMarker)
		e.w.WriteUint32(uint32(len(a.Dense)))
		for _, v := range a.Dense {
			if err := e.Encode(v); err != nil {
				return err
			}
		}
		return nil

	case !denseKeys(assocNames):
		obj := NewObject()
		for i, v := range a.Dense {
			obj.Dynamic.Set(strconv.Itoa(i), v)
		}
		for _, n := range assocNames {
			v, _ := a.Assoc.Get(n)
			obj.Dynamic.Set(n, v)
		}
		return e.encodeObject(obj)

	default:
		if seen, err := e.rememberOrRef(a); err != nil || seen {
			return err
		}
		e.w.WriteUint8(amf0EcmaArrayMarker)
		e.w.WriteUint32(uint32(len(a.Dense) + a.Assoc.Len()))
		names := make([]string, 0, len(a.Dense)+a.Assoc.Len())
		values := make(map[string]Value, len(a.Dense)+a.Assoc.Len())
		for i, v := range a.Dense {
			k := strconv.Itoa(i)
			names = append(names, k)
			values[k] = v
		}
		for _, n := range assocNames {
			v, _ := a.Assoc.Get(n)
			names = append(names, n)
			values[n] = v
		}
		return e.writePairs(names, func(n string) Value { return values[n] })
	}
}

// encodeStringMap writes a Go map as an ECMA array with sorted keys.
func (e *AMF0Encoder) encodeStringMap(m map[string]Value) error {
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

// encodeObject writes an anonymous or typed object. A non-empty trait
// alias selects TYPED OBJECT (AMF0 spec Section 2.18).
func (e *AMF0Encoder) encodeObject(o *Object) error {
	if seen, err := e.rememberOrRef(o); err != nil || seen {
		return err
	}

	alias := o.Trait.Alias
	if alias != "" {
		e.w.WriteUint8(amf0TypedObjectMarker)
		if err := e.w.WriteUTF(alias); err != nil {
			return err
		}
	} else {
		e.w.WriteUint8(amf0ObjectMarker)
	}

	names := make([]string, 0, len(o.Trait.SealedNames)+o.Dynamic.Len())
	values := make(map[string]Value, cap(names))
	for i, n := range o.Trait.SealedNames {
		if i < len(o.Sealed) {
			names = append(names, n)
			values[n] = o.Sealed[i]
		}
	}
	for _, n := range o.Dynamic.Names() {
		v, _ := o.Dynamic.Get(n)
		names = append(names, n)
		values[n] = v
	}
	return e.writePairs(names, func(n string) Value { return values[n] })
}

// encodeStruct writes a Go struct as a typed object, resolving the wire
// alias through the registry. Unregistered structs write anonymously.
func (e *AMF0Encoder) encodeStruct(key any, rv reflect.Value) error {
	if seen, err := e.rememberOrRef(key); err != nil || seen {
		return err
	}

	iface := rv.Interface()
	alias, _ := e.registry.AliasFor(iface)

	if alias != "" {
		e.w.WriteUint8(amf0TypedObjectMarker)
		if err := e.w.WriteUTF(alias); err != nil {
			return err
		}
	} else {
		e.w.WriteUint8(amf0ObjectMarker)
	}

	names, values := namedFieldValues(rv)
	byName := make(map[string]Value, len(names))
	for i, n := range names {
		byName[n] = values[i]
	}
	return e.writePairs(names, func(n string) Value { return byName[n] })
}

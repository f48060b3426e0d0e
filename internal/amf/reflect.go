package amf

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// -------------------------------------------------------------------------
// Struct Reflection — typed object ↔ Go struct bridging
// -------------------------------------------------------------------------

// structField describes one encodable member of a registered struct type.
type structField struct {
	// name is the wire member name: the `amf` tag when present,
	// otherwise the field name with its first rune lowered.
	name string

	// index is the reflect field index path, spanning embedded structs.
	index []int
}

// fieldCache memoizes structFieldsOf per type.
var fieldCache sync.Map // reflect.Type -> []structField

// structFieldsOf returns the encodable members of struct type t in
// declaration order. Embedded structs are flattened, unexported fields
// and fields tagged `amf:"-"` are skipped.
func structFieldsOf(t reflect.Type) []structField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]structField)
	}
	fields := collectFields(t, nil)
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, prefix []int) []structField {
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("amf") == "" {
			fields = append(fields, collectFields(f.Type, index)...)
			continue
		}
		if !f.IsExported() {
			continue
		}

		name := f.Tag.Get("amf")
		if name == "-" {
			continue
		}
		if name == "" {
			name = lowerFirst(f.Name)
		}
		fields = append(fields, structField{name: name, index: index})
	}
	return fields
}

// lowerFirst lowers the first rune of a Go field name, matching the
// ActionScript property naming convention.
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return strings.ToLower(s[:size]) + s[size:]
}

// -------------------------------------------------------------------------
// Coercion — decoded generic values into declared Go types
// -------------------------------------------------------------------------

// CoerceValue converts a decoded AMF value into the declared Go type t.
// Records (objects, associative arrays) populate struct fields by wire
// name; dense arrays cast per element into slices; numeric kinds convert
// between each other. A scalar that cannot serve a struct target yields
// the zero value rather than an error, matching loose ActionScript
// argument semantics.
func CoerceValue(v Value, t reflect.Type) (reflect.Value, error) {
	dst := reflect.New(t).Elem()
	if err := assign(dst, v); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

// assign stores v into dst, converting where needed.
func assign(dst reflect.Value, v Value) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	if _, ok := v.(Undefined); ok {
		dst.SetZero()
		return nil
	}

	t := dst.Type()
	rv := reflect.ValueOf(v)

	// Exact or assignable match, including interface targets.
	if rv.Type().AssignableTo(t) {
		dst.Set(rv)
		return nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		p := reflect.New(t.Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case reflect.Bool:
		if b, ok := v.(bool); ok {
			dst.SetBool(b)
			return nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch n := v.(type) {
		case int32:
			dst.SetInt(int64(n))
			return nil
		case float64:
			dst.SetInt(int64(n))
			return nil
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch n := v.(type) {
		case int32:
			dst.SetUint(uint64(n))
			return nil
		case float64:
			dst.SetUint(uint64(n))
			return nil
		case uint32:
			dst.SetUint(uint64(n))
			return nil
		}

	case reflect.Float32, reflect.Float64:
		switch n := v.(type) {
		case float64:
			dst.SetFloat(n)
			return nil
		case int32:
			dst.SetFloat(float64(n))
			return nil
		}

	case reflect.String:
		switch s := v.(type) {
		case string:
			dst.SetString(s)
			return nil
		case XMLDocument:
			dst.SetString(string(s))
			return nil
		case XML:
			dst.SetString(string(s))
			return nil
		}

	case reflect.Slice:
		return assignSlice(dst, v)

	case reflect.Struct:
		return assignStruct(dst, v)
	}

	// Scalar into a class target: null it out rather than fail the call.
	dst.SetZero()
	return nil
}

// assignSlice casts a dense sequence into a typed slice, element by
// element.
func assignSlice(dst reflect.Value, v Value) error {
	var elems []Value
	switch src := v.(type) {
	case *Array:
		elems = src.Dense
	case []Value:
		elems = src
	case ByteArray:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(src))
			return nil
		}
		return fmt.Errorf("byte array into %s: %w", dst.Type(), ErrUnsupportedValue)
	case *Vector:
		return assignVector(dst, src)
	default:
		dst.SetZero()
		return nil
	}

	out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
	for i, e := range elems {
		if err := assign(out.Index(i), e); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

// assignVector casts a typed vector into a typed slice.
func assignVector(dst reflect.Value, v *Vector) error {
	n := v.Len()
	out := reflect.MakeSlice(dst.Type(), n, n)
	for i := 0; i < n; i++ {
		var e Value
		switch v.Kind {
		case VectorInt:
			e = v.Ints[i]
		case VectorUint:
			e = v.Uints[i]
		case VectorDouble:
			e = v.Doubles[i]
		case VectorObject:
			e = v.Objects[i]
		}
		if err := assign(out.Index(i), e); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

// assignStruct populates a struct target from a record value, copying
// members by wire name.
func assignStruct(dst reflect.Value, v Value) error {
	if t, ok := v.(time.Time); ok && dst.Type() == reflect.TypeOf(time.Time{}) {
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	switch src := v.(type) {
	case *Object:
		for _, f := range structFieldsOf(dst.Type()) {
			if fv, ok := src.Field(f.name); ok {
				if err := assign(dst.FieldByIndex(f.index), fv); err != nil {
					return err
				}
			}
		}
		return nil
	case *Array:
		// Associative arrays double as records.
		for _, f := range structFieldsOf(dst.Type()) {
			if fv, ok := src.Assoc.Get(f.name); ok {
				if err := assign(dst.FieldByIndex(f.index), fv); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// Already the right shape via pointer.
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.Elem().Type() == dst.Type() {
		dst.Set(rv.Elem())
		return nil
	}

	dst.SetZero()
	return nil
}

// setNamedField stores v into the member of target (a pointer to struct)
// whose wire name is name. Unknown names are dropped, matching dynamic
// member semantics against sealed classes.
func setNamedField(target reflect.Value, name string, v Value) error {
	elem := target.Elem()
	for _, f := range structFieldsOf(elem.Type()) {
		if f.name == name {
			return assign(elem.FieldByIndex(f.index), v)
		}
	}
	return nil
}

// namedFieldValues returns the wire names and current values of all
// encodable members of v (a struct or pointer to struct).
func namedFieldValues(v reflect.Value) ([]string, []Value) {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	fields := structFieldsOf(v.Type())
	names := make([]string, len(fields))
	values := make([]Value, len(fields))
	for i, f := range fields {
		names[i] = f.name
		values[i] = v.FieldByIndex(f.index).Interface()
	}
	return names, values
}

package remoting

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

type address struct {
	City string `amf:"city"`
	Zip  string `amf:"zip"`
}

type person struct {
	Name string  `amf:"name"`
	Age  int     `amf:"age"`
	Home address `amf:"home"`
}

func TestCastRecordToStruct(t *testing.T) {
	t.Parallel()

	home := amf.NewObject()
	home.Dynamic.Set("city", "Hanoi")
	home.Dynamic.Set("zip", "100000")

	rec := amf.NewObject()
	rec.Dynamic.Set("name", "ada")
	rec.Dynamic.Set("age", int32(36))
	rec.Dynamic.Set("home", home)

	in, err := castArgs([]reflect.Type{reflect.TypeOf(person{})}, []amf.Value{rec})
	require.NoError(t, err)

	got := in[0].Interface().(person)
	assert.Equal(t, person{Name: "ada", Age: 36, Home: address{City: "Hanoi", Zip: "100000"}}, got)
}

func TestCastTypedSlice(t *testing.T) {
	t.Parallel()

	rec1 := amf.NewObject()
	rec1.Dynamic.Set("city", "a")
	rec2 := amf.NewObject()
	rec2.Dynamic.Set("city", "b")
	arr := amf.NewArray(rec1, rec2)

	in, err := castArgs([]reflect.Type{reflect.TypeOf([]address{})}, []amf.Value{arr})
	require.NoError(t, err)

	got := in[0].Interface().([]address)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].City)
}

func TestCastNumericWidening(t *testing.T) {
	t.Parallel()

	params := []reflect.Type{
		reflect.TypeOf(int64(0)),
		reflect.TypeOf(float32(0)),
		reflect.TypeOf(uint16(0)),
	}
	in, err := castArgs(params, []amf.Value{int32(9), 1.5, 7.0})
	require.NoError(t, err)

	assert.Equal(t, int64(9), in[0].Interface())
	assert.Equal(t, float32(1.5), in[1].Interface())
	assert.Equal(t, uint16(7), in[2].Interface())
}

func TestCastInterfacePassthrough(t *testing.T) {
	t.Parallel()

	obj := amf.NewObject()
	in, err := castArgs([]reflect.Type{reflect.TypeOf((*any)(nil)).Elem()}, []amf.Value{obj})
	require.NoError(t, err)
	assert.Same(t, obj, in[0].Interface())
}

func TestCastScalarIntoStructNullsOut(t *testing.T) {
	t.Parallel()

	in, err := castArgs([]reflect.Type{reflect.TypeOf(address{})}, []amf.Value{"scalar"})
	require.NoError(t, err)
	assert.Equal(t, address{}, in[0].Interface())
}

func TestCastPointerTarget(t *testing.T) {
	t.Parallel()

	rec := amf.NewObject()
	rec.Dynamic.Set("city", "x")

	in, err := castArgs([]reflect.Type{reflect.TypeOf(&address{})}, []amf.Value{rec})
	require.NoError(t, err)

	got := in[0].Interface().(*address)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.City)
}

func TestCastByteArray(t *testing.T) {
	t.Parallel()

	in, err := castArgs([]reflect.Type{reflect.TypeOf([]byte(nil))}, []amf.Value{amf.ByteArray{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, in[0].Interface())
}

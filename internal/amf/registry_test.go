package amf_test

import (
	"testing"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

type widget struct {
	Label string `amf:"label"`
}

func TestRegistryMapping(t *testing.T) {
	t.Parallel()

	reg := amf.NewTypeRegistry()
	if err := reg.SetMapping("com.example.Widget", widget{}); err != nil {
		t.Fatal(err)
	}

	if _, ok := reg.TypeFor("com.example.Widget"); !ok {
		t.Error("TypeFor missed registered alias")
	}
	if alias, ok := reg.AliasFor(&widget{}); !ok || alias != "com.example.Widget" {
		t.Errorf("AliasFor = %q, %v", alias, ok)
	}

	// MappedClassName works in either direction.
	if name, ok := reg.MappedClassName("com.example.Widget"); !ok || name != "widget" {
		t.Errorf("alias -> name = %q, %v", name, ok)
	}
	if alias, ok := reg.MappedClassName("widget"); !ok || alias != "com.example.Widget" {
		t.Errorf("name -> alias = %q, %v", alias, ok)
	}
	if _, ok := reg.MappedClassName("nope"); ok {
		t.Error("unknown name resolved")
	}
}

func TestRegistryReset(t *testing.T) {
	t.Parallel()

	reg := amf.NewTypeRegistry()
	if err := reg.SetDefaultMapping("builtin.Widget", widget{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetMapping("temp.Widget", widget{}); err != nil {
		t.Fatal(err)
	}

	reg.ResetMap()

	if _, ok := reg.TypeFor("builtin.Widget"); !ok {
		t.Error("built-in mapping lost on reset")
	}
	if _, ok := reg.TypeFor("temp.Widget"); ok {
		t.Error("non-default mapping survived reset")
	}
}

func TestRegistryRejectsNonStruct(t *testing.T) {
	t.Parallel()

	reg := amf.NewTypeRegistry()
	if err := reg.SetMapping("bad", 42); err == nil {
		t.Error("non-struct registration accepted")
	}
}

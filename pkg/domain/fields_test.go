package domain

import (
	"reflect"
	"strings"
	"testing"
)

// Every patchable field must be registered in the category map and the
// per-field ops table. Adding a StopPatch field without doing both is a
// bug this test exists to catch.
func TestCategoryMapCoversStopPatch(t *testing.T) {
	opsByName := map[PatchField]bool{}
	for _, f := range stopPatchFields {
		if opsByName[f.name] {
			t.Fatalf("duplicate ops entry for %s", f.name)
		}
		opsByName[f.name] = true
	}

	typ := reflect.TypeOf(StopPatch{})
	patchable := 0
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.Name == "Verification" {
			continue
		}
		wire, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if wire == "" {
			t.Fatalf("field %s has no json name", sf.Name)
		}
		patchable++
		if _, ok := CategoryOf(PatchField(wire)); !ok {
			t.Fatalf("field %s has no trust category", wire)
		}
		if !opsByName[PatchField(wire)] {
			t.Fatalf("field %s has no ops entry", wire)
		}
	}
	if patchable != len(stopPatchFields) {
		t.Fatalf("ops table has %d entries for %d patchable fields", len(stopPatchFields), patchable)
	}
	if patchable != len(fieldCategories) {
		t.Fatalf("category map has %d entries for %d patchable fields", len(fieldCategories), patchable)
	}
}

func TestParseFieldSetTolerant(t *testing.T) {
	set := ParseFieldSet([]string{"name", "no_such_field", "has_shelter", "verification"})
	if len(set) != 3 || !set[FieldName] || !set[FieldHasShelter] || !set[FieldVerification] {
		t.Fatalf("unexpected set %v", set)
	}
}

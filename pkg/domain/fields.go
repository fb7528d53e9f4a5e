package domain

// PatchField identifies one patchable stop attribute. The string values are
// the wire names accepted in ignored_fields sets and patch JSON keys;
// handlers convert free-form strings into this closed enumeration.
type PatchField string

const (
	FieldLat              PatchField = "lat"
	FieldLon              PatchField = "lon"
	FieldName             PatchField = "name"
	FieldShortName        PatchField = "short_name"
	FieldLocality         PatchField = "locality"
	FieldStreet           PatchField = "street"
	FieldDoor             PatchField = "door"
	FieldNotes            PatchField = "notes"
	FieldTags             PatchField = "tags"
	FieldServiceCheckDate PatchField = "service_check_date"
	FieldHasShelter       PatchField = "has_shelter"
	FieldHasBench         PatchField = "has_bench"
	FieldHasTrashCan      PatchField = "has_trash_can"
	FieldHasSidewalk      PatchField = "has_sidewalk"
	FieldIllumination     PatchField = "illumination"
	FieldInfraCheckDate   PatchField = "infra_check_date"

	// FieldVerification is the patch's trust override. It belongs to no
	// single category but can be discarded through DropFields like any
	// attribute, so "ignore everything" truly empties a patch.
	FieldVerification PatchField = "verification"
)

// fieldCategories must cover every field StopPatch can represent; the
// lock-step tests fail when a patchable field is missing here.
var fieldCategories = map[PatchField]Category{
	FieldLat:              CategoryPosition,
	FieldLon:              CategoryPosition,
	FieldName:             CategoryService,
	FieldShortName:        CategoryService,
	FieldLocality:         CategoryService,
	FieldStreet:           CategoryService,
	FieldDoor:             CategoryService,
	FieldNotes:            CategoryService,
	FieldTags:             CategoryService,
	FieldServiceCheckDate: CategoryService,
	FieldHasShelter:       CategoryInfrastructure,
	FieldHasBench:         CategoryInfrastructure,
	FieldHasTrashCan:      CategoryInfrastructure,
	FieldHasSidewalk:      CategoryInfrastructure,
	FieldIllumination:     CategoryInfrastructure,
	FieldInfraCheckDate:   CategoryInfrastructure,
}

// CategoryOf maps a field to its trust category. The second return is false
// only for names outside the enumeration.
func CategoryOf(f PatchField) (Category, bool) {
	c, ok := fieldCategories[f]
	return c, ok
}

// AllPatchFields lists every patchable field once, in declaration order.
func AllPatchFields() []PatchField {
	out := make([]PatchField, 0, len(stopPatchFields))
	for _, f := range stopPatchFields {
		out = append(out, f.name)
	}
	return out
}

// ParseFieldSet converts wire-level field names into an ignore set. Unknown
// names are kept out of the set rather than rejected; dropping a field that
// does not exist is a no-op by contract.
func ParseFieldSet(names []string) map[PatchField]bool {
	set := make(map[PatchField]bool, len(names))
	for _, n := range names {
		f := PatchField(n)
		if _, ok := fieldCategories[f]; ok || f == FieldVerification {
			set[f] = true
		}
	}
	return set
}

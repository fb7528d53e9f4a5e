package domain

import (
	"encoding/json"
	"slices"
)

// Edit is a tri-state single-field diff: untouched, explicitly cleared, or
// set to a value. The zero value is untouched. On the wire the three states
// are an absent key, a JSON null, and a JSON value.
type Edit[T any] struct {
	set  bool
	null bool
	val  T
}

// SetValue builds an edit that writes v.
func SetValue[T any](v T) Edit[T] { return Edit[T]{set: true, val: v} }

// SetNull builds an edit that clears the field.
func SetNull[T any]() Edit[T] { return Edit[T]{set: true, null: true} }

// IsSet reports whether the field is touched at all.
func (e Edit[T]) IsSet() bool { return e.set }

// IsNull reports whether the field is an explicit clear.
func (e Edit[T]) IsNull() bool { return e.set && e.null }

// Value returns the proposed value; ok is false when the edit is untouched
// or a clear.
func (e Edit[T]) Value() (T, bool) {
	if !e.set || e.null {
		var zero T
		return zero, false
	}
	return e.val, true
}

// Unset forces the edit back to untouched.
func (e *Edit[T]) Unset() { *e = Edit[T]{} }

// IsZero makes untouched edits disappear under json omitzero.
func (e Edit[T]) IsZero() bool { return !e.set }

func (e Edit[T]) MarshalJSON() ([]byte, error) {
	if !e.set || e.null {
		return []byte("null"), nil
	}
	return json.Marshal(e.val)
}

func (e *Edit[T]) UnmarshalJSON(b []byte) error {
	*e = Edit[T]{set: true}
	if string(b) == "null" {
		e.null = true
		return nil
	}
	return json.Unmarshal(b, &e.val)
}

// StopPatch is a partial edit to one stop. Untouched fields never reach the
// stop; a patch that touches nothing must not be committed.
type StopPatch struct {
	Lat              Edit[float64]  `json:"lat,omitzero"`
	Lon              Edit[float64]  `json:"lon,omitzero"`
	Name             Edit[string]   `json:"name,omitzero"`
	ShortName        Edit[string]   `json:"short_name,omitzero"`
	Locality         Edit[string]   `json:"locality,omitzero"`
	Street           Edit[string]   `json:"street,omitzero"`
	Door             Edit[string]   `json:"door,omitzero"`
	Notes            Edit[string]   `json:"notes,omitzero"`
	Tags             Edit[[]string] `json:"tags,omitzero"`
	ServiceCheckDate Edit[string]   `json:"service_check_date,omitzero"`
	HasShelter       Edit[bool]     `json:"has_shelter,omitzero"`
	HasBench         Edit[bool]     `json:"has_bench,omitzero"`
	HasTrashCan      Edit[bool]     `json:"has_trash_can,omitzero"`
	HasSidewalk      Edit[bool]     `json:"has_sidewalk,omitzero"`
	Illumination     Edit[int]      `json:"illumination,omitzero"`
	InfraCheckDate   Edit[string]   `json:"infra_check_date,omitzero"`

	// Verification is an explicit trust override. Deverify recomputes it;
	// with verify=true asserted it passes through as-is.
	Verification *VerificationState `json:"verification,omitempty"`
}

// fieldOps is the per-field handle the patch algorithms iterate over.
// Every StopPatch field must have exactly one entry in stopPatchFields.
type fieldOps struct {
	name    PatchField
	touched func(*StopPatch) bool
	unset   func(*StopPatch)
	isNoop  func(*StopPatch, *Stop) bool
	check   func(*StopPatch) error
	write   func(*StopPatch, *Stop)
}

func scalarOps[T comparable](name PatchField, edit func(*StopPatch) *Edit[T], field func(*Stop) **T, validate func(T) error) fieldOps {
	return fieldOps{
		name:    name,
		touched: func(p *StopPatch) bool { return edit(p).IsSet() },
		unset:   func(p *StopPatch) { edit(p).Unset() },
		isNoop: func(p *StopPatch, s *Stop) bool {
			cur := *field(s)
			if edit(p).IsNull() {
				return cur == nil
			}
			v, ok := edit(p).Value()
			return ok && cur != nil && *cur == v
		},
		check: func(p *StopPatch) error {
			v, ok := edit(p).Value()
			if !ok || validate == nil {
				return nil
			}
			if err := validate(v); err != nil {
				return Validationf("%s: %v", name, err)
			}
			return nil
		},
		write: func(p *StopPatch, s *Stop) {
			e := edit(p)
			if !e.IsSet() {
				return
			}
			if e.IsNull() {
				*field(s) = nil
				return
			}
			v, _ := e.Value()
			*field(s) = &v
		},
	}
}

func tagOps() fieldOps {
	return fieldOps{
		name:    FieldTags,
		touched: func(p *StopPatch) bool { return p.Tags.IsSet() },
		unset:   func(p *StopPatch) { p.Tags.Unset() },
		isNoop: func(p *StopPatch, s *Stop) bool {
			if p.Tags.IsNull() {
				return s.Tags == nil
			}
			v, ok := p.Tags.Value()
			return ok && slices.Equal(v, s.Tags)
		},
		check: func(p *StopPatch) error {
			v, ok := p.Tags.Value()
			if !ok {
				return nil
			}
			for _, t := range v {
				if t == "" {
					return Validationf("%s: empty tag", FieldTags)
				}
			}
			return nil
		},
		write: func(p *StopPatch, s *Stop) {
			if !p.Tags.IsSet() {
				return
			}
			if p.Tags.IsNull() {
				s.Tags = nil
				return
			}
			v, _ := p.Tags.Value()
			s.Tags = slices.Clone(v)
		},
	}
}

var stopPatchFields = []fieldOps{
	scalarOps(FieldLat, func(p *StopPatch) *Edit[float64] { return &p.Lat }, func(s *Stop) **float64 { return &s.Lat }, validateLat),
	scalarOps(FieldLon, func(p *StopPatch) *Edit[float64] { return &p.Lon }, func(s *Stop) **float64 { return &s.Lon }, validateLon),
	scalarOps(FieldName, func(p *StopPatch) *Edit[string] { return &p.Name }, func(s *Stop) **string { return &s.Name }, nil),
	scalarOps(FieldShortName, func(p *StopPatch) *Edit[string] { return &p.ShortName }, func(s *Stop) **string { return &s.ShortName }, nil),
	scalarOps(FieldLocality, func(p *StopPatch) *Edit[string] { return &p.Locality }, func(s *Stop) **string { return &s.Locality }, nil),
	scalarOps(FieldStreet, func(p *StopPatch) *Edit[string] { return &p.Street }, func(s *Stop) **string { return &s.Street }, nil),
	scalarOps(FieldDoor, func(p *StopPatch) *Edit[string] { return &p.Door }, func(s *Stop) **string { return &s.Door }, nil),
	scalarOps(FieldNotes, func(p *StopPatch) *Edit[string] { return &p.Notes }, func(s *Stop) **string { return &s.Notes }, nil),
	tagOps(),
	scalarOps(FieldServiceCheckDate, func(p *StopPatch) *Edit[string] { return &p.ServiceCheckDate }, func(s *Stop) **string { return &s.ServiceCheckDate }, validateISODate),
	scalarOps(FieldHasShelter, func(p *StopPatch) *Edit[bool] { return &p.HasShelter }, func(s *Stop) **bool { return &s.HasShelter }, nil),
	scalarOps(FieldHasBench, func(p *StopPatch) *Edit[bool] { return &p.HasBench }, func(s *Stop) **bool { return &s.HasBench }, nil),
	scalarOps(FieldHasTrashCan, func(p *StopPatch) *Edit[bool] { return &p.HasTrashCan }, func(s *Stop) **bool { return &s.HasTrashCan }, nil),
	scalarOps(FieldHasSidewalk, func(p *StopPatch) *Edit[bool] { return &p.HasSidewalk }, func(s *Stop) **bool { return &s.HasSidewalk }, nil),
	scalarOps(FieldIllumination, func(p *StopPatch) *Edit[int] { return &p.Illumination }, func(s *Stop) **int { return &s.Illumination }, validateIllumination),
	scalarOps(FieldInfraCheckDate, func(p *StopPatch) *Edit[string] { return &p.InfraCheckDate }, func(s *Stop) **string { return &s.InfraCheckDate }, validateISODate),
}

// DropFields forces every listed field back to untouched. Names outside the
// enumeration simply match nothing.
func (p *StopPatch) DropFields(ignored map[PatchField]bool) *StopPatch {
	if len(ignored) == 0 {
		return p
	}
	for _, f := range stopPatchFields {
		if ignored[f.name] {
			f.unset(p)
		}
	}
	if ignored[FieldVerification] {
		p.Verification = nil
	}
	return p
}

// DropNoops untouches every field whose proposed value equals what the stop
// already holds. It refuses to diff against a stored row that fails its own
// consistency check.
func (p *StopPatch) DropNoops(current *Stop) error {
	if err := current.CheckStored(); err != nil {
		return err
	}
	for _, f := range stopPatchFields {
		if f.touched(p) && f.isNoop(p, current) {
			f.unset(p)
		}
	}
	return nil
}

// Deverify recomputes the trust consequence of this patch against the
// stop's current state. Any requested override is capped at the current
// level per category, and every category with a surviving touched field
// drops to NotVerified. When the outcome equals the current state the
// override is cleared; the whole change was a no-op. Idempotent.
//
// Callers skip Deverify entirely when the moderator asserted verify=true.
func (p *StopPatch) Deverify(current VerificationState) *StopPatch {
	next := current
	if p.Verification != nil {
		next = p.Verification.LimitTo(current)
	}
	for _, c := range p.TouchedCategories() {
		next.SetLevel(c, NotVerified)
	}
	if next == current {
		p.Verification = nil
	} else {
		p.Verification = &next
	}
	return p
}

// TouchedCategories lists, in category order and without duplicates, the
// categories with at least one touched field.
func (p *StopPatch) TouchedCategories() []Category {
	var seen [3]bool
	for _, f := range stopPatchFields {
		if !f.touched(p) {
			continue
		}
		if c, ok := CategoryOf(f.name); ok {
			seen[c] = true
		}
	}
	var out []Category
	for c, hit := range seen {
		if hit {
			out = append(out, Category(c))
		}
	}
	return out
}

// IsEmpty reports whether nothing at all, verification override included,
// remains to apply.
func (p *StopPatch) IsEmpty() bool {
	if p.Verification != nil {
		return false
	}
	for _, f := range stopPatchFields {
		if f.touched(p) {
			return false
		}
	}
	return true
}

// Apply writes every touched field onto the target. All touched values are
// validated before the first write, so a failed Apply leaves the target
// untouched.
func (p *StopPatch) Apply(target *Stop) error {
	for _, f := range stopPatchFields {
		if !f.touched(p) {
			continue
		}
		if err := f.check(p); err != nil {
			return err
		}
	}
	for _, f := range stopPatchFields {
		f.write(p, target)
	}
	if p.Verification != nil {
		target.Verification = p.Verification.Pack()
	}
	return nil
}

package domain

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// IlluminationMax bounds the 0..5 illumination strength scale.
const IlluminationMax = 5

var reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Stop is a boarding location on the network. Nil pointers mean the
// attribute is unknown; crowdsourced patches may both fill and clear them.
type Stop struct {
	ID uuid.UUID `json:"id"`

	// Position
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// Service
	Name             *string  `json:"name"`
	ShortName        *string  `json:"short_name"`
	Locality         *string  `json:"locality"`
	Street           *string  `json:"street"`
	Door             *string  `json:"door"`
	Notes            *string  `json:"notes"`
	Tags             []string `json:"tags"`
	ServiceCheckDate *string  `json:"service_check_date"`

	// Infrastructure
	HasShelter     *bool   `json:"has_shelter"`
	HasBench       *bool   `json:"has_bench"`
	HasTrashCan    *bool   `json:"has_trash_can"`
	HasSidewalk    *bool   `json:"has_sidewalk"`
	Illumination   *int    `json:"illumination"`
	InfraCheckDate *string `json:"infra_check_date"`

	// Verification is the packed per-category trust state.
	Verification int32 `json:"verification"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate independently.
func (s *Stop) Clone() *Stop {
	out := *s
	out.Lat = clonePtr(s.Lat)
	out.Lon = clonePtr(s.Lon)
	out.Name = clonePtr(s.Name)
	out.ShortName = clonePtr(s.ShortName)
	out.Locality = clonePtr(s.Locality)
	out.Street = clonePtr(s.Street)
	out.Door = clonePtr(s.Door)
	out.Notes = clonePtr(s.Notes)
	out.Tags = slices.Clone(s.Tags)
	out.ServiceCheckDate = clonePtr(s.ServiceCheckDate)
	out.HasShelter = clonePtr(s.HasShelter)
	out.HasBench = clonePtr(s.HasBench)
	out.HasTrashCan = clonePtr(s.HasTrashCan)
	out.HasSidewalk = clonePtr(s.HasSidewalk)
	out.Illumination = clonePtr(s.Illumination)
	out.InfraCheckDate = clonePtr(s.InfraCheckDate)
	return &out
}

// CheckStored verifies that a loaded row still satisfies the stop's own
// invariants. Rows predating a constraint can violate it; patch filtering
// must refuse to diff against such a row instead of guessing.
func (s *Stop) CheckStored() error {
	if s.Lat != nil {
		if err := validateLat(*s.Lat); err != nil {
			return &ConversionError{Reason: fmt.Sprintf("stop %s: %v", s.ID, err)}
		}
	}
	if s.Lon != nil {
		if err := validateLon(*s.Lon); err != nil {
			return &ConversionError{Reason: fmt.Sprintf("stop %s: %v", s.ID, err)}
		}
	}
	if s.Illumination != nil {
		if err := validateIllumination(*s.Illumination); err != nil {
			return &ConversionError{Reason: fmt.Sprintf("stop %s: %v", s.ID, err)}
		}
	}
	for _, d := range []*string{s.ServiceCheckDate, s.InfraCheckDate} {
		if d != nil {
			if err := validateISODate(*d); err != nil {
				return &ConversionError{Reason: fmt.Sprintf("stop %s: %v", s.ID, err)}
			}
		}
	}
	return nil
}

func validateLat(v float64) error {
	if v < -90 || v > 90 {
		return fmt.Errorf("latitude %v out of range", v)
	}
	return nil
}

func validateLon(v float64) error {
	if v < -180 || v > 180 {
		return fmt.Errorf("longitude %v out of range", v)
	}
	return nil
}

func validateIllumination(v int) error {
	if v < 0 || v > IlluminationMax {
		return fmt.Errorf("illumination %d out of range 0..%d", v, IlluminationMax)
	}
	return nil
}

func validateISODate(v string) error {
	if !reISODate.MatchString(v) {
		return fmt.Errorf("date %q must be YYYY-MM-DD", v)
	}
	if _, err := time.Parse("2006-01-02", v); err != nil {
		return fmt.Errorf("invalid date %q", v)
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

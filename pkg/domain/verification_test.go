package domain

import "testing"

func TestVerificationRoundTrip(t *testing.T) {
	levels := []VerificationLevel{NotVerified, Wrong, Likely, Verified}
	for _, p := range levels {
		for _, s := range levels {
			for _, i := range levels {
				state := VerificationState{Position: p, Service: s, Infrastructure: i}
				packed := state.Pack()
				if packed>>6 != 0 {
					t.Fatalf("reserved bits set in %06b", packed)
				}
				if got := DecodeVerification(packed); got != state {
					t.Fatalf("round trip %v -> %06b -> %v", state, packed, got)
				}
			}
		}
	}
}

func TestVerificationPackKnownValues(t *testing.T) {
	if got := (VerificationState{}).Pack(); got != 0 {
		t.Fatalf("all NotVerified should pack to 0, got %d", got)
	}
	if got := FullyVerified().Pack(); got != 0b111111 {
		t.Fatalf("fully verified should pack to 0b111111, got %06b", got)
	}
	one := VerificationState{Service: Verified}
	if got := one.Pack(); got != 0b001100 {
		t.Fatalf("service-only verified packed to %06b", got)
	}
}

func TestLimitToNeverRaises(t *testing.T) {
	levels := []VerificationLevel{NotVerified, Wrong, Likely, Verified}
	for _, cur := range levels {
		for _, want := range levels {
			s := VerificationState{Position: want, Service: want, Infrastructure: want}
			max := VerificationState{Position: cur, Service: cur, Infrastructure: cur}
			got := s.LimitTo(max)
			for _, c := range []Category{CategoryPosition, CategoryService, CategoryInfrastructure} {
				if got.Level(c) > cur {
					t.Fatalf("limit raised %v above %v", c, cur)
				}
			}
		}
	}
}

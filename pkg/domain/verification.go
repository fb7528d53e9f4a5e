package domain

// VerificationLevel is the trust ordinal for a single category. Only the
// two extremes are currently produced by moderation; Wrong and Likely are
// representable for forward compatibility but no transition yields them.
type VerificationLevel uint8

const (
	NotVerified VerificationLevel = 0
	Wrong       VerificationLevel = 1
	Likely      VerificationLevel = 2
	Verified    VerificationLevel = 3
)

func (l VerificationLevel) String() string {
	switch l {
	case NotVerified:
		return "NOT_VERIFIED"
	case Wrong:
		return "WRONG"
	case Likely:
		return "LIKELY"
	case Verified:
		return "VERIFIED"
	}
	return "UNKNOWN"
}

// Category partitions a stop's attributes for independent verification
// tracking.
type Category uint8

const (
	CategoryPosition Category = iota
	CategoryService
	CategoryInfrastructure
)

func (c Category) String() string {
	switch c {
	case CategoryPosition:
		return "POSITION"
	case CategoryService:
		return "SERVICE"
	case CategoryInfrastructure:
		return "INFRASTRUCTURE"
	}
	return "UNKNOWN"
}

// VerificationState is the per-category trust of one stop. It is stored
// packed into a single integer column, two bits per category; bits above
// the infrastructure pair are reserved and always zero.
type VerificationState struct {
	Position       VerificationLevel `json:"position"`
	Service        VerificationLevel `json:"service"`
	Infrastructure VerificationLevel `json:"infrastructure"`
}

const (
	verificationBits = 2
	verificationMask = 1<<verificationBits - 1
)

// DecodeVerification unpacks a stored verification integer. Reserved high
// bits are ignored; the storage layer is responsible for never writing them.
func DecodeVerification(packed int32) VerificationState {
	return VerificationState{
		Position:       VerificationLevel(packed & verificationMask),
		Service:        VerificationLevel((packed >> verificationBits) & verificationMask),
		Infrastructure: VerificationLevel((packed >> (2 * verificationBits)) & verificationMask),
	}
}

// Pack is the exact inverse of DecodeVerification for all valid states.
func (s VerificationState) Pack() int32 {
	return (int32(s.Position) & verificationMask) |
		(int32(s.Service)&verificationMask)<<verificationBits |
		(int32(s.Infrastructure)&verificationMask)<<(2*verificationBits)
}

// Level returns the ordinal for one category.
func (s VerificationState) Level(c Category) VerificationLevel {
	switch c {
	case CategoryPosition:
		return s.Position
	case CategoryService:
		return s.Service
	default:
		return s.Infrastructure
	}
}

// SetLevel overwrites the ordinal for one category.
func (s *VerificationState) SetLevel(c Category, l VerificationLevel) {
	switch c {
	case CategoryPosition:
		s.Position = l
	case CategoryService:
		s.Service = l
	default:
		s.Infrastructure = l
	}
}

// LimitTo caps every category at the corresponding level of max. An edit
// may never raise trust above what the stop already has.
func (s VerificationState) LimitTo(max VerificationState) VerificationState {
	return VerificationState{
		Position:       minLevel(s.Position, max.Position),
		Service:        minLevel(s.Service, max.Service),
		Infrastructure: minLevel(s.Infrastructure, max.Infrastructure),
	}
}

// FullyVerified is the highest trust state a stop can hold.
func FullyVerified() VerificationState {
	return VerificationState{Position: Verified, Service: Verified, Infrastructure: Verified}
}

func minLevel(a, b VerificationLevel) VerificationLevel {
	if a < b {
		return a
	}
	return b
}

// Package darely models the streak/dare game entities persisted in stable
// storage.
package darely

import (
	"strings"

	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
	"github.com/H3nryK/Darely/internal/stable"
)

// Region id assignment is a compatibility contract with deployed backing
// stores: an id keeps its meaning forever and new purposes take fresh ids.
const (
	// RegionLegacy is reserved for manual migration bytes.
	RegionLegacy stable.RegionID = 0
	// RegionUsers holds the principal -> profile map.
	RegionUsers stable.RegionID = 1
	// RegionDares holds the id -> dare map.
	RegionDares stable.RegionID = 2
	// RegionTasks holds the id -> redemption task map.
	RegionTasks stable.RegionID = 3
	// RegionConfig holds the config singleton map.
	RegionConfig stable.RegionID = 4
	// RegionJournal holds the append-only generated-dare journal.
	RegionJournal stable.RegionID = 5
)

// MaxPrincipalLen bounds the textual form of a principal so it fits the
// fixed-width key encoding.
const MaxPrincipalLen = 63

// Principal is the opaque caller identity used as a map key.
type Principal string

// ParsePrincipal validates the textual form of a caller identity.
func ParsePrincipal(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.New(apperrors.CodeInvalidPrincipal, "principal is required")
	}
	if len(raw) > MaxPrincipalLen {
		return "", apperrors.New(apperrors.CodeInvalidPrincipal, "principal is too long")
	}
	if strings.ContainsRune(raw, 0) {
		return "", apperrors.New(apperrors.CodeInvalidPrincipal, "principal contains a NUL byte")
	}
	return Principal(raw), nil
}

// Short returns an abbreviated principal for display in leaderboards.
func (p Principal) Short() string {
	s := string(p)
	if len(s) <= 8 {
		return s
	}
	return s[:5] + "..." + s[len(s)-3:]
}

// Difficulty tiers a dare by effort.
type Difficulty uint8

const (
	// DifficultyEasy is a low-effort dare.
	DifficultyEasy Difficulty = iota
	// DifficultyMedium is a moderate dare.
	DifficultyMedium
	// DifficultyHard is a demanding dare.
	DifficultyHard
)

// ParseDifficulty maps the textual tier names used by commands.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return 0, apperrors.New(apperrors.CodeInvalidDifficulty, "difficulty must be easy, medium, or hard")
	}
}

// String returns the lowercase tier name.
func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Dare is a challenge a player can take on. Dares are immutable once created
// and keyed by id in the dare map.
type Dare struct {
	ID         uint64     `cbor:"1,keyasint"`
	Text       string     `cbor:"2,keyasint"`
	Difficulty Difficulty `cbor:"3,keyasint"`
}

// RedemptionTask is a reward unlocked once a streak threshold is met.
// Claiming one resets the player's current streak.
type RedemptionTask struct {
	ID             uint64 `cbor:"1,keyasint"`
	Description    string `cbor:"2,keyasint"`
	RequiredStreak uint32 `cbor:"3,keyasint"`
}

// UserProfile tracks one player's progress. Profiles are created on register
// and never deleted.
type UserProfile struct {
	Principal       Principal `cbor:"1,keyasint"`
	ActiveDareID    *uint64   `cbor:"2,keyasint,omitempty"`
	CurrentStreak   uint32    `cbor:"3,keyasint"`
	LongestStreak   uint32    `cbor:"4,keyasint"`
	DaresCompleted  uint64    `cbor:"5,keyasint"`
	LastCompletedAt int64     `cbor:"6,keyasint"`
	RedeemedTaskIDs []uint64  `cbor:"7,keyasint,omitempty"`
}

// HasRedeemed reports whether the profile already claimed the given task.
func (p UserProfile) HasRedeemed(taskID uint64) bool {
	for _, id := range p.RedeemedTaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// Config is the singleton record stored under the sentinel key in the config
// map. It carries the admin set, the id counters, and the two external
// credentials supplied at deploy time.
type Config struct {
	Admins       []Principal `cbor:"1,keyasint,omitempty"`
	NextDareID   uint64      `cbor:"2,keyasint"`
	NextTaskID   uint64      `cbor:"3,keyasint"`
	BotPublicKey string      `cbor:"4,keyasint"`
	OpenAIKey    string      `cbor:"5,keyasint"`
}

// HasAdmin reports whether the principal is in the admin set.
func (c Config) HasAdmin(principal Principal) bool {
	for _, admin := range c.Admins {
		if admin == principal {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so mutations never alias the stored record.
func (c Config) Clone() Config {
	clone := c
	clone.Admins = append([]Principal(nil), c.Admins...)
	return clone
}

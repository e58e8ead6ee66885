package territory

import (
	"slices"

	"github.com/google/uuid"
)

// Rank is a named bundle of a hierarchy level and a permission set within a
// single territory. Ranks are owned by their Territory and guarded by its
// lock; callers outside this package only ever see snapshot copies.
type Rank struct {
	ID          int32
	Name        string
	Level       int32 // 1-5, see RankLevelMin/Max
	Permissions Permission
	Salary      int64
	PayingTaxes bool
	IconID      int32 // 0 = no custom icon

	// Members holds the ids of players currently assigned this rank.
	// A player belongs to at most one rank per territory.
	Members []uuid.UUID
}

// IsSuperiorTo reports whether the rank outranks other in the hierarchy.
func (r *Rank) IsSuperiorTo(other *Rank) bool {
	return r.Level > other.Level
}

// Has reports whether the rank grants the given permission.
func (r *Rank) Has(perm Permission) bool {
	return r.Permissions.Has(perm)
}

// HasMember reports whether the player is assigned this rank.
func (r *Rank) HasMember(playerID uuid.UUID) bool {
	return slices.Contains(r.Members, playerID)
}

// addMember appends the player; caller holds the territory lock.
func (r *Rank) addMember(playerID uuid.UUID) {
	if !slices.Contains(r.Members, playerID) {
		r.Members = append(r.Members, playerID)
	}
}

// removeMember drops the player; caller holds the territory lock.
func (r *Rank) removeMember(playerID uuid.UUID) {
	r.Members = slices.DeleteFunc(r.Members, func(id uuid.UUID) bool {
		return id == playerID
	})
}

// clone returns a deep copy safe to hand outside the territory lock.
func (r *Rank) clone() *Rank {
	cp := *r
	cp.Members = slices.Clone(r.Members)
	return &cp
}

// clampRankLevel keeps hierarchy levels within the 1-5 range.
func clampRankLevel(level int32) int32 {
	if level < RankLevelMin {
		return RankLevelMin
	}
	if level > RankLevelMax {
		return RankLevelMax
	}
	return level
}

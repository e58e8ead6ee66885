package territory

// Relation is a diplomatic relation between two territories, as seen from
// one side. SELF is always computed from identity, OVERLORD/VASSAL from the
// hierarchy pointers; only ALLY/NEUTRAL/ENEMY are ever stored.
type Relation int32

const (
	RelationSelf Relation = iota
	RelationOverlord
	RelationVassal
	RelationAlly
	RelationNeutral
	RelationEnemy
)

// hostility defines the single total ordering used everywhere a "worse"
// relation must win: ENEMY > NEUTRAL > ALLY > VASSAL > OVERLORD > SELF.
var hostility = map[Relation]int{
	RelationSelf:     0,
	RelationOverlord: 1,
	RelationVassal:   2,
	RelationAlly:     3,
	RelationNeutral:  4,
	RelationEnemy:    5,
}

// IsSuperiorTo reports whether r is more hostile than other.
func (r Relation) IsSuperiorTo(other Relation) bool {
	return hostility[r] > hostility[other]
}

// Worst returns the more hostile of r and other.
func (r Relation) Worst(other Relation) Relation {
	if other.IsSuperiorTo(r) {
		return other
	}
	return r
}

// Hostile reports whether the relation permits attack (war/PvP checks).
func (r Relation) Hostile() bool {
	return r == RelationEnemy
}

// Storable reports whether the relation may appear in a territory's stored
// relation map.
func (r Relation) Storable() bool {
	return r == RelationAlly || r == RelationNeutral || r == RelationEnemy
}

// String returns the relation name.
func (r Relation) String() string {
	switch r {
	case RelationSelf:
		return "SELF"
	case RelationOverlord:
		return "OVERLORD"
	case RelationVassal:
		return "VASSAL"
	case RelationAlly:
		return "ALLY"
	case RelationNeutral:
		return "NEUTRAL"
	case RelationEnemy:
		return "ENEMY"
	default:
		return "UNKNOWN"
	}
}

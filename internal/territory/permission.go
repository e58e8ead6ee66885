package territory

// Permission is a single territory permission bitflag.
type Permission int32

// Territory permission constants. Each permission is 1 << ordinal; a rank's
// permission set is the bitwise OR of its granted flags.
const (
	PermNone             Permission = 0
	PermClaimChunk       Permission = 1 << 0
	PermUnclaimChunk     Permission = 1 << 1
	PermManageSettings   Permission = 1 << 2
	PermUpgrade          Permission = 1 << 3
	PermDiplomacy        Permission = 1 << 4
	PermInvitePlayer     Permission = 1 << 5
	PermKickPlayer       Permission = 1 << 6
	PermManageRanks      Permission = 1 << 7
	PermManageWar        Permission = 1 << 8
	PermDeposit          Permission = 1 << 9
	PermWithdraw         Permission = 1 << 10
	PermManageTaxes      Permission = 1 << 11
	PermManageCosmetics  Permission = 1 << 12
	PermConquerChunk     Permission = 1 << 13
	PermInteractDoor     Permission = 1 << 14
	PermInteractRedstone Permission = 1 << 15
	PermBreakBlock       Permission = 1 << 16
	PermPlaceBlock       Permission = 1 << 17
	PermUseContainer     Permission = 1 << 18
	PermAttackMob        Permission = 1 << 19

	// PermAll combines all permissions.
	PermAll Permission = (1 << 20) - 1
)

// Rank hierarchy levels, 1 (lowest) to 5 (highest).
const (
	RankLevelMin int32 = 1
	RankLevelMax int32 = 5
)

// DefaultRankPermissions returns the default permission set for a given
// hierarchy level. Level 5 ranks start with everything; lower levels only
// with the day-to-day world interactions.
func DefaultRankPermissions(level int32) Permission {
	switch {
	case level >= 5:
		return PermAll
	case level == 4:
		return PermClaimChunk | PermUnclaimChunk | PermInvitePlayer |
			PermKickPlayer | PermDeposit | PermWithdraw |
			defaultWorldPerms
	case level == 3:
		return PermClaimChunk | PermInvitePlayer | PermDeposit |
			defaultWorldPerms
	case level == 2:
		return PermDeposit | defaultWorldPerms
	default:
		return defaultWorldPerms
	}
}

const defaultWorldPerms = PermInteractDoor | PermInteractRedstone |
	PermBreakBlock | PermPlaceBlock | PermUseContainer | PermAttackMob

// Has checks if the permission set contains the given permission.
func (p Permission) Has(perm Permission) bool {
	return p&perm == perm
}

// Add adds a permission to the set.
func (p Permission) Add(perm Permission) Permission {
	return p | perm
}

// Remove removes a permission from the set.
func (p Permission) Remove(perm Permission) Permission {
	return p &^ perm
}

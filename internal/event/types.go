package event

import "github.com/google/uuid"

// RelationChanged fires after a diplomatic relation is written symmetrically
// on both territories.
type RelationChanged struct {
	TerritoryID string
	OtherID     string
	Relation    int32 // territory.Relation value, kept as int32 to avoid a cycle
}

// ProposalReceived fires when a territory receives an alliance-type
// diplomatic proposal.
type ProposalReceived struct {
	TargetID       string
	ProposerID     string
	WantedRelation int32
}

// VassalProposalReceived fires when a territory receives a vassalization
// proposal from a would-be overlord.
type VassalProposalReceived struct {
	TargetID   string
	ProposerID string
}

// VassalAccepted fires once the overlord/vassal link is committed on both
// sides.
type VassalAccepted struct {
	OverlordID string
	VassalID   string
}

// ChunkOwnerChanged fires whenever a chunk's owning territory changes:
// claim, unclaim, conquest or forced release. OwnerID is the new owner,
// empty when the chunk returns to wilderness. Coordinates are carried flat
// to avoid a cycle with the claim package; permission caches subscribe to
// drop every decision cached for the chunk.
type ChunkOwnerChanged struct {
	WorldID uuid.UUID
	X, Z    int32
	OwnerID string
}

// ChunksLost fires when the economy cycle forces a territory to release
// claimed chunks on an upkeep shortfall. Broadcast-quality: presentation
// layers should surface this to every member.
type ChunksLost struct {
	TerritoryID string
	Released    int
	Remaining   int
}

// TerritoryDeleted fires after a territory and all of its claims, relations
// and proposals have been purged.
type TerritoryDeleted struct {
	TerritoryID string
	Name        string
}

// PlayerRankChanged fires when a player is moved between ranks; permission
// caches subscribe to invalidate the player's cached decisions.
type PlayerRankChanged struct {
	TerritoryID string
	PlayerID    uuid.UUID
	RankID      int32
}

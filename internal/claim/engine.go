package claim

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dominioncraft/dominion/internal/config"
	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

// Denial is the outcome of claim validation. DenialNone means the claim is
// allowed. Validation is expected and user-facing, so it is an enum result,
// never an error.
type Denial int32

const (
	DenialNone Denial = iota
	DenialBlacklisted
	DenialNoPermission
	DenialBiome
	DenialCapacity
	DenialFunds
	DenialClaimed
	DenialBufferZone
	DenialAdjacency
)

// String returns the denial reason name.
func (d Denial) String() string {
	switch d {
	case DenialNone:
		return "none"
	case DenialBlacklisted:
		return "blacklisted"
	case DenialNoPermission:
		return "no_permission"
	case DenialBiome:
		return "biome"
	case DenialCapacity:
		return "capacity"
	case DenialFunds:
		return "funds"
	case DenialClaimed:
		return "claimed"
	case DenialBufferZone:
		return "buffer_zone"
	case DenialAdjacency:
		return "adjacency"
	default:
		return "unknown"
	}
}

// BiomeProvider classifies a chunk's biome. Nil-safe: without one, biome
// restrictions pass.
type BiomeProvider interface {
	Biome(key ChunkKey) string
}

// Engine owns the chunk→territory map and the spatial claim rules.
// Thread-safe: the chunk map, owner index and blacklist are protected by
// mu. Each chunk's ownership is an independent cell; no cross-chunk
// transaction exists or is needed.
type Engine struct {
	mu sync.RWMutex

	cfg    *config.Snapshot
	biomes BiomeProvider
	bus    *event.Bus

	chunks    map[ChunkKey]*ClaimedChunk
	byOwner   map[string]map[ChunkKey]*ClaimedChunk
	blacklist map[ChunkKey]struct{}

	// Injected random source for the probabilistic forced-release pass.
	rnd *rand.Rand
}

// NewEngine creates a claim engine. rnd may be nil, in which case a
// time-seeded source is used.
func NewEngine(cfg *config.Snapshot, biomes BiomeProvider, bus *event.Bus, rnd *rand.Rand) *Engine {
	if rnd == nil {
		now := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(now, now>>32))
	}
	return &Engine{
		cfg:       cfg,
		biomes:    biomes,
		bus:       bus,
		chunks:    make(map[ChunkKey]*ClaimedChunk, 4096),
		byOwner:   make(map[string]map[ChunkKey]*ClaimedChunk, 128),
		blacklist: make(map[ChunkKey]struct{}),
		rnd:       rnd,
	}
}

// OwnerOf returns the owning territory id, or "" if unclaimed.
func (e *Engine) OwnerOf(key ChunkKey) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.chunks[key]; ok {
		return c.OwnerID
	}
	return ""
}

// PolicyOf returns the chunk's policy bundle.
func (e *Engine) PolicyOf(key ChunkKey) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.chunks[key]; ok {
		return c.Policy, true
	}
	return Policy{}, false
}

// SetPolicy replaces the chunk's policy bundle wholesale.
func (e *Engine) SetPolicy(key ChunkKey, p Policy) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.chunks[key]
	if !ok {
		return false
	}
	c.Policy = p
	return true
}

// ClaimCount returns the number of chunks the territory owns.
func (e *Engine) ClaimCount(territoryID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.byOwner[territoryID])
}

// Claims returns a snapshot of the territory's claimed chunk keys.
func (e *Engine) Claims(territoryID string) []ChunkKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	owned := e.byOwner[territoryID]
	result := make([]ChunkKey, 0, len(owned))
	for k := range owned {
		result = append(result, k)
	}
	return result
}

// AllClaims returns a snapshot of every claimed chunk.
func (e *Engine) AllClaims() []ClaimedChunk {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]ClaimedChunk, 0, len(e.chunks))
	for _, c := range e.chunks {
		result = append(result, *c)
	}
	return result
}

// --- Blacklist ---

// Blacklist flags a chunk as unclaimable by server policy.
func (e *Engine) Blacklist(key ChunkKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blacklist[key] = struct{}{}
}

// Unblacklist clears the server-policy flag.
func (e *Engine) Unblacklist(key ChunkKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.blacklist, key)
}

// IsBlacklisted reports whether the chunk is flagged unclaimable.
func (e *Engine) IsBlacklisted(key ChunkKey) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.blacklist[key]
	return ok
}

// --- Claiming ---

// CanClaim validates a claim without applying it. Checks run in fixed
// order, short-circuiting on the first failure: blacklist, permission,
// biome, capacity, cost, existing ownership, adjacency/buffer zone.
// player may be nil for trusted internal claims (permission check skipped).
func (e *Engine) CanClaim(t *territory.Territory, player *model.Player, key ChunkKey, ignoreAdjacent bool) Denial {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canClaimLocked(t, player, key, ignoreAdjacent)
}

// Claim validates and applies a claim: the chunk's owner pointer is set and
// the claim cost deducted together; on any denial the state is untouched.
func (e *Engine) Claim(t *territory.Territory, player *model.Player, key ChunkKey, ignoreAdjacent bool) Denial {
	e.mu.Lock()
	if d := e.canClaimLocked(t, player, key, ignoreAdjacent); d != DenialNone {
		e.mu.Unlock()
		return d
	}

	tier := e.cfg.Current().Tier(t.ClaimTierLevel())
	e.assignLocked(key, t.ID())
	// Cost was validated against the balance above; RemoveFromBalance only
	// fails for negative amounts, which a tier cost never is.
	_ = t.RemoveFromBalance(tier.ClaimCost)
	e.mu.Unlock()

	slog.Debug("chunk claimed", "territory_id", t.ID(), "chunk", key.String(), "cost", tier.ClaimCost)
	e.publishOwnerChanged(key, t.ID())
	return DenialNone
}

// Unclaim clears the chunk's owner. Returns false if the chunk was not
// claimed.
func (e *Engine) Unclaim(key ChunkKey) bool {
	e.mu.Lock()
	ok := e.unclaimLocked(key)
	e.mu.Unlock()
	if ok {
		e.publishOwnerChanged(key, "")
	}
	return ok
}

// UnclaimAll releases every chunk the territory owns and returns the count.
// Used on territory deletion.
func (e *Engine) UnclaimAll(territoryID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	owned := e.byOwner[territoryID]
	n := len(owned)
	for key := range owned {
		delete(e.chunks, key)
	}
	delete(e.byOwner, territoryID)
	return n
}

// Restore installs a claimed chunk without validation or cost (used on load
// from storage).
func (e *Engine) Restore(key ChunkKey, ownerID string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assignLocked(key, ownerID)
	e.chunks[key].Policy = p
}

// --- Conquest ---

// CanConquer reports whether the attacker holds a conquest credit against
// the chunk's current owner.
func (e *Engine) CanConquer(attacker *territory.Territory, key ChunkKey) bool {
	ownerID := e.OwnerOf(key)
	if ownerID == "" || ownerID == attacker.ID() {
		return false
	}
	return attacker.EnemyClaims(ownerID) > 0
}

// Conquer transfers the chunk to the attacker, consuming exactly one
// conquest credit against the current owner. Returns false and leaves state
// unchanged if no credit is held or the chunk is not conquerable.
func (e *Engine) Conquer(attacker *territory.Territory, key ChunkKey) bool {
	e.mu.Lock()

	c, ok := e.chunks[key]
	if !ok || c.OwnerID == attacker.ID() {
		e.mu.Unlock()
		return false
	}
	ownerID := c.OwnerID
	if !attacker.ConsumeEnemyClaim(ownerID) {
		e.mu.Unlock()
		return false
	}

	delete(e.byOwner[ownerID], key)
	if len(e.byOwner[ownerID]) == 0 {
		delete(e.byOwner, ownerID)
	}
	e.assignLocked(key, attacker.ID())
	e.mu.Unlock()

	slog.Info("chunk conquered", "attacker_id", attacker.ID(), "owner_id", ownerID, "chunk", key.String())
	e.publishOwnerChanged(key, attacker.ID())
	return true
}

// --- Border computation & forced release ---

// BorderChunks returns the territory's frontier: claimed chunks 4-adjacent
// to at least one chunk the territory does not own.
func (e *Engine) BorderChunks(territoryID string) []ChunkKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	owned := e.byOwner[territoryID]
	result := make([]ChunkKey, 0, len(owned))
	for key := range owned {
		for _, n := range key.Neighbors() {
			if c, ok := e.chunks[n]; !ok || c.OwnerID != territoryID {
				result = append(result, key)
				break
			}
		}
	}
	return result
}

// ReleasePortion is the upkeep-shortfall degradation policy: a first
// probabilistic pass unclaims each border chunk with probability
// releaseChance, then a deterministic top-up pass continues through the
// remaining border chunks until at least min(minimum, borderCount) are
// released. Non-border chunks are never touched.
func (e *Engine) ReleasePortion(territoryID string, releaseChance float64, minimum int) int {
	border := e.BorderChunks(territoryID)
	if len(border) == 0 {
		return 0
	}
	if minimum > len(border) {
		minimum = len(border)
	}

	e.mu.Lock()
	var released []ChunkKey
	var survivors []ChunkKey
	for _, key := range border {
		if e.rnd.Float64() < releaseChance {
			if e.unclaimLocked(key) {
				released = append(released, key)
			}
		} else {
			survivors = append(survivors, key)
		}
	}
	for _, key := range survivors {
		if len(released) >= minimum {
			break
		}
		if e.unclaimLocked(key) {
			released = append(released, key)
		}
	}
	remaining := len(e.byOwner[territoryID])
	e.mu.Unlock()

	if len(released) > 0 {
		for _, key := range released {
			e.publishOwnerChanged(key, "")
		}
		slog.Warn("forced chunk release", "territory_id", territoryID, "released", len(released), "remaining", remaining)
		if e.bus != nil {
			event.Publish(e.bus, event.ChunksLost{
				TerritoryID: territoryID,
				Released:    len(released),
				Remaining:   remaining,
			})
		}
	}
	return len(released)
}

func (e *Engine) publishOwnerChanged(key ChunkKey, ownerID string) {
	if e.bus == nil {
		return
	}
	event.Publish(e.bus, event.ChunkOwnerChanged{
		WorldID: key.WorldID,
		X:       key.X,
		Z:       key.Z,
		OwnerID: ownerID,
	})
}

// --- internals (caller holds mu) ---

func (e *Engine) canClaimLocked(t *territory.Territory, player *model.Player, key ChunkKey, ignoreAdjacent bool) Denial {
	if _, ok := e.blacklist[key]; ok {
		return DenialBlacklisted
	}
	if player != nil && !t.HasPermission(player, territory.PermClaimChunk) {
		return DenialNoPermission
	}

	cfg := e.cfg.Current()
	tier := cfg.Tier(t.ClaimTierLevel())

	if e.biomes != nil && !tier.Allows(e.biomes.Biome(key)) {
		return DenialBiome
	}

	owned := e.byOwner[t.ID()]
	if !tier.Unlimited() && len(owned) >= tier.MaxChunks {
		return DenialCapacity
	}
	if tier.ClaimCost > t.Balance() {
		return DenialFunds
	}
	if _, ok := e.chunks[key]; ok {
		return DenialClaimed
	}

	if ignoreAdjacent {
		return DenialNone
	}
	if len(owned) == 0 {
		if e.insideForeignBufferLocked(t.ID(), key, cfg.Claims.BufferZoneChunks) {
			return DenialBufferZone
		}
		return DenialNone
	}
	for _, n := range key.Neighbors() {
		if _, ok := owned[n]; ok {
			return DenialNone
		}
	}
	return DenialAdjacency
}

// insideForeignBufferLocked reports whether any chunk within the buffer
// radius (Chebyshev distance, same world) is owned by another territory.
func (e *Engine) insideForeignBufferLocked(territoryID string, key ChunkKey, radius int32) bool {
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			probe := ChunkKey{WorldID: key.WorldID, X: key.X + dx, Z: key.Z + dz}
			if c, ok := e.chunks[probe]; ok && c.OwnerID != territoryID {
				return true
			}
		}
	}
	return false
}

func (e *Engine) assignLocked(key ChunkKey, ownerID string) {
	c := &ClaimedChunk{Key: key, OwnerID: ownerID}
	e.chunks[key] = c
	owned, ok := e.byOwner[ownerID]
	if !ok {
		owned = make(map[ChunkKey]*ClaimedChunk, 16)
		e.byOwner[ownerID] = owned
	}
	owned[key] = c
}

func (e *Engine) unclaimLocked(key ChunkKey) bool {
	c, ok := e.chunks[key]
	if !ok {
		return false
	}
	delete(e.chunks, key)
	if owned, ok := e.byOwner[c.OwnerID]; ok {
		delete(owned, key)
		if len(owned) == 0 {
			delete(e.byOwner, c.OwnerID)
		}
	}
	return true
}

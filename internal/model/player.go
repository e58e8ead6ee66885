package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Player is the engine's view of a player: identity plus town membership.
// Thread-safe: mutable fields protected by mu.
// World-interaction handlers read TownID/RankID on every permission check,
// so accessors take the read lock only.
type Player struct {
	mu sync.RWMutex

	id   uuid.UUID // immutable
	name string

	townID string // "" = townless
	rankID int32  // rank within the town, meaningless when townless

	online   bool
	lastSeen time.Time
}

// NewPlayer creates a player with the given identity.
func NewPlayer(id uuid.UUID, name string) *Player {
	return &Player{id: id, name: name}
}

// ID returns the player's UUID.
func (p *Player) ID() uuid.UUID {
	return p.id // immutable, no lock needed
}

// Name returns the player's name.
func (p *Player) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// SetName updates the cached name.
func (p *Player) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// TownID returns the id of the player's town, or "" if townless.
func (p *Player) TownID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.townID
}

// RankID returns the player's rank id within their town.
func (p *Player) RankID() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rankID
}

// SetTown sets town membership and rank together so a concurrent reader
// never observes a town with a stale rank.
func (p *Player) SetTown(townID string, rankID int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.townID = townID
	p.rankID = rankID
}

// SetRankID updates the rank pointer within the current town.
func (p *Player) SetRankID(rankID int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rankID = rankID
}

// ClearTown removes town membership.
func (p *Player) ClearTown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.townID = ""
	p.rankID = 0
}

// Online reports whether the player is currently connected.
func (p *Player) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// SetOnline updates the online flag and last-seen timestamp.
func (p *Player) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
	p.lastSeen = time.Now()
}

// LastSeen returns the last connect/disconnect time.
func (p *Player) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// SetLastSeen overrides the last-seen timestamp. Load from storage only.
func (p *Player) SetLastSeen(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = at
}

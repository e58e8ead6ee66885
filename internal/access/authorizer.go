package access

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dominioncraft/dominion/internal/claim"
	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

// Authorizer answers "may this player perform this action in this chunk".
// It fronts the real decision with the TTL cache; bypass players and
// disabled permission types short-circuit to allow without touching the
// cache at all.
//
// Two call shapes exist on purpose: Authorize may hydrate a territory from
// storage through the loader, AuthorizeSync reads only already-resident
// in-memory state and never blocks on I/O.
type Authorizer struct {
	cache   *Cache
	table   *territory.Table
	players *model.Registry
	loader  *territory.Loader
	claims  *claim.Engine

	mu       sync.RWMutex
	bypass   map[uuid.UUID]struct{}
	disabled map[territory.Permission]struct{}
}

// NewAuthorizer wires the authorizer over its collaborators. loader may be
// nil; Authorize then behaves like AuthorizeSync.
func NewAuthorizer(cache *Cache, table *territory.Table, players *model.Registry, loader *territory.Loader, claims *claim.Engine) *Authorizer {
	return &Authorizer{
		cache:    cache,
		table:    table,
		players:  players,
		loader:   loader,
		claims:   claims,
		bypass:   make(map[uuid.UUID]struct{}),
		disabled: make(map[territory.Permission]struct{}),
	}
}

// WireEvents subscribes the cache's invalidation hooks to the semantic
// events that change authorization outcomes.
func (a *Authorizer) WireEvents(bus *event.Bus) {
	event.Subscribe(bus, func(ev event.PlayerRankChanged) {
		a.cache.InvalidatePlayer(ev.PlayerID)
	})
	event.Subscribe(bus, func(ev event.ChunkOwnerChanged) {
		a.cache.InvalidateChunk(ev.WorldID, ev.X, ev.Z)
	})
	event.Subscribe(bus, func(ev event.RelationChanged) {
		a.cache.InvalidateTerritory(ev.TerritoryID)
		a.cache.InvalidateTerritory(ev.OtherID)
	})
	event.Subscribe(bus, func(ev event.TerritoryDeleted) {
		a.cache.Clear()
	})
}

// SetBypass grants or revokes the "sudo" short-circuit for a player.
func (a *Authorizer) SetBypass(playerID uuid.UUID, on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on {
		a.bypass[playerID] = struct{}{}
	} else {
		delete(a.bypass, playerID)
	}
	slog.Info("bypass changed", "player_id", playerID, "enabled", on)
}

// SetPermissionEnabled enables or disables protection for a permission
// type. A disabled type short-circuits every check to allow.
func (a *Authorizer) SetPermissionEnabled(perm territory.Permission, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if enabled {
		delete(a.disabled, perm)
	} else {
		a.disabled[perm] = struct{}{}
	}
}

// Authorize decides whether the player may perform perm in the chunk,
// hydrating the owning territory through the loader if necessary. Safe for
// blocking-tolerant contexts only.
func (a *Authorizer) Authorize(ctx context.Context, playerID uuid.UUID, key claim.ChunkKey, perm territory.Permission) bool {
	if a.shortCircuit(playerID, perm) {
		return true
	}

	cacheKey := Key{PlayerID: playerID, X: key.X, Z: key.Z, WorldID: key.WorldID, Perm: perm}
	if allowed, ok := a.cache.Get(cacheKey); ok {
		return allowed
	}

	allowed := a.compute(ctx, playerID, key, perm, true)
	a.cache.Put(cacheKey, allowed)
	return allowed
}

// AuthorizeSync is the hot-path variant: it consults only the cache and
// already-resident entity state, and never performs I/O. A chunk owned by a
// territory that is not resident denies by default.
func (a *Authorizer) AuthorizeSync(playerID uuid.UUID, key claim.ChunkKey, perm territory.Permission) bool {
	if a.shortCircuit(playerID, perm) {
		return true
	}

	cacheKey := Key{PlayerID: playerID, X: key.X, Z: key.Z, WorldID: key.WorldID, Perm: perm}
	if allowed, ok := a.cache.Get(cacheKey); ok {
		return allowed
	}

	allowed := a.compute(context.Background(), playerID, key, perm, false)
	a.cache.Put(cacheKey, allowed)
	return allowed
}

// shortCircuit handles the two cache-skipping fast paths.
func (a *Authorizer) shortCircuit(playerID uuid.UUID, perm territory.Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.disabled[perm]; ok {
		return true
	}
	_, ok := a.bypass[playerID]
	return ok
}

// compute is the real authorization decision: chunk ownership, the chunk's
// own policy, the player's rank permissions, and worst-relation/war status.
func (a *Authorizer) compute(ctx context.Context, playerID uuid.UUID, key claim.ChunkKey, perm territory.Permission, mayLoad bool) bool {
	ownerID := a.claims.OwnerOf(key)
	if ownerID == "" {
		// Wilderness is unprotected.
		return true
	}

	owner := a.resolve(ctx, ownerID, mayLoad)
	if owner == nil {
		// Owner not resident (sync path) or unknown: deny rather than
		// guess.
		return false
	}

	policy, _ := a.claims.PolicyOf(key)
	player := a.players.Player(playerID)
	if player == nil {
		return policy.AccessFor(perm) == claim.AccessEveryone
	}

	if owner.IsMember(playerID) || owner.LeaderID() == playerID {
		if policy.AccessFor(perm) == claim.AccessNobody {
			return false
		}
		return owner.HasPermission(player, perm)
	}

	rel := a.table.WorstRelationWith(owner, player)
	if rel == territory.RelationEnemy && a.underAttackFrom(owner, player) {
		// Active war overrides chunk protection for the attackers.
		return true
	}
	return policy.Admits(perm, rel)
}

// resolve finds the owning territory in the table, or hydrates it through
// the loader when the caller tolerates blocking.
func (a *Authorizer) resolve(ctx context.Context, id string, mayLoad bool) *territory.Territory {
	if t := a.table.Territory(id); t != nil {
		return t
	}
	if a.loader == nil {
		return nil
	}
	if !mayLoad {
		return a.loader.Resident(id)
	}
	t, err := a.loader.Get(ctx, id)
	if err != nil {
		slog.Warn("authorization hydration failed", "territory_id", id, "err", err)
		return nil
	}
	return t
}

// underAttackFrom reports whether the player's town has an announced attack
// against the territory.
func (a *Authorizer) underAttackFrom(t *territory.Territory, player *model.Player) bool {
	townID := player.TownID()
	if townID == "" {
		return false
	}
	war := t.War()
	for _, attackerID := range war.IncomingAttacks {
		if attackerID == townID {
			return true
		}
	}
	return false
}

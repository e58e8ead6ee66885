package model

import (
	"sync"

	"github.com/google/uuid"
)

// Registry holds all players known to the engine in memory.
// Thread-safe: protected by RWMutex.
type Registry struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
}

// NewRegistry creates an empty player registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[uuid.UUID]*Player, 1024)}
}

// Player returns a player by id, or nil if unknown.
func (r *Registry) Player(id uuid.UUID) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players[id]
}

// Register adds a player to the registry, replacing any prior entry.
func (r *Registry) Register(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[p.ID()] = p
}

// Unregister removes a player from the registry.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
}

// Count returns the number of registered players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Members returns a snapshot of players currently in the given town.
func (r *Registry) Members(townID string) []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Player
	for _, p := range r.players {
		if p.TownID() == townID {
			result = append(result, p)
		}
	}
	return result
}

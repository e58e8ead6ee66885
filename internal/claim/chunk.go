package claim

import (
	"fmt"

	"github.com/google/uuid"
)

// ChunkKey identifies a world chunk: world id plus chunk-grid coordinates.
type ChunkKey struct {
	WorldID uuid.UUID
	X, Z    int32
}

// String returns a compact "world:x:z" form for logs.
func (k ChunkKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.WorldID, k.X, k.Z)
}

// Neighbors returns the 4-neighborhood of the chunk within its world.
func (k ChunkKey) Neighbors() [4]ChunkKey {
	return [4]ChunkKey{
		{WorldID: k.WorldID, X: k.X + 1, Z: k.Z},
		{WorldID: k.WorldID, X: k.X - 1, Z: k.Z},
		{WorldID: k.WorldID, X: k.X, Z: k.Z + 1},
		{WorldID: k.WorldID, X: k.X, Z: k.Z - 1},
	}
}

// ClaimedChunk is a chunk owned by a territory. Guarded by the engine's
// lock; the Policy value is replaced wholesale on edit.
type ClaimedChunk struct {
	Key     ChunkKey
	OwnerID string
	Policy  Policy
}

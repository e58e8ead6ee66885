package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dominioncraft/dominion/internal/claim"
	"github.com/dominioncraft/dominion/internal/territory"
)

// ChunkRepository handles claimed-chunk persistence to PostgreSQL.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// ChunkRow represents a claimed_chunks row.
type ChunkRow struct {
	WorldID           uuid.UUID
	X                 int32
	Z                 int32
	TerritoryID       string
	PvPEnabled        bool
	ExplosionsEnabled bool
	FireSpreadEnabled bool
	Rules             map[territory.Permission]claim.Access
}

// LoadAllChunks reads every claimed chunk into the engine.
func (r *ChunkRepository) LoadAllChunks(ctx context.Context, engine *claim.Engine) (int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT world_id, x, z, territory_id, pvp_enabled, explosions_enabled,
		        fire_spread_enabled, rules
		 FROM claimed_chunks`)
	if err != nil {
		return 0, fmt.Errorf("query claimed_chunks: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var cr ChunkRow
		var rules []byte
		if err := rows.Scan(&cr.WorldID, &cr.X, &cr.Z, &cr.TerritoryID,
			&cr.PvPEnabled, &cr.ExplosionsEnabled, &cr.FireSpreadEnabled,
			&rules); err != nil {
			return count, fmt.Errorf("scan claimed_chunks: %w", err)
		}
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &cr.Rules); err != nil {
				return count, fmt.Errorf("decode chunk rules %s:%d:%d: %w",
					cr.WorldID, cr.X, cr.Z, err)
			}
		}
		engine.Restore(
			claim.ChunkKey{WorldID: cr.WorldID, X: cr.X, Z: cr.Z},
			cr.TerritoryID,
			claim.Policy{
				PvPEnabled:        cr.PvPEnabled,
				ExplosionsEnabled: cr.ExplosionsEnabled,
				FireSpreadEnabled: cr.FireSpreadEnabled,
				Rules:             cr.Rules,
			})
		count++
	}
	return count, rows.Err()
}

// SaveChunk upserts a single claimed chunk.
func (r *ChunkRepository) SaveChunk(ctx context.Context, c claim.ClaimedChunk) error {
	rules, err := json.Marshal(c.Policy.Rules)
	if err != nil {
		return fmt.Errorf("encode chunk rules %s: %w", c.Key, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO claimed_chunks (world_id, x, z, territory_id, pvp_enabled,
		        explosions_enabled, fire_spread_enabled, rules)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (world_id, x, z) DO UPDATE SET
		        territory_id = EXCLUDED.territory_id,
		        pvp_enabled = EXCLUDED.pvp_enabled,
		        explosions_enabled = EXCLUDED.explosions_enabled,
		        fire_spread_enabled = EXCLUDED.fire_spread_enabled,
		        rules = EXCLUDED.rules`,
		c.Key.WorldID, c.Key.X, c.Key.Z, c.OwnerID,
		c.Policy.PvPEnabled, c.Policy.ExplosionsEnabled,
		c.Policy.FireSpreadEnabled, rules)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", c.Key, err)
	}
	return nil
}

// DeleteChunk removes a claimed chunk.
func (r *ChunkRepository) DeleteChunk(ctx context.Context, key claim.ChunkKey) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM claimed_chunks WHERE world_id = $1 AND x = $2 AND z = $3`,
		key.WorldID, key.X, key.Z)
	if err != nil {
		return fmt.Errorf("deleting chunk %s: %w", key, err)
	}
	return nil
}

// DeleteTerritoryChunks removes every chunk held by the territory.
func (r *ChunkRepository) DeleteTerritoryChunks(ctx context.Context, territoryID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM claimed_chunks WHERE territory_id = $1`, territoryID)
	if err != nil {
		return fmt.Errorf("deleting chunks of %q: %w", territoryID, err)
	}
	return nil
}

// SaveAllChunks rewrites the whole table from the engine snapshot in one
// transaction. Used on shutdown.
func (r *ChunkRepository) SaveAllChunks(ctx context.Context, engine *claim.Engine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM claimed_chunks`); err != nil {
		return fmt.Errorf("clear claimed_chunks: %w", err)
	}
	for _, c := range engine.AllClaims() {
		rules, err := json.Marshal(c.Policy.Rules)
		if err != nil {
			return fmt.Errorf("encode chunk rules %s: %w", c.Key, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO claimed_chunks (world_id, x, z, territory_id, pvp_enabled,
			        explosions_enabled, fire_spread_enabled, rules)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			c.Key.WorldID, c.Key.X, c.Key.Z, c.OwnerID,
			c.Policy.PvPEnabled, c.Policy.ExplosionsEnabled,
			c.Policy.FireSpreadEnabled, rules); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.Key, err)
		}
	}
	return tx.Commit(ctx)
}

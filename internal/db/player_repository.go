package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dominioncraft/dominion/internal/model"
)

// PlayerRepository handles player persistence to PostgreSQL.
type PlayerRepository struct {
	pool *pgxpool.Pool
}

// NewPlayerRepository creates a new player repository.
func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// PlayerRow represents a players row.
type PlayerRow struct {
	PlayerID uuid.UUID
	Name     string
	LastSeen time.Time
}

// LoadPlayer loads one player. Returns nil, nil if the id is unknown.
// Town membership is restored separately from territory data.
func (r *PlayerRepository) LoadPlayer(ctx context.Context, id uuid.UUID) (*model.Player, error) {
	var row PlayerRow
	err := r.pool.QueryRow(ctx,
		`SELECT player_id, name, last_seen FROM players WHERE player_id = $1`, id).
		Scan(&row.PlayerID, &row.Name, &row.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying player %s: %w", id, err)
	}
	p := model.NewPlayer(row.PlayerID, row.Name)
	p.SetLastSeen(row.LastSeen)
	return p, nil
}

// LoadAllPlayers loads every known player into the registry.
func (r *PlayerRepository) LoadAllPlayers(ctx context.Context, reg *model.Registry) (int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT player_id, name, last_seen FROM players`)
	if err != nil {
		return 0, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var row PlayerRow
		if err := rows.Scan(&row.PlayerID, &row.Name, &row.LastSeen); err != nil {
			return count, fmt.Errorf("scan players: %w", err)
		}
		p := model.NewPlayer(row.PlayerID, row.Name)
		p.SetLastSeen(row.LastSeen)
		reg.Register(p)
		count++
	}
	return count, rows.Err()
}

// SavePlayer upserts the player's identity row.
func (r *PlayerRepository) SavePlayer(ctx context.Context, p *model.Player) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO players (player_id, name, last_seen)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (player_id) DO UPDATE SET
		        name = EXCLUDED.name, last_seen = EXCLUDED.last_seen`,
		p.ID(), p.Name(), p.LastSeen())
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID(), err)
	}
	return nil
}

// DeletePlayer removes the player row.
func (r *PlayerRepository) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM players WHERE player_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting player %s: %w", id, err)
	}
	return nil
}

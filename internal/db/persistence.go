package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dominioncraft/dominion/internal/claim"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

// WorldPersistenceService saves and restores the whole world state: the
// territory table, the claim map and the player registry. Territories are
// saved one transaction each; a failed save is logged and the pass
// continues with the rest.
type WorldPersistenceService struct {
	territoryRepo *TerritoryRepository
	chunkRepo     *ChunkRepository
	playerRepo    *PlayerRepository
	table         *territory.Table
	engine        *claim.Engine
	players       *model.Registry
	flushInterval time.Duration
}

// NewWorldPersistenceService creates a new service.
func NewWorldPersistenceService(
	territoryRepo *TerritoryRepository,
	chunkRepo *ChunkRepository,
	playerRepo *PlayerRepository,
	table *territory.Table,
	engine *claim.Engine,
	players *model.Registry,
	flushInterval time.Duration,
) *WorldPersistenceService {
	return &WorldPersistenceService{
		territoryRepo: territoryRepo,
		chunkRepo:     chunkRepo,
		playerRepo:    playerRepo,
		table:         table,
		engine:        engine,
		players:       players,
		flushInterval: flushInterval,
	}
}

// LoadWorld populates the table, the claim engine and the registry from
// storage. Also restores town membership on registered players and advances
// the territory id counter past the highest persisted id.
func (s *WorldPersistenceService) LoadWorld(ctx context.Context) error {
	playerCount, err := s.playerRepo.LoadAllPlayers(ctx, s.players)
	if err != nil {
		return fmt.Errorf("loading players: %w", err)
	}

	territories, err := s.territoryRepo.LoadAllTerritories(ctx)
	if err != nil {
		return fmt.Errorf("loading territories: %w", err)
	}

	maxID := int64(0)
	for _, t := range territories {
		if err := s.table.Register(t); err != nil {
			return fmt.Errorf("registering territory %q: %w", t.ID(), err)
		}
		if n := numericID(t.ID()); n > maxID {
			maxID = n
		}
		for _, r := range t.Ranks() {
			for _, memberID := range r.Members {
				if p := s.players.Player(memberID); p != nil {
					p.SetTown(t.ID(), r.ID)
				}
			}
		}
	}
	s.table.SetNextID(maxID)

	chunkCount, err := s.chunkRepo.LoadAllChunks(ctx, s.engine)
	if err != nil {
		return fmt.Errorf("loading chunks: %w", err)
	}

	slog.Info("world loaded",
		"territories", len(territories),
		"chunks", chunkCount,
		"players", playerCount)
	return nil
}

// SaveWorld writes the full world state back to storage. Per-territory
// failures are collected and returned joined; a single bad territory does
// not block the rest.
func (s *WorldPersistenceService) SaveWorld(ctx context.Context) error {
	start := time.Now()
	var errs []error

	saved := 0
	for _, t := range s.table.All() {
		if err := s.territoryRepo.SaveTerritory(ctx, t); err != nil {
			slog.Error("saving territory", "territory_id", t.ID(), "err", err)
			errs = append(errs, err)
			continue
		}
		saved++
	}

	if err := s.chunkRepo.SaveAllChunks(ctx, s.engine); err != nil {
		slog.Error("saving chunks", "err", err)
		errs = append(errs, err)
	}

	slog.Info("world saved",
		"territories", saved,
		"duration", time.Since(start))
	return errors.Join(errs...)
}

// Start runs the periodic flush loop until the context is cancelled, then
// performs one final save.
func (s *WorldPersistenceService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return s.SaveWorld(saveCtx)
		case <-ticker.C:
			if err := s.SaveWorld(ctx); err != nil {
				slog.Error("periodic save", "err", err)
			}
		}
	}
}

// numericID parses the digits of a "T000042"/"R000042" style id.
func numericID(id string) int64 {
	if len(id) < 2 {
		return 0
	}
	n, err := strconv.ParseInt(id[1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

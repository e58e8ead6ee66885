package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dominioncraft/dominion/internal/territory"
)

// TerritoryRepository handles territory persistence to PostgreSQL.
// LoadTerritory satisfies territory.Store.
type TerritoryRepository struct {
	pool *pgxpool.Pool
}

// NewTerritoryRepository creates a new territory repository.
func NewTerritoryRepository(pool *pgxpool.Pool) *TerritoryRepository {
	return &TerritoryRepository{pool: pool}
}

// TerritoryRow represents a territory_data row.
type TerritoryRow struct {
	TerritoryID  string
	Kind         int32
	Name         string
	LeaderID     uuid.UUID
	CreatedAt    time.Time
	OverlordID   *string
	Balance      float64
	DefaultRank  int32
	BaseTax      float64
	PropertyRate float64
	RentRate     float64
	SaleRate     float64
	Description  string
	IconID       int32
	Color        int32
}

// RankRow represents a territory_ranks row.
type RankRow struct {
	TerritoryID string
	RankID      int32
	Name        string
	Level       int32
	Permissions int32
	Salary      int64
	PayingTaxes bool
	IconID      int32
}

// MemberRow represents a territory_members row.
type MemberRow struct {
	PlayerID    uuid.UUID
	TerritoryID string
	RankID      int32
}

// LoadTerritory loads and assembles one territory. Returns nil, nil if the
// id is unknown.
func (r *TerritoryRepository) LoadTerritory(ctx context.Context, id string) (*territory.Territory, error) {
	row, err := r.loadRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return r.assemble(ctx, row)
}

// LoadAllTerritories loads and assembles every territory.
func (r *TerritoryRepository) LoadAllTerritories(ctx context.Context) ([]*territory.Territory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT territory_id, kind, name, leader_id, created_at, overlord_id,
		        balance, default_rank, base_tax, property_rate, rent_rate,
		        sale_rate, description, icon_id, color
		 FROM territory_data ORDER BY territory_id`)
	if err != nil {
		return nil, fmt.Errorf("query territory_data: %w", err)
	}
	defer rows.Close()

	var trows []TerritoryRow
	for rows.Next() {
		var tr TerritoryRow
		if err := scanTerritoryRow(rows, &tr); err != nil {
			return nil, err
		}
		trows = append(trows, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*territory.Territory, 0, len(trows))
	for i := range trows {
		t, err := r.assemble(ctx, &trows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *TerritoryRepository) loadRow(ctx context.Context, id string) (*TerritoryRow, error) {
	var tr TerritoryRow
	err := scanTerritoryRow(r.pool.QueryRow(ctx,
		`SELECT territory_id, kind, name, leader_id, created_at, overlord_id,
		        balance, default_rank, base_tax, property_rate, rent_rate,
		        sale_rate, description, icon_id, color
		 FROM territory_data WHERE territory_id = $1`, id), &tr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying territory %q: %w", id, err)
	}
	return &tr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerritoryRow(s rowScanner, tr *TerritoryRow) error {
	return s.Scan(
		&tr.TerritoryID, &tr.Kind, &tr.Name, &tr.LeaderID, &tr.CreatedAt,
		&tr.OverlordID, &tr.Balance, &tr.DefaultRank, &tr.BaseTax,
		&tr.PropertyRate, &tr.RentRate, &tr.SaleRate, &tr.Description,
		&tr.IconID, &tr.Color,
	)
}

// assemble hydrates the full entity from its component tables.
func (r *TerritoryRepository) assemble(ctx context.Context, row *TerritoryRow) (*territory.Territory, error) {
	t := territory.New(row.TerritoryID, territory.Kind(row.Kind), row.Name, row.LeaderID)
	t.SetCreatedAt(row.CreatedAt)
	t.SetBalance(row.Balance)
	t.SetTaxes(territory.Taxes{
		BaseTax:      row.BaseTax,
		PropertyRate: row.PropertyRate,
		RentRate:     row.RentRate,
		SaleRate:     row.SaleRate,
	})
	t.SetCosmetics(territory.Cosmetics{
		Description: row.Description,
		IconID:      row.IconID,
		Color:       row.Color,
	})
	if row.OverlordID != nil && *row.OverlordID != "" {
		t.RestoreOverlord(*row.OverlordID)
	}

	if err := r.loadRanks(ctx, t); err != nil {
		return nil, err
	}
	t.SetDefaultRank(row.DefaultRank)

	if err := r.loadRelations(ctx, t); err != nil {
		return nil, err
	}
	if err := r.loadProposals(ctx, t); err != nil {
		return nil, err
	}
	if err := r.loadUpgrades(ctx, t); err != nil {
		return nil, err
	}
	if err := r.loadWar(ctx, t); err != nil {
		return nil, err
	}
	if err := r.loadVassals(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TerritoryRepository) loadRanks(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT rank_id, name, level, permissions, salary, paying_taxes, icon_id
		 FROM territory_ranks WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_ranks: %w", err)
	}
	defer rows.Close()

	t.ResetRanks()
	for rows.Next() {
		rank := &territory.Rank{}
		var perms int32
		if err := rows.Scan(&rank.ID, &rank.Name, &rank.Level, &perms,
			&rank.Salary, &rank.PayingTaxes, &rank.IconID); err != nil {
			return fmt.Errorf("scan territory_ranks: %w", err)
		}
		rank.Permissions = territory.Permission(perms)
		if err := r.loadRankMembers(ctx, t.ID(), rank); err != nil {
			return err
		}
		t.RestoreRank(rank)
	}
	return rows.Err()
}

func (r *TerritoryRepository) loadRankMembers(ctx context.Context, territoryID string, rank *territory.Rank) error {
	rows, err := r.pool.Query(ctx,
		`SELECT player_id FROM territory_members
		 WHERE territory_id = $1 AND rank_id = $2`, territoryID, rank.ID)
	if err != nil {
		return fmt.Errorf("query territory_members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan territory_members: %w", err)
		}
		rank.Members = append(rank.Members, id)
	}
	return rows.Err()
}

func (r *TerritoryRepository) loadRelations(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT other_id, relation FROM territory_relations WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_relations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var otherID string
		var rel int32
		if err := rows.Scan(&otherID, &rel); err != nil {
			return fmt.Errorf("scan territory_relations: %w", err)
		}
		t.RestoreRelation(otherID, territory.Relation(rel))
	}
	return rows.Err()
}

func (r *TerritoryRepository) loadProposals(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT proposer_id, wanted_relation FROM territory_proposals WHERE target_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_proposals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var proposerID string
		var rel int32
		if err := rows.Scan(&proposerID, &rel); err != nil {
			return fmt.Errorf("scan territory_proposals: %w", err)
		}
		t.ReceiveDiplomaticProposal(proposerID, territory.Relation(rel))
	}
	return rows.Err()
}

func (r *TerritoryRepository) loadUpgrades(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT upgrade_id, level FROM territory_upgrades WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_upgrades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var level int32
		if err := rows.Scan(&id, &level); err != nil {
			return fmt.Errorf("scan territory_upgrades: %w", err)
		}
		t.SetUpgradeLevel(id, level)
	}
	return rows.Err()
}

func (r *TerritoryRepository) loadWar(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT attacker_id FROM territory_attacks WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_attacks: %w", err)
	}
	for rows.Next() {
		var attackerID string
		if err := rows.Scan(&attackerID); err != nil {
			rows.Close()
			return fmt.Errorf("scan territory_attacks: %w", err)
		}
		t.AddIncomingAttack(attackerID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT fort_id, occupied FROM territory_forts WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_forts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fortID string
		var occupied bool
		if err := rows.Scan(&fortID, &occupied); err != nil {
			return fmt.Errorf("scan territory_forts: %w", err)
		}
		if occupied {
			t.OccupyFort(fortID)
		} else {
			t.AddOwnedFort(fortID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	claimRows, err := r.pool.Query(ctx,
		`SELECT enemy_id, claims FROM territory_enemy_claims WHERE territory_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query territory_enemy_claims: %w", err)
	}
	defer claimRows.Close()
	for claimRows.Next() {
		var enemyID string
		var n int32
		if err := claimRows.Scan(&enemyID, &n); err != nil {
			return fmt.Errorf("scan territory_enemy_claims: %w", err)
		}
		t.AddEnemyClaims(enemyID, n)
	}
	return claimRows.Err()
}

func (r *TerritoryRepository) loadVassals(ctx context.Context, t *territory.Territory) error {
	rows, err := r.pool.Query(ctx,
		`SELECT territory_id FROM territory_data WHERE overlord_id = $1`, t.ID())
	if err != nil {
		return fmt.Errorf("query vassals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan vassals: %w", err)
		}
		t.RestoreVassal(id)
	}
	return rows.Err()
}

// SaveTerritory upserts the full territory state in one transaction.
func (r *TerritoryRepository) SaveTerritory(ctx context.Context, t *territory.Territory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save territory %q: %w", t.ID(), err)
	}
	defer tx.Rollback(ctx)

	var overlordID *string
	if o := t.OverlordID(); o != "" {
		overlordID = &o
	}
	taxes := t.Taxes()
	cosmetics := t.Cosmetics()

	_, err = tx.Exec(ctx,
		`INSERT INTO territory_data (territory_id, kind, name, leader_id, created_at,
		        overlord_id, balance, default_rank, base_tax, property_rate,
		        rent_rate, sale_rate, description, icon_id, color)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (territory_id) DO UPDATE SET
		        name = EXCLUDED.name, leader_id = EXCLUDED.leader_id,
		        overlord_id = EXCLUDED.overlord_id, balance = EXCLUDED.balance,
		        default_rank = EXCLUDED.default_rank, base_tax = EXCLUDED.base_tax,
		        property_rate = EXCLUDED.property_rate, rent_rate = EXCLUDED.rent_rate,
		        sale_rate = EXCLUDED.sale_rate, description = EXCLUDED.description,
		        icon_id = EXCLUDED.icon_id, color = EXCLUDED.color`,
		t.ID(), int32(t.Kind()), t.Name(), t.LeaderID(), t.CreatedAt(),
		overlordID, t.Balance(), t.DefaultRankID(), taxes.BaseTax,
		taxes.PropertyRate, taxes.RentRate, taxes.SaleRate,
		cosmetics.Description, cosmetics.IconID, cosmetics.Color)
	if err != nil {
		return fmt.Errorf("upsert territory_data %q: %w", t.ID(), err)
	}

	// Component tables: replace wholesale.
	for _, table := range []string{
		"territory_ranks", "territory_members", "territory_relations",
		"territory_upgrades", "territory_attacks", "territory_forts",
		"territory_enemy_claims",
	} {
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE territory_id = $1`, t.ID()); err != nil {
			return fmt.Errorf("clear %s for %q: %w", table, t.ID(), err)
		}
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM territory_proposals WHERE target_id = $1`, t.ID()); err != nil {
		return fmt.Errorf("clear territory_proposals for %q: %w", t.ID(), err)
	}

	for _, rank := range t.Ranks() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_ranks (territory_id, rank_id, name, level,
			        permissions, salary, paying_taxes, icon_id)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			t.ID(), rank.ID, rank.Name, rank.Level, int32(rank.Permissions),
			rank.Salary, rank.PayingTaxes, rank.IconID); err != nil {
			return fmt.Errorf("insert territory_ranks %q/%d: %w", t.ID(), rank.ID, err)
		}
		for _, memberID := range rank.Members {
			if _, err := tx.Exec(ctx,
				`INSERT INTO territory_members (player_id, territory_id, rank_id)
				 VALUES ($1,$2,$3)`, memberID, t.ID(), rank.ID); err != nil {
				return fmt.Errorf("insert territory_members %q: %w", t.ID(), err)
			}
		}
	}

	for otherID, rel := range t.Relations() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_relations (territory_id, other_id, relation)
			 VALUES ($1,$2,$3)`, t.ID(), otherID, int32(rel)); err != nil {
			return fmt.Errorf("insert territory_relations %q: %w", t.ID(), err)
		}
	}

	for _, p := range t.Proposals() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_proposals (target_id, proposer_id, wanted_relation)
			 VALUES ($1,$2,$3)`, t.ID(), p.ProposerID, int32(p.WantedRelation)); err != nil {
			return fmt.Errorf("insert territory_proposals %q: %w", t.ID(), err)
		}
	}

	for upgradeID, level := range t.Upgrades() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_upgrades (territory_id, upgrade_id, level)
			 VALUES ($1,$2,$3)`, t.ID(), upgradeID, level); err != nil {
			return fmt.Errorf("insert territory_upgrades %q: %w", t.ID(), err)
		}
	}

	war := t.War()
	for _, attackerID := range war.IncomingAttacks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_attacks (territory_id, attacker_id)
			 VALUES ($1,$2)`, t.ID(), attackerID); err != nil {
			return fmt.Errorf("insert territory_attacks %q: %w", t.ID(), err)
		}
	}
	for _, fortID := range war.OwnedForts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_forts (territory_id, fort_id, occupied)
			 VALUES ($1,$2,FALSE)`, t.ID(), fortID); err != nil {
			return fmt.Errorf("insert territory_forts %q: %w", t.ID(), err)
		}
	}
	for _, fortID := range war.OccupiedForts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_forts (territory_id, fort_id, occupied)
			 VALUES ($1,$2,TRUE)`, t.ID(), fortID); err != nil {
			return fmt.Errorf("insert territory_forts %q: %w", t.ID(), err)
		}
	}

	for enemyID, n := range t.EnemyClaimCounts() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO territory_enemy_claims (territory_id, enemy_id, claims)
			 VALUES ($1,$2,$3)`, t.ID(), enemyID, n); err != nil {
			return fmt.Errorf("insert territory_enemy_claims %q: %w", t.ID(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save territory %q: %w", t.ID(), err)
	}
	return nil
}

// DeleteTerritory removes the territory and, via cascade, its components.
func (r *TerritoryRepository) DeleteTerritory(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM territory_data WHERE territory_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting territory %q: %w", id, err)
	}
	return nil
}

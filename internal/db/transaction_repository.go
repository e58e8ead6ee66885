package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dominioncraft/dominion/internal/economy"
)

// TransactionRepository appends and queries treasury history.
// It satisfies economy.Ledger.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// TransactionRow represents a transactions row.
type TransactionRow struct {
	ID          int64
	TerritoryID string
	Kind        economy.TransactionKind
	Amount      float64
	Party       string
	CreatedAt   time.Time
}

// RecordTransaction appends one history entry.
func (r *TransactionRepository) RecordTransaction(ctx context.Context, territoryID string, kind economy.TransactionKind, amount float64, party string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (territory_id, kind, amount, party, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		territoryID, string(kind), amount, party, at)
	if err != nil {
		return fmt.Errorf("insert transaction for %q: %w", territoryID, err)
	}
	return nil
}

// TransactionHistory returns the territory's latest entries, newest first.
// A zero kind means all kinds; limit caps the result.
func (r *TransactionRepository) TransactionHistory(ctx context.Context, territoryID string, kind economy.TransactionKind, limit int) ([]TransactionRow, error) {
	query := `SELECT id, territory_id, kind, amount, party, created_at
	          FROM transactions WHERE territory_id = $1`
	args := []any{territoryID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions for %q: %w", territoryID, err)
	}
	defer rows.Close()

	var result []TransactionRow
	for rows.Next() {
		var tr TransactionRow
		var k string
		if err := rows.Scan(&tr.ID, &tr.TerritoryID, &k, &tr.Amount,
			&tr.Party, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transactions: %w", err)
		}
		tr.Kind = economy.TransactionKind(k)
		result = append(result, tr)
	}
	return result, rows.Err()
}

// PruneTransactions deletes entries older than the cutoff and returns the
// number removed.
func (r *TransactionRepository) PruneTransactions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM transactions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("pruning transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

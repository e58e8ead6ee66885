package economy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dominioncraft/dominion/internal/claim"
	"github.com/dominioncraft/dominion/internal/config"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

// TransactionKind classifies a treasury history entry.
type TransactionKind string

const (
	KindTax     TransactionKind = "tax"
	KindSalary  TransactionKind = "salary"
	KindUpkeep  TransactionKind = "upkeep"
	KindClaim   TransactionKind = "claim"
	KindDeposit TransactionKind = "deposit"
)

// ShortfallMarker is the sentinel amount recorded instead of an upkeep
// deduction when the treasury cannot cover it.
const ShortfallMarker = -1

// Ledger records treasury history. Implementations may persist
// asynchronously; a failed write must not abort the cycle.
type Ledger interface {
	RecordTransaction(ctx context.Context, territoryID string, kind TransactionKind, amount float64, party string, at time.Time) error
}

// Wallet credits player balances (the external economy bridge). Nil-safe:
// without one, salary credits are ledger-only.
type Wallet interface {
	Deposit(playerID uuid.UUID, amount float64)
}

// Manager runs the scheduled economy cycle. Per territory the three steps
// execute strictly in order — taxes, salaries, upkeep — and the whole
// sequence is one unit; different territories may run concurrently since
// each touches only its own state plus independent chunk cells.
type Manager struct {
	cfg     *config.Snapshot
	table   *territory.Table
	claims  *claim.Engine
	players *model.Registry
	ledger  Ledger
	wallet  Wallet
}

// NewManager creates an economy manager. wallet may be nil.
func NewManager(cfg *config.Snapshot, table *territory.Table, claims *claim.Engine, players *model.Registry, ledger Ledger, wallet Wallet) *Manager {
	return &Manager{
		cfg:     cfg,
		table:   table,
		claims:  claims,
		players: players,
		ledger:  ledger,
		wallet:  wallet,
	}
}

// Start runs the cycle on the configured schedule until the context is
// cancelled. A tick that overruns simply delays the next one; the cycle
// never runs partially.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Current().Economy.TickInterval)
	defer ticker.Stop()

	slog.Info("economy cycle started", "interval", m.cfg.Current().Economy.TickInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("economy cycle stopping")
			return ctx.Err()
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full economy cycle over every territory, bounded by
// the configured worker count.
func (m *Manager) RunCycle(ctx context.Context) {
	started := time.Now()
	territories := m.table.All()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Current().Economy.Workers)
	for _, t := range territories {
		g.Go(func() error {
			m.ExecuteTasks(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("economy cycle finished", "territories", len(territories), "took", time.Since(started))
}

// ExecuteTasks runs the three per-territory economy steps in fixed order.
// Salaries are evaluated before upkeep on purpose: a territory can pay
// salaries and still shed chunks in the same cycle.
func (m *Manager) ExecuteTasks(ctx context.Context, t *territory.Territory) {
	m.CollectTaxes(ctx, t)
	m.PaySalaries(ctx, t)
	m.PayChunkUpkeep(ctx, t)
}

// CollectTaxes adds the territory's periodic revenue to its treasury.
// Towns levy the flat base tax on every member of a tax-paying rank;
// regions levy their property rate against each vassal's treasury.
func (m *Manager) CollectTaxes(ctx context.Context, t *territory.Territory) {
	switch t.Kind() {
	case territory.KindTown:
		m.collectTownTaxes(ctx, t)
	case territory.KindRegion:
		m.collectRegionTaxes(ctx, t)
	}
}

func (m *Manager) collectTownTaxes(ctx context.Context, t *territory.Territory) {
	base := t.Taxes().BaseTax
	if base == 0 {
		return
	}

	payers := 0
	for _, r := range t.Ranks() {
		if r.PayingTaxes {
			payers += len(r.Members)
		}
	}
	if payers == 0 {
		return
	}

	revenue := base * float64(payers)
	m.adjustBalance(t, revenue)
	m.record(ctx, t.ID(), KindTax, revenue, "")
}

func (m *Manager) collectRegionTaxes(ctx context.Context, region *territory.Territory) {
	rate := region.Taxes().PropertyRate
	if rate <= 0 {
		return
	}

	for _, vassalID := range region.Vassals() {
		vassal := m.table.Territory(vassalID)
		if vassal == nil {
			continue
		}
		levy := vassal.Levy(rate)
		if levy <= 0 {
			continue
		}
		_ = region.AddToBalance(levy)
		m.record(ctx, region.ID(), KindTax, levy, vassalID)
		m.record(ctx, vassalID, KindTax, -levy, region.ID())
	}
}

// PaySalaries pays each salaried rank all-or-nothing: if the rank's full
// cost exceeds the balance the rank is skipped entirely; otherwise the cost
// is deducted once and every member is credited individually, with one
// history entry per member payment.
func (m *Manager) PaySalaries(ctx context.Context, t *territory.Territory) {
	for _, r := range t.Ranks() {
		if r.Salary <= 0 || len(r.Members) == 0 {
			continue
		}
		salary := float64(r.Salary)
		cost := salary * float64(len(r.Members))
		if cost > t.Balance() {
			slog.Debug("salary skipped", "territory_id", t.ID(), "rank_id", r.ID, "cost", cost, "balance", t.Balance())
			continue
		}
		_ = t.RemoveFromBalance(cost)
		for _, memberID := range r.Members {
			if m.wallet != nil {
				m.wallet.Deposit(memberID, salary)
			}
			m.record(ctx, t.ID(), KindSalary, -salary, memberID.String())
		}
	}
}

// PayChunkUpkeep bills the per-chunk upkeep. On shortfall the balance is
// left untouched; instead the forced-release policy sheds border chunks and
// a sentinel history entry marks the failure. Chunk loss is destructive and
// player-impacting, so the claim engine broadcasts it.
func (m *Manager) PayChunkUpkeep(ctx context.Context, t *territory.Territory) {
	cfg := m.cfg.Current().Economy
	count := m.claims.ClaimCount(t.ID())
	if count == 0 {
		return
	}

	total := cfg.PerChunkUpkeep * float64(count)
	if total > t.Balance() {
		released := m.claims.ReleasePortion(t.ID(), cfg.ReleaseChance, cfg.MinimumReleased)
		slog.Warn("upkeep shortfall", "territory_id", t.ID(), "upkeep", total, "balance", t.Balance(), "released", released)
		m.record(ctx, t.ID(), KindUpkeep, ShortfallMarker, "")
		return
	}

	_ = t.RemoveFromBalance(total)
	m.record(ctx, t.ID(), KindUpkeep, -total, "")
}

// adjustBalance applies a signed delta; a negative base tax is a subsidy
// paid out of the treasury.
func (m *Manager) adjustBalance(t *territory.Territory, delta float64) {
	if delta >= 0 {
		_ = t.AddToBalance(delta)
		return
	}
	_ = t.RemoveFromBalance(-delta)
}

// record appends a ledger entry; a failed write is logged and the cycle
// continues, leaving the in-memory state authoritative.
func (m *Manager) record(ctx context.Context, territoryID string, kind TransactionKind, amount float64, party string) {
	if m.ledger == nil {
		return
	}
	if err := m.ledger.RecordTransaction(ctx, territoryID, kind, amount, party, time.Now()); err != nil {
		slog.Error("recording transaction", "territory_id", territoryID, "kind", string(kind), "err", err)
	}
}

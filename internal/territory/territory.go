package territory

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dominioncraft/dominion/internal/model"
)

// Kind distinguishes the two territory variants.
type Kind int32

const (
	KindTown Kind = iota
	KindRegion
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindRegion {
		return "region"
	}
	return "town"
}

// Hierarchy ranks: regions sit above towns in the overlord chain.
const (
	hierarchyTown   = 1
	hierarchyRegion = 2
)

// Common territory errors.
var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrRankNotFound   = errors.New("rank not found")
	ErrNotMember      = errors.New("player is not a member")
)

// InsufficientFundsError is returned by explicit transaction APIs when the
// treasury cannot cover the requested amount. Carries enough context to
// build a precise user message without re-reading state.
type InsufficientFundsError struct {
	TerritoryID string
	Required    float64
	Available   float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("territory %s: insufficient funds: required %.2f, available %.2f",
		e.TerritoryID, e.Required, e.Available)
}

// Proposal is an inbound alliance-type diplomatic proposal.
type Proposal struct {
	ProposerID     string
	TargetID       string
	WantedRelation Relation
}

// Territory is a town or region: the single source of truth for its
// identity, hierarchy, treasury, diplomacy and war state.
// Thread-safe: all mutable fields protected by mu. Value sub-components
// (Taxes, Cosmetics, War) are replaced wholesale so readers observe either
// the pre- or post-mutation value, never a partial write.
type Territory struct {
	mu sync.RWMutex

	id        string // immutable
	kind      Kind   // immutable
	createdAt time.Time

	name     string
	leaderID uuid.UUID

	// Hierarchy. overlordID is a weak reference resolved through the Table.
	overlordID string
	vassalIDs  []string

	// Ranks indexed by id; exactly one is the default.
	ranks         map[int32]*Rank
	defaultRankID int32

	// Treasury. Debt (negative balance) is allowed via upkeep.
	balance float64

	taxes     Taxes
	cosmetics Cosmetics
	war       War

	// Diplomacy: stored relations (ALLY/ENEMY only, NEUTRAL is the default),
	// inbound alliance proposals keyed by proposer, inbound overlord
	// proposals in arrival order.
	relations         map[string]Relation
	proposals         map[string]Proposal
	overlordProposals []string

	// Conquest credits earned against specific enemies; entries <= 0 are
	// removed eagerly.
	enemyClaims map[string]int32

	// Unlocked upgrade levels keyed by upgrade id.
	upgrades map[string]int32
}

// upgradeClaims is the upgrade id gating claim caps, costs and biomes.
const upgradeClaims = "claims"

// New creates a territory with a single default rank.
func New(id string, kind Kind, name string, leaderID uuid.UUID) *Territory {
	t := &Territory{
		id:          id,
		kind:        kind,
		name:        name,
		leaderID:    leaderID,
		createdAt:   time.Now(),
		ranks:       make(map[int32]*Rank, 4),
		relations:   make(map[string]Relation, 8),
		proposals:   make(map[string]Proposal, 4),
		enemyClaims: make(map[string]int32, 4),
		upgrades:    make(map[string]int32, 4),
	}
	def := &Rank{
		ID:          0,
		Name:        "Member",
		Level:       RankLevelMin,
		Permissions: DefaultRankPermissions(RankLevelMin),
	}
	t.ranks[def.ID] = def
	t.defaultRankID = def.ID
	return t
}

// ID returns the territory id.
func (t *Territory) ID() string { return t.id }

// Kind returns the territory variant.
func (t *Territory) Kind() Kind { return t.kind }

// CreatedAt returns the creation timestamp.
func (t *Territory) CreatedAt() time.Time { return t.createdAt }

// SetCreatedAt restores the creation timestamp (used on load from storage).
func (t *Territory) SetCreatedAt(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.createdAt = at
}

// Name returns the territory name.
func (t *Territory) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// SetName renames the territory.
func (t *Territory) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

// LeaderID returns the id of the territory leader.
func (t *Territory) LeaderID() uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leaderID
}

// SetLeaderID transfers leadership.
func (t *Territory) SetLeaderID(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaderID = id
}

// HierarchyRank returns the territory's position in the overlord chain;
// higher outranks lower.
func (t *Territory) HierarchyRank() int {
	if t.kind == KindRegion {
		return hierarchyRegion
	}
	return hierarchyTown
}

// --- Treasury ---

// Balance returns the current treasury balance.
func (t *Territory) Balance() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balance
}

// SetBalance restores the balance (used on load from storage).
func (t *Territory) SetBalance(b float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance = b
}

// AddToBalance credits the treasury. Negative amounts are a caller error.
func (t *Territory) AddToBalance(amount float64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance += amount
	return nil
}

// RemoveFromBalance debits the treasury. Negative amounts are a caller
// error; a negative resulting balance is not (debt is allowed).
func (t *Territory) RemoveFromBalance(amount float64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance -= amount
	return nil
}

// Withdraw debits the treasury, refusing to enter debt. Used by explicit
// player-facing transaction APIs.
func (t *Territory) Withdraw(amount float64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount > t.balance {
		return &InsufficientFundsError{
			TerritoryID: t.id,
			Required:    amount,
			Available:   t.balance,
		}
	}
	t.balance -= amount
	return nil
}

// Levy deducts a proportional tax and returns the amount taken. The rate
// applies to the balance as read under the same lock, so a concurrent
// deduction cannot land between the read and the write. Broke or indebted
// territories pay nothing; the levy never pushes the balance below zero.
func (t *Territory) Levy(rate float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rate <= 0 || t.balance <= 0 {
		return 0
	}
	amount := t.balance * rate
	if amount > t.balance {
		amount = t.balance
	}
	t.balance -= amount
	return amount
}

// --- Taxes & cosmetics ---

// Taxes returns the current tax rates.
func (t *Territory) Taxes() Taxes {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.taxes
}

// SetTaxes replaces the tax rates, clamping the property rates to [0,1].
func (t *Territory) SetTaxes(taxes Taxes) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.taxes = taxes.Normalized()
}

// Cosmetics returns the presentation bundle.
func (t *Territory) Cosmetics() Cosmetics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cosmetics
}

// SetCosmetics replaces the presentation bundle wholesale.
func (t *Territory) SetCosmetics(c Cosmetics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cosmetics = c
}

// --- Ranks ---

// RegisterNewRank creates a rank with the next unused id (max existing + 1,
// or 0 when empty) and the default permission set for level 1. Name
// uniqueness is the caller's concern.
func (t *Territory) RegisterNewRank(name string) *Rank {
	t.mu.Lock()
	defer t.mu.Unlock()

	var next int32
	for id := range t.ranks {
		if id >= next {
			next = id + 1
		}
	}
	r := &Rank{
		ID:          next,
		Name:        name,
		Level:       RankLevelMin,
		Permissions: DefaultRankPermissions(RankLevelMin),
	}
	t.ranks[next] = r
	return r.clone()
}

// Rank returns a snapshot of the rank with the given id, or nil.
func (t *Territory) Rank(id int32) *Rank {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.ranks[id]
	if !ok {
		return nil
	}
	return r.clone()
}

// Ranks returns snapshots of all ranks, ordered by id.
func (t *Territory) Ranks() []*Rank {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Rank, 0, len(t.ranks))
	for _, r := range t.ranks {
		result = append(result, r.clone())
	}
	slices.SortFunc(result, func(a, b *Rank) int { return int(a.ID - b.ID) })
	return result
}

// RemoveRank deletes a rank. Missing ids are a no-op; the default rank is
// never removed. Members of the removed rank fall back to the default rank.
func (t *Territory) RemoveRank(id int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == t.defaultRankID {
		return false
	}
	r, ok := t.ranks[id]
	if !ok {
		return false
	}
	def := t.ranks[t.defaultRankID]
	for _, m := range r.Members {
		def.addMember(m)
	}
	delete(t.ranks, id)
	return true
}

// DefaultRankID returns the id of the default rank.
func (t *Territory) DefaultRankID() int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultRankID
}

// SetDefaultRank marks the given rank as the default. Returns false if the
// rank does not exist; exactly one default rank is kept at all times.
func (t *Territory) SetDefaultRank(id int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ranks[id]; !ok {
		return false
	}
	t.defaultRankID = id
	return true
}

// SetRankLevel changes a rank's hierarchy level, clamped to 1-5.
func (t *Territory) SetRankLevel(id, level int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.ranks[id]
	if !ok {
		return false
	}
	r.Level = clampRankLevel(level)
	return true
}

// SetRankPermissions replaces a rank's permission set.
func (t *Territory) SetRankPermissions(id int32, perms Permission) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.ranks[id]
	if !ok {
		return false
	}
	r.Permissions = perms
	return true
}

// SetRankSalary sets a rank's per-cycle salary.
func (t *Territory) SetRankSalary(id int32, salary int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.ranks[id]
	if !ok {
		return false
	}
	r.Salary = salary
	return true
}

// SetRankPayingTaxes marks whether the rank's members pay the base tax.
func (t *Territory) SetRankPayingTaxes(id int32, paying bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.ranks[id]
	if !ok {
		return false
	}
	r.PayingTaxes = paying
	return true
}

// SetPlayerRank moves the player to the given rank: the player leaves their
// current rank's member list and joins the new one in one lock scope, so no
// reader observes a player in zero or two ranks. The player's own rank
// pointer is updated before returning.
func (t *Territory) SetPlayerRank(p *model.Player, rankID int32) error {
	t.mu.Lock()
	target, ok := t.ranks[rankID]
	if !ok {
		t.mu.Unlock()
		return ErrRankNotFound
	}
	for _, r := range t.ranks {
		r.removeMember(p.ID())
	}
	target.addMember(p.ID())
	t.mu.Unlock()

	p.SetTown(t.id, rankID)
	return nil
}

// RemovePlayer drops the player from every rank and clears their town
// membership. Unknown players are a no-op.
func (t *Territory) RemovePlayer(p *model.Player) {
	t.mu.Lock()
	for _, r := range t.ranks {
		r.removeMember(p.ID())
	}
	t.mu.Unlock()

	if p.TownID() == t.id {
		p.ClearTown()
	}
}

// HasPermission reports whether the player holds the permission in this
// territory. The leader holds every permission unconditionally; anyone not
// currently in a rank here has none.
func (t *Territory) HasPermission(p *model.Player, perm Permission) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p.ID() == t.leaderID {
		return true
	}
	for _, r := range t.ranks {
		if r.HasMember(p.ID()) {
			return r.Has(perm)
		}
	}
	return false
}

// Members returns the ids of all players across all ranks.
func (t *Territory) Members() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []uuid.UUID
	for _, r := range t.ranks {
		result = append(result, r.Members...)
	}
	return result
}

// MemberCount returns the number of players across all ranks.
func (t *Territory) MemberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, r := range t.ranks {
		n += len(r.Members)
	}
	return n
}

// IsMember reports whether the player is in any rank of this territory.
func (t *Territory) IsMember(playerID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.ranks {
		if r.HasMember(playerID) {
			return true
		}
	}
	return false
}

// --- Hierarchy ---

// OverlordID returns the overlord territory id, or "" if none.
func (t *Territory) OverlordID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overlordID
}

// Vassals returns a snapshot of the vassal territory ids.
func (t *Territory) Vassals() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.vassalIDs)
}

// IsVassal reports whether the given territory is a vassal of this one.
func (t *Territory) IsVassal(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.vassalIDs, id)
}

// setOverlord and the vassal-list mutators are internal: both sides of the
// relationship are always mutated together by the Table.
func (t *Territory) setOverlord(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overlordID = id
}

func (t *Territory) addVassal(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.vassalIDs, id) {
		t.vassalIDs = append(t.vassalIDs, id)
	}
}

func (t *Territory) removeVassal(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vassalIDs = slices.DeleteFunc(t.vassalIDs, func(v string) bool {
		return v == id
	})
}

// --- Diplomacy ---

// RelationWith computes the relation toward the other territory: SELF from
// identity, OVERLORD/VASSAL from the hierarchy pointers, otherwise the
// stored relation defaulting to NEUTRAL.
func (t *Territory) RelationWith(otherID string) Relation {
	if otherID == t.id {
		return RelationSelf
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.overlordID == otherID {
		return RelationOverlord
	}
	if slices.Contains(t.vassalIDs, otherID) {
		return RelationVassal
	}
	if rel, ok := t.relations[otherID]; ok {
		return rel
	}
	return RelationNeutral
}

// setRelation stores a relation. NEUTRAL removes the entry (it is the
// default); SELF/OVERLORD/VASSAL are computed and never stored.
func (t *Territory) setRelation(otherID string, rel Relation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rel == RelationNeutral || !rel.Storable() {
		delete(t.relations, otherID)
		return
	}
	t.relations[otherID] = rel
}

// Relations returns a snapshot of the stored relation map.
func (t *Territory) Relations() map[string]Relation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]Relation, len(t.relations))
	maps.Copy(result, t.relations)
	return result
}

// purgeRelation forgets everything referencing the given territory:
// relation entry, proposals, overlord proposals, enemy claims, attacks.
func (t *Territory) purgeRelation(otherID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.relations, otherID)
	delete(t.proposals, otherID)
	delete(t.enemyClaims, otherID)
	t.overlordProposals = slices.DeleteFunc(t.overlordProposals, func(id string) bool {
		return id == otherID
	})
	t.war.removeIncomingAttack(otherID)
}

// ReceiveDiplomaticProposal records an inbound alliance-type proposal,
// replacing any prior proposal from the same proposer.
func (t *Territory) ReceiveDiplomaticProposal(proposerID string, wanted Relation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.proposals, proposerID)
	t.proposals[proposerID] = Proposal{
		ProposerID:     proposerID,
		TargetID:       t.id,
		WantedRelation: wanted,
	}
}

// ProposalFrom returns the pending proposal from the given proposer.
func (t *Territory) ProposalFrom(proposerID string) (Proposal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.proposals[proposerID]
	return p, ok
}

// Proposals returns a snapshot of all pending alliance proposals.
func (t *Territory) Proposals() []Proposal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Proposal, 0, len(t.proposals))
	for _, p := range t.proposals {
		result = append(result, p)
	}
	return result
}

// RemoveProposal consumes (accept) or rejects the proposal from proposer.
func (t *Territory) RemoveProposal(proposerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.proposals[proposerID]; !ok {
		return false
	}
	delete(t.proposals, proposerID)
	return true
}

// AddOverlordProposal appends an inbound vassalization proposal.
func (t *Territory) AddOverlordProposal(proposerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.overlordProposals, proposerID) {
		t.overlordProposals = append(t.overlordProposals, proposerID)
	}
}

// OverlordProposals returns a snapshot of pending vassalization proposers.
func (t *Territory) OverlordProposals() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.overlordProposals)
}

// --- Restore (load from storage only) ---

// RestoreRank installs a rank as stored, members included. The first
// restored rank replaces the implicit default created by New.
func (t *Territory) RestoreRank(r *Rank) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ranks[r.ID] = r.clone()
}

// RestoreRelation installs a stored relation entry.
func (t *Territory) RestoreRelation(otherID string, rel Relation) {
	t.setRelation(otherID, rel)
}

// RestoreOverlord installs the overlord pointer without touching the other
// side; the repository restores the vassal lists from its own query.
func (t *Territory) RestoreOverlord(overlordID string) {
	t.setOverlord(overlordID)
}

// RestoreVassal installs a vassal id without touching the other side.
func (t *Territory) RestoreVassal(vassalID string) {
	t.addVassal(vassalID)
}

// ResetRanks drops all ranks prior to a restore.
func (t *Territory) ResetRanks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ranks = make(map[int32]*Rank, 4)
}

// --- Conquest credits ---

// AddEnemyClaims grants n conquest credits against the given enemy.
func (t *Territory) AddEnemyClaims(enemyID string, n int32) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enemyClaims[enemyID] += n
}

// EnemyClaims returns the credits held against the given enemy.
func (t *Territory) EnemyClaims(enemyID string) int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enemyClaims[enemyID]
}

// EnemyClaimCounts returns a copy of all held conquest credits keyed by
// enemy id.
func (t *Territory) EnemyClaimCounts() map[string]int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int32, len(t.enemyClaims))
	for id, n := range t.enemyClaims {
		out[id] = n
	}
	return out
}

// ConsumeEnemyClaim spends one credit against the enemy. Returns false if
// no credit is held; the count never goes negative and empty entries are
// removed eagerly.
func (t *Territory) ConsumeEnemyClaim(enemyID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.enemyClaims[enemyID]
	if n <= 0 {
		delete(t.enemyClaims, enemyID)
		return false
	}
	if n == 1 {
		delete(t.enemyClaims, enemyID)
	} else {
		t.enemyClaims[enemyID] = n - 1
	}
	return true
}

// --- War ---

// War returns a snapshot of the wartime state.
func (t *Territory) War() War {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.war.clone()
}

// AddIncomingAttack records an announced attack from the given territory.
func (t *Territory) AddIncomingAttack(attackerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.addIncomingAttack(attackerID)
}

// RemoveIncomingAttack clears an announced attack.
func (t *Territory) RemoveIncomingAttack(attackerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.removeIncomingAttack(attackerID)
}

// AddOwnedFort registers a fort owned by this territory.
func (t *Territory) AddOwnedFort(fortID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.addOwnedFort(fortID)
}

// RemoveOwnedFort deletes a fort owned by this territory.
func (t *Territory) RemoveOwnedFort(fortID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.removeOwnedFort(fortID)
}

// OccupyFort records a foreign fort as occupied by this territory.
func (t *Territory) OccupyFort(fortID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.addOccupiedFort(fortID)
}

// LiberateFort releases an occupied foreign fort.
func (t *Territory) LiberateFort(fortID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.war.removeOccupiedFort(fortID)
}

// --- Upgrades ---

// UpgradeLevel returns the unlocked level for the given upgrade id.
func (t *Territory) UpgradeLevel(id string) int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.upgrades[id]
}

// SetUpgradeLevel sets the unlocked level for the given upgrade id.
func (t *Territory) SetUpgradeLevel(id string, level int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if level <= 0 {
		delete(t.upgrades, id)
		return
	}
	t.upgrades[id] = level
}

// ClaimTierLevel returns the claim upgrade tier, which gates chunk caps,
// claim costs and biome rules.
func (t *Territory) ClaimTierLevel() int {
	return int(t.UpgradeLevel(upgradeClaims))
}

// RaiseClaimTier unlocks the next claim tier.
func (t *Territory) RaiseClaimTier() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upgrades[upgradeClaims]++
}

// Upgrades returns a snapshot of all unlocked upgrade levels.
func (t *Territory) Upgrades() map[string]int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]int32, len(t.upgrades))
	maps.Copy(result, t.upgrades)
	return result
}

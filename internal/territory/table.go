package territory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
)

// Territory name constraints.
const (
	MinNameLen = 2
	MaxNameLen = 24
)

// maxOverlordChain bounds every overlord-chain walk. AcceptVassalisation
// refuses links that would close a cycle, so a chain deeper than this means
// the stored links are corrupted, not legitimate hierarchy.
const maxOverlordChain = 16

// Table errors.
var (
	ErrNameTaken         = errors.New("territory name already taken")
	ErrNameInvalid       = errors.New("invalid territory name")
	ErrTerritoryNotFound = errors.New("territory not found")
	ErrNoProposal        = errors.New("no pending proposal")
	ErrHasOverlord       = errors.New("territory already has an overlord")
	ErrSelfRelation      = errors.New("territory cannot relate to itself")
	ErrVassalCycle       = errors.New("vassalization would close an overlord cycle")
	ErrVassalOutranks    = errors.New("vassal outranks the proposed overlord")
)

// ChunkReleaser releases claimed chunks on territory deletion. Implemented
// by the claim engine; an interface here keeps the claim package free to
// depend on this one.
type ChunkReleaser interface {
	UnclaimAll(territoryID string) int
}

// FortStore resolves fort ownership during territory deletion. Nil-safe:
// the table tolerates running without one.
type FortStore interface {
	DeleteFort(fortID string)
	LiberateFort(fortID string)
}

// Table manages all territories on the server.
// Thread-safe: protected by RWMutex.
type Table struct {
	mu sync.RWMutex

	// Territories by id.
	territories map[string]*Territory

	// Territory name -> id index (lowercase for case-insensitive lookup).
	nameIndex map[string]string

	// Next numeric id suffix.
	nextID atomic.Int64

	bus    *event.Bus
	claims ChunkReleaser
	forts  FortStore
}

// NewTable creates a territory table publishing on the given bus.
func NewTable(bus *event.Bus) *Table {
	return &Table{
		territories: make(map[string]*Territory, 128),
		nameIndex:   make(map[string]string, 128),
		bus:         bus,
	}
}

// SetChunkReleaser wires the claim engine in after construction (the claim
// engine itself needs the table to exist first).
func (tb *Table) SetChunkReleaser(cr ChunkReleaser) {
	tb.claims = cr
}

// SetFortStore wires the fort store in after construction.
func (tb *Table) SetFortStore(fs FortStore) {
	tb.forts = fs
}

// SetNextID sets the id counter (used on load from storage).
func (tb *Table) SetNextID(id int64) {
	tb.nextID.Store(id)
}

// Create creates a new territory and adds it to the table.
func (tb *Table) Create(kind Kind, name string, leaderID uuid.UUID) (*Territory, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	lowerName := strings.ToLower(name)
	if _, ok := tb.nameIndex[lowerName]; ok {
		return nil, ErrNameTaken
	}

	prefix := "T"
	if kind == KindRegion {
		prefix = "R"
	}
	id := fmt.Sprintf("%s%06d", prefix, tb.nextID.Add(1))
	t := New(id, kind, name, leaderID)

	tb.territories[id] = t
	tb.nameIndex[lowerName] = id

	slog.Info("territory created", "territory_id", id, "kind", kind.String(), "name", name, "leader_id", leaderID)
	return t, nil
}

// Register adds an existing territory to the table (used on load from
// storage).
func (tb *Table) Register(t *Territory) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	lowerName := strings.ToLower(t.Name())
	if _, ok := tb.nameIndex[lowerName]; ok {
		return fmt.Errorf("register territory %q: %w", t.Name(), ErrNameTaken)
	}

	tb.territories[t.ID()] = t
	tb.nameIndex[lowerName] = t.ID()
	return nil
}

// Territory returns a territory by id, or nil if not found.
func (tb *Table) Territory(id string) *Territory {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.territories[id]
}

// ByName returns a territory by name (case-insensitive), or nil.
func (tb *Table) ByName(name string) *Territory {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	id, ok := tb.nameIndex[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return tb.territories[id]
}

// Count returns the number of registered territories.
func (tb *Table) Count() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.territories)
}

// ForEach iterates over all territories. Return false from fn to stop.
func (tb *Table) ForEach(fn func(*Territory) bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	for _, t := range tb.territories {
		if !fn(t) {
			return
		}
	}
}

// All returns a snapshot slice of all territories.
func (tb *Table) All() []*Territory {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	result := make([]*Territory, 0, len(tb.territories))
	for _, t := range tb.territories {
		result = append(result, t)
	}
	return result
}

// --- Membership ---

// AssignRank moves the player to the given rank of the territory and
// notifies subscribers (permission caches invalidate off this).
func (tb *Table) AssignRank(territoryID string, p *model.Player, rankID int32) error {
	t := tb.Territory(territoryID)
	if t == nil {
		return fmt.Errorf("assign rank in %s: %w", territoryID, ErrTerritoryNotFound)
	}
	if err := t.SetPlayerRank(p, rankID); err != nil {
		return err
	}
	event.Publish(tb.bus, event.PlayerRankChanged{
		TerritoryID: territoryID,
		PlayerID:    p.ID(),
		RankID:      rankID,
	})
	return nil
}

// RemoveMember drops the player from the territory and notifies subscribers.
func (tb *Table) RemoveMember(territoryID string, p *model.Player) error {
	t := tb.Territory(territoryID)
	if t == nil {
		return fmt.Errorf("remove member from %s: %w", territoryID, ErrTerritoryNotFound)
	}
	t.RemovePlayer(p)
	event.Publish(tb.bus, event.PlayerRankChanged{
		TerritoryID: territoryID,
		PlayerID:    p.ID(),
	})
	return nil
}

// --- Diplomacy ---

// SubmitProposal records an alliance-type proposal from proposer to target,
// replacing any prior proposal from the same proposer, and notifies
// subscribers.
func (tb *Table) SubmitProposal(proposerID, targetID string, wanted Relation) error {
	if proposerID == targetID {
		return ErrSelfRelation
	}
	target := tb.Territory(targetID)
	if target == nil {
		return fmt.Errorf("proposal target %s: %w", targetID, ErrTerritoryNotFound)
	}
	if tb.Territory(proposerID) == nil {
		return fmt.Errorf("proposal proposer %s: %w", proposerID, ErrTerritoryNotFound)
	}

	target.ReceiveDiplomaticProposal(proposerID, wanted)
	event.Publish(tb.bus, event.ProposalReceived{
		TargetID:       targetID,
		ProposerID:     proposerID,
		WantedRelation: int32(wanted),
	})
	return nil
}

// AcceptProposal consumes the pending proposal from proposer on target and
// writes the wanted relation symmetrically.
func (tb *Table) AcceptProposal(targetID, proposerID string) error {
	target := tb.Territory(targetID)
	if target == nil {
		return fmt.Errorf("accept target %s: %w", targetID, ErrTerritoryNotFound)
	}
	p, ok := target.ProposalFrom(proposerID)
	if !ok {
		return ErrNoProposal
	}
	return tb.SetRelation(targetID, proposerID, p.WantedRelation)
}

// RejectProposal discards the pending proposal from proposer on target.
func (tb *Table) RejectProposal(targetID, proposerID string) error {
	target := tb.Territory(targetID)
	if target == nil {
		return fmt.Errorf("reject target %s: %w", targetID, ErrTerritoryNotFound)
	}
	if !target.RemoveProposal(proposerID) {
		return ErrNoProposal
	}
	return nil
}

// SetRelation writes the relation symmetrically on both territories,
// consumes any pending proposal between them, and notifies subscribers.
func (tb *Table) SetRelation(aID, bID string, rel Relation) error {
	if aID == bID {
		return ErrSelfRelation
	}
	a := tb.Territory(aID)
	b := tb.Territory(bID)
	if a == nil || b == nil {
		return ErrTerritoryNotFound
	}

	a.setRelation(bID, rel)
	b.setRelation(aID, rel)
	a.RemoveProposal(bID)
	b.RemoveProposal(aID)

	slog.Info("relation changed", "territory_id", aID, "other_id", bID, "relation", rel.String())
	event.Publish(tb.bus, event.RelationChanged{
		TerritoryID: aID,
		OtherID:     bID,
		Relation:    int32(rel),
	})
	return nil
}

// WorstRelationWith reduces, over every territory the player belongs to
// (their town and its overlord chain), the relation toward the given
// territory by the hostility ordering. Townless players are NEUTRAL.
func (tb *Table) WorstRelationWith(t *Territory, p *model.Player) Relation {
	townID := p.TownID()
	if townID == "" {
		return RelationNeutral
	}

	worst := RelationNeutral
	first := true
	for id, depth := townID, 0; id != "" && depth < maxOverlordChain; depth++ {
		member := tb.Territory(id)
		if member == nil {
			break
		}
		rel := t.RelationWith(id)
		if first {
			worst = rel
			first = false
		} else {
			worst = worst.Worst(rel)
		}
		id = member.OverlordID()
	}
	return worst
}

// --- Vassalization ---

// ProposeVassalisation records a vassalization proposal from the would-be
// overlord on the target territory and notifies subscribers.
func (tb *Table) ProposeVassalisation(overlordID, targetID string) error {
	if overlordID == targetID {
		return ErrSelfRelation
	}
	target := tb.Territory(targetID)
	if target == nil {
		return fmt.Errorf("vassal target %s: %w", targetID, ErrTerritoryNotFound)
	}
	if tb.Territory(overlordID) == nil {
		return fmt.Errorf("overlord %s: %w", overlordID, ErrTerritoryNotFound)
	}

	target.AddOverlordProposal(overlordID)
	event.Publish(tb.bus, event.VassalProposalReceived{
		TargetID:   targetID,
		ProposerID: overlordID,
	})
	return nil
}

// AcceptVassalisation consumes the pending vassalization proposal and links
// both sides. The vassal-side transition (proposal removal, overlord check,
// pointer write) happens in one lock scope, so two concurrent accepts for
// the same vassal cannot both succeed.
func (tb *Table) AcceptVassalisation(vassalID, overlordID string) error {
	vassal := tb.Territory(vassalID)
	overlord := tb.Territory(overlordID)
	if vassal == nil || overlord == nil {
		return ErrTerritoryNotFound
	}
	if overlordID == vassalID {
		return ErrSelfRelation
	}
	if vassal.HierarchyRank() > overlord.HierarchyRank() {
		return ErrVassalOutranks
	}
	// Walk the proposed overlord's own chain: finding the vassal anywhere
	// above it means the link would close the chain into a cycle.
	for id, depth := overlordID, 0; id != "" && depth < maxOverlordChain; depth++ {
		if id == vassalID {
			return ErrVassalCycle
		}
		anc := tb.Territory(id)
		if anc == nil {
			break
		}
		id = anc.OverlordID()
	}

	if err := vassal.takeOverlord(overlordID); err != nil {
		return err
	}
	overlord.addVassal(vassalID)

	slog.Info("vassalization accepted", "overlord_id", overlordID, "vassal_id", vassalID)
	event.Publish(tb.bus, event.VassalAccepted{
		OverlordID: overlordID,
		VassalID:   vassalID,
	})
	return nil
}

// SetOverlord links both sides of the relationship directly (used on load
// from storage and by trusted internal callers).
func (tb *Table) SetOverlord(vassalID, overlordID string) error {
	vassal := tb.Territory(vassalID)
	overlord := tb.Territory(overlordID)
	if vassal == nil || overlord == nil {
		return ErrTerritoryNotFound
	}
	vassal.setOverlord(overlordID)
	overlord.addVassal(vassalID)
	return nil
}

// RemoveOverlord severs the vassal's overlord link on both sides. No-op if
// the vassal has no overlord.
func (tb *Table) RemoveOverlord(vassalID string) {
	vassal := tb.Territory(vassalID)
	if vassal == nil {
		return
	}
	overlordID := vassal.OverlordID()
	if overlordID == "" {
		return
	}
	vassal.setOverlord("")
	if overlord := tb.Territory(overlordID); overlord != nil {
		overlord.removeVassal(vassalID)
	}
	slog.Info("overlord removed", "vassal_id", vassalID, "overlord_id", overlordID)
}

// --- Deletion ---

// Delete removes a territory: releases every claimed chunk, severs vassal
// links (children become overlord-less), liberates occupied forts, deletes
// owned forts, and purges relations, proposals and attack lists referencing
// it on every other territory. Iterates defensive copies throughout, so a
// partially-deleted territory can be deleted again safely.
func (tb *Table) Delete(id string) error {
	tb.mu.Lock()
	t, ok := tb.territories[id]
	if !ok {
		tb.mu.Unlock()
		return ErrTerritoryNotFound
	}
	delete(tb.territories, id)
	delete(tb.nameIndex, strings.ToLower(t.Name()))
	others := make([]*Territory, 0, len(tb.territories))
	for _, o := range tb.territories {
		others = append(others, o)
	}
	tb.mu.Unlock()

	released := 0
	if tb.claims != nil {
		released = tb.claims.UnclaimAll(id)
	}

	// Sever the overlord link upward.
	if overlordID := t.OverlordID(); overlordID != "" {
		if overlord := tb.Territory(overlordID); overlord != nil {
			overlord.removeVassal(id)
		}
	}

	// Children become overlord-less.
	for _, vassalID := range t.Vassals() {
		if v := tb.Territory(vassalID); v != nil {
			v.setOverlord("")
		}
	}

	// Forts: owned ones are destroyed, occupied ones handed back.
	war := t.War()
	if tb.forts != nil {
		for _, fortID := range war.OwnedForts {
			tb.forts.DeleteFort(fortID)
		}
		for _, fortID := range war.OccupiedForts {
			tb.forts.LiberateFort(fortID)
		}
	}

	// Purge every reference on the survivors.
	for _, o := range others {
		o.purgeRelation(id)
	}

	slog.Info("territory deleted", "territory_id", id, "name", t.Name(), "chunks_released", released)
	event.Publish(tb.bus, event.TerritoryDeleted{TerritoryID: id, Name: t.Name()})
	return nil
}

// takeOverlord claims the overlord slot for the vassal atomically: the
// proposal must still be pending and the slot empty.
func (t *Territory) takeOverlord(overlordID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, id := range t.overlordProposals {
		if id == overlordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNoProposal
	}
	if t.overlordID != "" {
		return ErrHasOverlord
	}
	t.overlordProposals = append(t.overlordProposals[:idx], t.overlordProposals[idx+1:]...)
	t.overlordID = overlordID
	return nil
}

// validateName checks territory name constraints.
func validateName(name string) error {
	if len(name) < MinNameLen || len(name) > MaxNameLen {
		return fmt.Errorf("%w: length must be %d-%d", ErrNameInvalid, MinNameLen, MaxNameLen)
	}
	for _, r := range name {
		if !isValidNameChar(r) {
			return fmt.Errorf("%w: invalid character %q", ErrNameInvalid, r)
		}
	}
	return nil
}

// isValidNameChar returns true if the rune is allowed in a territory name.
// Allows: A-Z, a-z, 0-9, underscore.
func isValidNameChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

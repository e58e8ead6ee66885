package territory

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
)

func newTestTable(t *testing.T) (*Table, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	return NewTable(bus), bus
}

func TestTable_Create(t *testing.T) {
	tb, _ := newTestTable(t)

	town, err := tb.Create(KindTown, "Rivermouth", uuid.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if town.ID() != "T000001" {
		t.Errorf("town id = %q, want T000001", town.ID())
	}

	region, err := tb.Create(KindRegion, "Northmarch", uuid.New())
	if err != nil {
		t.Fatalf("Create region: %v", err)
	}
	if region.ID() != "R000002" {
		t.Errorf("region id = %q, want R000002", region.ID())
	}

	if tb.Count() != 2 {
		t.Errorf("Count = %d, want 2", tb.Count())
	}
	if tb.ByName("rivermouth") != town {
		t.Error("ByName should be case-insensitive")
	}
}

func TestTable_Create_NameValidation(t *testing.T) {
	tb, _ := newTestTable(t)

	if _, err := tb.Create(KindTown, "x", uuid.New()); !errors.Is(err, ErrNameInvalid) {
		t.Errorf("short name: err = %v, want ErrNameInvalid", err)
	}
	if _, err := tb.Create(KindTown, "bad name!", uuid.New()); !errors.Is(err, ErrNameInvalid) {
		t.Errorf("bad chars: err = %v, want ErrNameInvalid", err)
	}

	if _, err := tb.Create(KindTown, "Rivermouth", uuid.New()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := tb.Create(KindTown, "RIVERMOUTH", uuid.New()); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate name: err = %v, want ErrNameTaken", err)
	}
}

func TestTable_ProposalLifecycle(t *testing.T) {
	tb, bus := newTestTable(t)
	a, _ := tb.Create(KindTown, "Alder", uuid.New())
	b, _ := tb.Create(KindTown, "Birch", uuid.New())

	var changed []event.RelationChanged
	event.Subscribe(bus, func(ev event.RelationChanged) {
		changed = append(changed, ev)
	})

	if err := tb.SubmitProposal(a.ID(), a.ID(), RelationAlly); !errors.Is(err, ErrSelfRelation) {
		t.Errorf("self proposal: err = %v, want ErrSelfRelation", err)
	}
	if err := tb.SubmitProposal(a.ID(), "T999999", RelationAlly); !errors.Is(err, ErrTerritoryNotFound) {
		t.Errorf("unknown target: err = %v, want ErrTerritoryNotFound", err)
	}

	if err := tb.SubmitProposal(a.ID(), b.ID(), RelationAlly); err != nil {
		t.Fatalf("SubmitProposal: %v", err)
	}
	if err := tb.AcceptProposal(b.ID(), a.ID()); err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}

	// Relation is symmetric and the proposal consumed.
	if got := a.RelationWith(b.ID()); got != RelationAlly {
		t.Errorf("a->b = %v, want ALLY", got)
	}
	if got := b.RelationWith(a.ID()); got != RelationAlly {
		t.Errorf("b->a = %v, want ALLY", got)
	}
	if _, ok := b.ProposalFrom(a.ID()); ok {
		t.Error("proposal should be consumed on accept")
	}
	if len(changed) != 1 {
		t.Errorf("RelationChanged events = %d, want 1", len(changed))
	}

	// Accepting again fails: nothing pending.
	if err := tb.AcceptProposal(b.ID(), a.ID()); !errors.Is(err, ErrNoProposal) {
		t.Errorf("second accept: err = %v, want ErrNoProposal", err)
	}
}

func TestTable_RejectProposal(t *testing.T) {
	tb, _ := newTestTable(t)
	a, _ := tb.Create(KindTown, "Alder", uuid.New())
	b, _ := tb.Create(KindTown, "Birch", uuid.New())

	if err := tb.RejectProposal(b.ID(), a.ID()); !errors.Is(err, ErrNoProposal) {
		t.Errorf("reject without proposal: err = %v, want ErrNoProposal", err)
	}

	_ = tb.SubmitProposal(a.ID(), b.ID(), RelationAlly)
	if err := tb.RejectProposal(b.ID(), a.ID()); err != nil {
		t.Fatalf("RejectProposal: %v", err)
	}
	if got := b.RelationWith(a.ID()); got != RelationNeutral {
		t.Errorf("relation after reject = %v, want NEUTRAL", got)
	}
}

func TestTable_SetRelation_Symmetric(t *testing.T) {
	tb, _ := newTestTable(t)
	a, _ := tb.Create(KindTown, "Alder", uuid.New())
	b, _ := tb.Create(KindTown, "Birch", uuid.New())

	if err := tb.SetRelation(a.ID(), b.ID(), RelationEnemy); err != nil {
		t.Fatalf("SetRelation: %v", err)
	}
	if a.RelationWith(b.ID()) != RelationEnemy || b.RelationWith(a.ID()) != RelationEnemy {
		t.Error("enemy relation should be symmetric")
	}

	// Back to NEUTRAL clears both stored entries.
	if err := tb.SetRelation(a.ID(), b.ID(), RelationNeutral); err != nil {
		t.Fatalf("SetRelation neutral: %v", err)
	}
	if len(a.Relations()) != 0 || len(b.Relations()) != 0 {
		t.Error("neutral relation should not be stored")
	}
}

func TestTable_WorstRelationWith(t *testing.T) {
	tb, _ := newTestTable(t)
	town, _ := tb.Create(KindTown, "Alder", uuid.New())
	region, _ := tb.Create(KindRegion, "Northmarch", uuid.New())
	other, _ := tb.Create(KindTown, "Birch", uuid.New())
	_ = tb.SetOverlord(town.ID(), region.ID())

	p := model.NewPlayer(uuid.New(), "dave")

	// Townless players are neutral everywhere.
	if got := tb.WorstRelationWith(other, p); got != RelationNeutral {
		t.Errorf("townless = %v, want NEUTRAL", got)
	}

	p.SetTown(town.ID(), 0)

	// ALLY with the town but ENEMY with its overlord: the worst wins.
	_ = tb.SetRelation(other.ID(), town.ID(), RelationAlly)
	if got := tb.WorstRelationWith(other, p); got != RelationAlly {
		t.Errorf("ally only = %v, want ALLY", got)
	}
	_ = tb.SetRelation(other.ID(), region.ID(), RelationEnemy)
	if got := tb.WorstRelationWith(other, p); got != RelationEnemy {
		t.Errorf("ally town + enemy overlord = %v, want ENEMY", got)
	}
}

func TestTable_Vassalisation(t *testing.T) {
	tb, bus := newTestTable(t)
	region, _ := tb.Create(KindRegion, "Northmarch", uuid.New())
	town, _ := tb.Create(KindTown, "Alder", uuid.New())

	var accepted []event.VassalAccepted
	event.Subscribe(bus, func(ev event.VassalAccepted) {
		accepted = append(accepted, ev)
	})

	// Accept without a proposal fails.
	if err := tb.AcceptVassalisation(town.ID(), region.ID()); !errors.Is(err, ErrNoProposal) {
		t.Errorf("accept without proposal: err = %v, want ErrNoProposal", err)
	}

	if err := tb.ProposeVassalisation(region.ID(), town.ID()); err != nil {
		t.Fatalf("ProposeVassalisation: %v", err)
	}
	if err := tb.AcceptVassalisation(town.ID(), region.ID()); err != nil {
		t.Fatalf("AcceptVassalisation: %v", err)
	}

	// Both sides linked.
	if town.OverlordID() != region.ID() {
		t.Errorf("overlord = %q, want %q", town.OverlordID(), region.ID())
	}
	if !region.IsVassal(town.ID()) {
		t.Error("region should list town as vassal")
	}
	if len(accepted) != 1 {
		t.Errorf("VassalAccepted events = %d, want 1", len(accepted))
	}

	// A second overlord is refused while the slot is taken.
	other, _ := tb.Create(KindRegion, "Southmarch", uuid.New())
	_ = tb.ProposeVassalisation(other.ID(), town.ID())
	if err := tb.AcceptVassalisation(town.ID(), other.ID()); !errors.Is(err, ErrHasOverlord) {
		t.Errorf("second overlord: err = %v, want ErrHasOverlord", err)
	}

	// Severing clears both sides.
	tb.RemoveOverlord(town.ID())
	if town.OverlordID() != "" {
		t.Errorf("overlord after removal = %q, want empty", town.OverlordID())
	}
	if region.IsVassal(town.ID()) {
		t.Error("vassal list should be cleared on removal")
	}
}

func TestTable_Vassalisation_NoCycle(t *testing.T) {
	tb, _ := newTestTable(t)
	a, _ := tb.Create(KindRegion, "Northmarch", uuid.New())
	b, _ := tb.Create(KindTown, "Alder", uuid.New())

	_ = tb.ProposeVassalisation(a.ID(), b.ID())
	if err := tb.AcceptVassalisation(b.ID(), a.ID()); err != nil {
		t.Fatalf("AcceptVassalisation: %v", err)
	}

	// The overlord cannot become a vassal of its own vassal.
	_ = tb.ProposeVassalisation(b.ID(), a.ID())
	if err := tb.AcceptVassalisation(a.ID(), b.ID()); err == nil {
		t.Error("cycle accept should fail")
	}
}

func TestTable_Vassalisation_DeepCycleRefused(t *testing.T) {
	tb, _ := newTestTable(t)
	a, _ := tb.Create(KindTown, "Alder", uuid.New())
	b, _ := tb.Create(KindTown, "Birch", uuid.New())
	c, _ := tb.Create(KindTown, "Cedar", uuid.New())

	_ = tb.ProposeVassalisation(b.ID(), a.ID())
	if err := tb.AcceptVassalisation(a.ID(), b.ID()); err != nil {
		t.Fatalf("link a under b: %v", err)
	}
	_ = tb.ProposeVassalisation(c.ID(), b.ID())
	if err := tb.AcceptVassalisation(b.ID(), c.ID()); err != nil {
		t.Fatalf("link b under c: %v", err)
	}

	// C under A would close the a→b→c chain into a loop.
	_ = tb.ProposeVassalisation(a.ID(), c.ID())
	if err := tb.AcceptVassalisation(c.ID(), a.ID()); !errors.Is(err, ErrVassalCycle) {
		t.Errorf("deep cycle accept: err = %v, want ErrVassalCycle", err)
	}
	if c.OverlordID() != "" {
		t.Errorf("c overlord = %q, want empty", c.OverlordID())
	}

	// Relation walks over the intact chain still terminate.
	p := model.NewPlayer(uuid.New(), "erin")
	p.SetTown(a.ID(), 0)
	if got := tb.WorstRelationWith(c, p); got != RelationNeutral {
		t.Errorf("relation through chain = %v, want NEUTRAL", got)
	}
}

func TestTable_Vassalisation_OutranksRefused(t *testing.T) {
	tb, _ := newTestTable(t)
	town, _ := tb.Create(KindTown, "Alder", uuid.New())
	region, _ := tb.Create(KindRegion, "Northmarch", uuid.New())

	_ = tb.ProposeVassalisation(town.ID(), region.ID())
	if err := tb.AcceptVassalisation(region.ID(), town.ID()); !errors.Is(err, ErrVassalOutranks) {
		t.Errorf("region under town: err = %v, want ErrVassalOutranks", err)
	}
	if region.OverlordID() != "" {
		t.Errorf("region overlord = %q, want empty", region.OverlordID())
	}
}

func TestTable_WorstRelationWith_CorruptChainTerminates(t *testing.T) {
	tb, _ := newTestTable(t)
	a, _ := tb.Create(KindTown, "Alder", uuid.New())
	b, _ := tb.Create(KindTown, "Birch", uuid.New())
	other, _ := tb.Create(KindTown, "Cedar", uuid.New())

	// SetOverlord is the unchecked load path; corrupted storage could hand
	// it a loop. The walk must still come back.
	_ = tb.SetOverlord(a.ID(), b.ID())
	_ = tb.SetOverlord(b.ID(), a.ID())

	p := model.NewPlayer(uuid.New(), "erin")
	p.SetTown(a.ID(), 0)
	if got := tb.WorstRelationWith(other, p); got != RelationNeutral {
		t.Errorf("relation over looped chain = %v, want NEUTRAL", got)
	}
}

type fakeReleaser struct {
	released map[string]int
}

func (f *fakeReleaser) UnclaimAll(territoryID string) int {
	if f.released == nil {
		f.released = make(map[string]int)
	}
	f.released[territoryID] = 7
	return 7
}

func TestTable_Delete(t *testing.T) {
	tb, bus := newTestTable(t)
	releaser := &fakeReleaser{}
	tb.SetChunkReleaser(releaser)

	region, _ := tb.Create(KindRegion, "Northmarch", uuid.New())
	town, _ := tb.Create(KindTown, "Alder", uuid.New())
	other, _ := tb.Create(KindTown, "Birch", uuid.New())
	_ = tb.SetOverlord(town.ID(), region.ID())
	_ = tb.SetRelation(other.ID(), region.ID(), RelationEnemy)
	other.AddEnemyClaims(region.ID(), 3)
	_ = tb.SubmitProposal(region.ID(), other.ID(), RelationAlly)

	var deleted []event.TerritoryDeleted
	event.Subscribe(bus, func(ev event.TerritoryDeleted) {
		deleted = append(deleted, ev)
	})

	if err := tb.Delete("T999999"); !errors.Is(err, ErrTerritoryNotFound) {
		t.Errorf("delete unknown: err = %v, want ErrTerritoryNotFound", err)
	}

	if err := tb.Delete(region.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if tb.Territory(region.ID()) != nil {
		t.Error("deleted territory still resolvable")
	}
	if tb.ByName("Northmarch") != nil {
		t.Error("deleted territory still in name index")
	}
	if releaser.released[region.ID()] != 7 {
		t.Error("chunks not released on delete")
	}
	if town.OverlordID() != "" {
		t.Error("vassal should become overlord-less")
	}
	if got := other.RelationWith(region.ID()); got != RelationNeutral {
		t.Errorf("survivor relation = %v, want NEUTRAL", got)
	}
	if other.EnemyClaims(region.ID()) != 0 {
		t.Error("survivor enemy claims should be purged")
	}
	if _, ok := other.ProposalFrom(region.ID()); ok {
		t.Error("survivor proposals should be purged")
	}
	if len(deleted) != 1 {
		t.Errorf("TerritoryDeleted events = %d, want 1", len(deleted))
	}

	// The name is reusable afterwards.
	if _, err := tb.Create(KindRegion, "Northmarch", uuid.New()); err != nil {
		t.Errorf("recreate after delete: %v", err)
	}
}

func TestTable_AssignRankPublishes(t *testing.T) {
	tb, bus := newTestTable(t)
	town, _ := tb.Create(KindTown, "Alder", uuid.New())
	rank := town.RegisterNewRank("Guard")

	var got []event.PlayerRankChanged
	event.Subscribe(bus, func(ev event.PlayerRankChanged) {
		got = append(got, ev)
	})

	p := model.NewPlayer(uuid.New(), "guard")
	if err := tb.AssignRank(town.ID(), p, rank.ID); err != nil {
		t.Fatalf("AssignRank: %v", err)
	}
	if p.TownID() != town.ID() || p.RankID() != rank.ID {
		t.Errorf("player membership = %q/%d, want %q/%d", p.TownID(), p.RankID(), town.ID(), rank.ID)
	}
	if len(got) != 1 || got[0].PlayerID != p.ID() || got[0].RankID != rank.ID {
		t.Errorf("events = %+v, want one for the assigned player", got)
	}

	if err := tb.AssignRank(town.ID(), p, 99); !errors.Is(err, ErrRankNotFound) {
		t.Errorf("unknown rank: err = %v, want ErrRankNotFound", err)
	}
	if len(got) != 1 {
		t.Errorf("failed assign should not publish, got %d events", len(got))
	}

	if err := tb.RemoveMember(town.ID(), p); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if p.TownID() != "" {
		t.Errorf("TownID after removal = %q, want townless", p.TownID())
	}
	if len(got) != 2 {
		t.Errorf("events after removal = %d, want 2", len(got))
	}

	if err := tb.AssignRank("T999999", p, 0); !errors.Is(err, ErrTerritoryNotFound) {
		t.Errorf("unknown territory: err = %v, want ErrTerritoryNotFound", err)
	}
}

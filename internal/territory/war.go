package territory

import "slices"

// War tracks a territory's wartime state: attacks announced against it,
// forts it owns, and foreign forts it currently occupies. Guarded by the
// owning Territory's lock; accessors return snapshot copies.
type War struct {
	IncomingAttacks []string // attacker territory ids
	OwnedForts      []string // fort ids
	OccupiedForts   []string // fort ids held in enemy territory
}

func (w *War) addIncomingAttack(attackerID string) {
	if !slices.Contains(w.IncomingAttacks, attackerID) {
		w.IncomingAttacks = append(w.IncomingAttacks, attackerID)
	}
}

func (w *War) removeIncomingAttack(attackerID string) {
	w.IncomingAttacks = slices.DeleteFunc(w.IncomingAttacks, func(id string) bool {
		return id == attackerID
	})
}

func (w *War) addOwnedFort(fortID string) {
	if !slices.Contains(w.OwnedForts, fortID) {
		w.OwnedForts = append(w.OwnedForts, fortID)
	}
}

func (w *War) removeOwnedFort(fortID string) {
	w.OwnedForts = slices.DeleteFunc(w.OwnedForts, func(id string) bool {
		return id == fortID
	})
}

func (w *War) addOccupiedFort(fortID string) {
	if !slices.Contains(w.OccupiedForts, fortID) {
		w.OccupiedForts = append(w.OccupiedForts, fortID)
	}
}

func (w *War) removeOccupiedFort(fortID string) {
	w.OccupiedForts = slices.DeleteFunc(w.OccupiedForts, func(id string) bool {
		return id == fortID
	})
}

func (w *War) clone() War {
	return War{
		IncomingAttacks: slices.Clone(w.IncomingAttacks),
		OwnedForts:      slices.Clone(w.OwnedForts),
		OccupiedForts:   slices.Clone(w.OccupiedForts),
	}
}

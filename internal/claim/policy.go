package claim

import "github.com/dominioncraft/dominion/internal/territory"

// Access says who may perform a permission type on a chunk.
type Access int32

const (
	// AccessMembers restricts the action to the owning territory's members
	// (subject to their rank permissions). The default for unset rules.
	AccessMembers Access = iota
	// AccessAllies additionally admits members of allied territories and the
	// overlord chain.
	AccessAllies
	// AccessEveryone admits anyone.
	AccessEveryone
	// AccessNobody denies the action outright, members included.
	AccessNobody
)

// Policy is a chunk's permission settings bundle: the grief-style switches
// plus per-permission-type access rules. Immutable value, replaced wholesale
// on edit.
type Policy struct {
	PvPEnabled        bool
	ExplosionsEnabled bool
	FireSpreadEnabled bool

	// Rules overrides access per permission type; missing entries default
	// to AccessMembers.
	Rules map[territory.Permission]Access
}

// AccessFor returns the access rule for the given permission type.
func (p Policy) AccessFor(perm territory.Permission) Access {
	if p.Rules == nil {
		return AccessMembers
	}
	if a, ok := p.Rules[perm]; ok {
		return a
	}
	return AccessMembers
}

// Admits evaluates the rule for a visitor with the given relation to the
// owning territory. Member rank permissions are checked by the caller; this
// only answers the chunk-level question.
func (p Policy) Admits(perm territory.Permission, rel territory.Relation) bool {
	switch p.AccessFor(perm) {
	case AccessEveryone:
		return true
	case AccessNobody:
		return false
	case AccessAllies:
		switch rel {
		case territory.RelationSelf, territory.RelationAlly,
			territory.RelationOverlord, territory.RelationVassal:
			return true
		}
		return false
	default: // AccessMembers
		return rel == territory.RelationSelf
	}
}

// WithRule returns a copy of the policy with one rule replaced.
func (p Policy) WithRule(perm territory.Permission, a Access) Policy {
	rules := make(map[territory.Permission]Access, len(p.Rules)+1)
	for k, v := range p.Rules {
		rules[k] = v
	}
	rules[perm] = a
	p.Rules = rules
	return p
}

package lifecycle

import (
	"paflow/internal/paf/models"
	"paflow/pkg/domain"
	dErrors "paflow/pkg/domain-errors"
)

// Authorizer decides whether an actor may drive a PAF across one edge.
// Authorizers look only at the actor and the PAF; state preconditions are
// checked separately by the transition table.
type Authorizer func(actor domain.ActorContext, p *models.PAF) error

func isCreator(actor domain.ActorContext, p *models.PAF) bool {
	return actor.ActorID == p.CreatorID
}

func isScopeAdmin(actor domain.ActorContext, p *models.PAF) bool {
	return actor.Role == domain.RoleAdmin && actor.ScopeID == p.LicenseeScopeID
}

// creatorOnly permits the PAF's creator.
func creatorOnly(actor domain.ActorContext, p *models.PAF) error {
	if isCreator(actor, p) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the PAF creator may perform this action")
}

// assignedAgentOnly permits only the agent recorded on the PAF. A PAF with no
// agent has no actor that can take an agent edge.
func assignedAgentOnly(actor domain.ActorContext, p *models.PAF) error {
	if p.HasAgent() && actor.ActorID == p.AgentID {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the assigned agent may perform this action")
}

// scopeAdminOnly permits administrators of the PAF's licensee scope.
func scopeAdminOnly(actor domain.ActorContext, p *models.PAF) error {
	if isScopeAdmin(actor, p) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "administrator access for this licensee is required")
}

// creatorOrScopeAdmin permits the creator or a licensee administrator.
func creatorOrScopeAdmin(actor domain.ActorContext, p *models.PAF) error {
	if isCreator(actor, p) || isScopeAdmin(actor, p) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the PAF creator or a licensee administrator may perform this action")
}

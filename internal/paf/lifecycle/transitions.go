package lifecycle

import (
	"paflow/internal/paf/models"
	dErrors "paflow/pkg/domain-errors"
)

// Edge names one transition in the PAF workflow. Edge values double as the
// action segment of the HTTP route and the label on transition metrics.
type Edge string

const (
	EdgeSubmit           Edge = "submit"
	EdgeAgentApprove     Edge = "agent-approve"
	EdgeListOwnerApprove Edge = "list-owner-approve"
	EdgeUSPSApprove      Edge = "usps-approve"
	EdgeLicenseeValidate Edge = "licensee-validate"
	EdgeReject           Edge = "reject"
	EdgeRenew            Edge = "renew"
)

// Transition is one row of the workflow table. Every edge is driven through
// the same executor; rows differ only in their source states, target
// resolution and authorization rule.
type Transition struct {
	Edge      Edge
	AllowFrom []models.Status
	Authorize Authorizer

	// Next resolves the target status. Most edges have a fixed target;
	// submit and list-owner-approve branch on the PAF itself.
	Next func(p *models.PAF) models.Status
}

// Allows reports whether the edge may be taken from the given status.
func (t Transition) Allows(s models.Status) bool {
	for _, from := range t.AllowFrom {
		if from == s {
			return true
		}
	}
	return false
}

func fixed(s models.Status) func(*models.PAF) models.Status {
	return func(*models.PAF) models.Status { return s }
}

var pendingStatuses = []models.Status{
	models.StatusPendingAgentApproval,
	models.StatusPendingListOwnerApproval,
	models.StatusPendingUSPSApprovalForeign,
	models.StatusPendingLicenseeValidation,
}

var transitions = map[Edge]Transition{
	EdgeSubmit: {
		Edge:      EdgeSubmit,
		AllowFrom: []models.Status{models.StatusInitial},
		Authorize: creatorOnly,
		Next: func(p *models.PAF) models.Status {
			if p.HasAgent() {
				return models.StatusPendingAgentApproval
			}
			return models.StatusPendingListOwnerApproval
		},
	},
	EdgeAgentApprove: {
		Edge:      EdgeAgentApprove,
		AllowFrom: []models.Status{models.StatusPendingAgentApproval},
		Authorize: assignedAgentOnly,
		Next:      fixed(models.StatusPendingListOwnerApproval),
	},
	EdgeListOwnerApprove: {
		Edge:      EdgeListOwnerApprove,
		AllowFrom: []models.Status{models.StatusPendingListOwnerApproval},
		Authorize: creatorOnly,
		Next: func(p *models.PAF) models.Status {
			if p.Jurisdiction == models.JurisdictionForeign {
				return models.StatusPendingUSPSApprovalForeign
			}
			return models.StatusPendingLicenseeValidation
		},
	},
	EdgeUSPSApprove: {
		Edge:      EdgeUSPSApprove,
		AllowFrom: []models.Status{models.StatusPendingUSPSApprovalForeign},
		Authorize: scopeAdminOnly,
		Next:      fixed(models.StatusPendingLicenseeValidation),
	},
	EdgeLicenseeValidate: {
		Edge:      EdgeLicenseeValidate,
		AllowFrom: []models.Status{models.StatusPendingLicenseeValidation},
		Authorize: scopeAdminOnly,
		Next:      fixed(models.StatusValidatedActive),
	},
	EdgeReject: {
		Edge:      EdgeReject,
		AllowFrom: pendingStatuses,
		Authorize: scopeAdminOnly,
		Next:      fixed(models.StatusRejected),
	},
	EdgeRenew: {
		Edge:      EdgeRenew,
		AllowFrom: []models.Status{models.StatusValidatedActive},
		Authorize: creatorOrScopeAdmin,
		Next:      fixed(models.StatusPendingLicenseeValidation),
	},
}

// Resolve looks an edge up in the transition table.
func Resolve(edge Edge) (Transition, error) {
	t, ok := transitions[edge]
	if !ok {
		return Transition{}, dErrors.New(dErrors.CodeBadRequest, "unknown transition "+string(edge))
	}
	return t, nil
}

// Edges lists the defined edges in workflow order.
func Edges() []Edge {
	return []Edge{
		EdgeSubmit,
		EdgeAgentApprove,
		EdgeListOwnerApprove,
		EdgeUSPSApprove,
		EdgeLicenseeValidate,
		EdgeReject,
		EdgeRenew,
	}
}

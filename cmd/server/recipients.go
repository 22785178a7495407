package main

import (
	"context"
	"log/slog"

	"paflow/internal/account"
	"paflow/internal/paf/models"
)

// partyRecipients resolves transition notification recipients from the
// account directory: the PAF's creator and, when assigned, its agent.
type partyRecipients struct {
	accounts account.Store
	logger   *slog.Logger
}

func newPartyRecipients(accounts account.Store, logger *slog.Logger) *partyRecipients {
	return &partyRecipients{accounts: accounts, logger: logger}
}

func (r *partyRecipients) For(ctx context.Context, p *models.PAF) []string {
	ids := []int64{p.CreatorID}
	if p.HasAgent() {
		ids = append(ids, p.AgentID)
	}

	var addrs []string
	for _, id := range ids {
		acct, err := r.accounts.FindByID(ctx, id)
		if err != nil {
			r.logger.WarnContext(ctx, "recipient lookup failed", "account_id", id, "error", err)
			continue
		}
		addrs = append(addrs, acct.Email)
	}
	return addrs
}

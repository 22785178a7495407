package notify

import (
	"context"
	"fmt"
	"log/slog"

	"paflow/internal/paf/lifecycle"
	"paflow/internal/paf/models"
)

// Mailer delivers one message to one recipient. Implementations must be safe
// for concurrent use.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, text, html string) error
}

// LogMailer writes messages to the log instead of sending them. Used in
// development and tests.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, recipient, subject, text, _ string) error {
	m.Logger.InfoContext(ctx, "mail suppressed",
		"recipient", recipient,
		"subject", subject,
		"body", text)
	return nil
}

// Recipients resolves who should hear about a PAF reaching its current
// status. Kept as an interface so deployments can plug in their account
// directory.
type Recipients interface {
	For(ctx context.Context, p *models.PAF) []string
}

// TransitionNotifier mails the interested parties after a transition commits.
// It satisfies lifecycle.Notifier; failures are logged, never surfaced.
type TransitionNotifier struct {
	mailer     Mailer
	recipients Recipients
	logger     *slog.Logger
}

func NewTransitionNotifier(mailer Mailer, recipients Recipients, logger *slog.Logger) *TransitionNotifier {
	return &TransitionNotifier{mailer: mailer, recipients: recipients, logger: logger}
}

func (n *TransitionNotifier) TransitionCompleted(ctx context.Context, p *models.PAF, edge lifecycle.Edge) {
	subject, text := renderTransition(p, edge)
	for _, recipient := range n.recipients.For(ctx, p) {
		if err := n.mailer.Send(ctx, recipient, subject, text, ""); err != nil {
			n.logger.WarnContext(ctx, "transition notification failed",
				"paf_id", p.ID,
				"edge", edge,
				"recipient", recipient,
				"error", err)
		}
	}
}

func renderTransition(p *models.PAF, edge lifecycle.Edge) (subject, text string) {
	name := p.DisplayIdentifier
	if name == "" {
		name = fmt.Sprintf("PAF #%d", p.ID)
	}
	subject = fmt.Sprintf("%s is now %s", name, p.Status)

	switch edge {
	case lifecycle.EdgeReject:
		text = fmt.Sprintf("%s was rejected. Review the history ledger for the reason and resubmit a corrected form.", name)
	case lifecycle.EdgeLicenseeValidate:
		text = fmt.Sprintf("%s has been validated and is active until %s.", name, p.ExpirationDate.Format("2006-01-02"))
	case lifecycle.EdgeRenew:
		text = fmt.Sprintf("A renewal for %s was started and awaits licensee validation.", name)
	default:
		text = fmt.Sprintf("%s moved to %s and awaits the next approval.", name, p.Status)
	}
	return subject, text
}

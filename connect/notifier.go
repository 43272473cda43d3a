package connect

import (
	"sportrecord/models"

	"go.uber.org/zap"
)

// Notifier is the notification collaborator (email). It is invoked
// fire-and-forget after a state transition; a failure never rolls back the
// permission mutation that preceded it.
type Notifier interface {
	ConnectionConfirmed(requester, recipient *models.User) error
	ConnectionRevoked(a, b *models.User) error
	InviteSent(invite *models.Invite) error
}

// LogNotifier records notification intents in the log. The real email sender
// lives outside this core.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) ConnectionConfirmed(requester, recipient *models.User) error {
	n.log.Info("notify: connection confirmed",
		zap.String("requester", requester.Email),
		zap.String("recipient", recipient.Email))
	return nil
}

func (n *LogNotifier) ConnectionRevoked(a, b *models.User) error {
	n.log.Info("notify: connection revoked",
		zap.String("a", a.Email),
		zap.String("b", b.Email))
	return nil
}

func (n *LogNotifier) InviteSent(invite *models.Invite) error {
	n.log.Info("notify: invite sent",
		zap.String("from", invite.Requester.FullName()),
		zap.String("recipient", invite.Recipient),
		zap.String("recipient_type", string(invite.RecipientType)))
	return nil
}

// Package notify is the worker-side consumer of session events. It currently
// just logs them; a real deployment would push LINE/webhook notifications.
package notify

import (
	"context"

	"github.com/bellafleur/benly/internal/kafka"
	"github.com/sirupsen/logrus"
)

type Notifier struct {
	log *logrus.Logger
}

func NewNotifier(log *logrus.Logger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) Notify(ctx context.Context, event kafka.SessionEvent) error {
	fields := logrus.Fields{
		"type":   event.Type,
		"sid":    event.SID,
		"status": event.Status,
	}
	if event.Type == kafka.EventSuccess {
		fields["ticket_no"] = event.TicketNo
		fields["plate"] = event.Plate
	}
	n.log.WithFields(fields).Info("session event")
	return nil
}

package notify

import (
	"context"
	"log"
)

// LogPublisher is the no-transport fallback: it logs the event and reports
// success. Useful when no broker is configured and in development.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg Message) error {
	log.Printf("notify: event %s kind=%s recipient_role=%s", msg.EventID, msg.Kind, msg.RecipientRole)
	return nil
}

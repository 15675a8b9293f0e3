package memory

import (
	"context"
	"fmt"
	"time"

	"contratto/models"
)

func eventKey(gateway, providerEventID string) string {
	return gateway + "/" + providerEventID
}

func (s EventStore) Record(ctx context.Context, ev *models.WebhookEvent) (bool, error) {
	fresh := false
	err := s.locked(ctx, func() error {
		key := eventKey(ev.Gateway, ev.ProviderEventID)
		if existing, ok := s.st.events[key]; ok {
			fresh = existing.Status != models.WebhookProcessed
			return nil
		}
		s.st.events[key] = *ev
		fresh = true
		return nil
	})
	return fresh, err
}

func (s EventStore) MarkProcessed(ctx context.Context, gateway, providerEventID string, at time.Time) error {
	return s.locked(ctx, func() error {
		key := eventKey(gateway, providerEventID)
		ev, ok := s.st.events[key]
		if !ok {
			return fmt.Errorf("webhook event %s: %w", key, models.ErrNotFound)
		}
		ev.Status = models.WebhookProcessed
		ev.Error = ""
		t := at
		ev.ProcessedAt = &t
		s.st.events[key] = ev
		return nil
	})
}

func (s EventStore) MarkFailed(ctx context.Context, gateway, providerEventID, reason string) error {
	return s.locked(ctx, func() error {
		key := eventKey(gateway, providerEventID)
		ev, ok := s.st.events[key]
		if !ok || ev.Status == models.WebhookProcessed {
			return nil
		}
		ev.Status = models.WebhookFailed
		ev.Error = reason
		s.st.events[key] = ev
		return nil
	})
}

// Event returns the stored delivery record, if any.
func (s *Store) Event(gateway, providerEventID string) (models.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.st.events[eventKey(gateway, providerEventID)]
	return ev, ok
}

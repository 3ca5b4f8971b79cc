package checklist

import (
	"encoding/json"

	"github.com/checklist-api/project/internal/contracts"
	"github.com/checklist-api/project/internal/sharding"
)

type PublishFunc func(subject string, payload []byte) error

// publish emits a domain event after a successful write. Failures are logged
// and counted; the write has already happened and is not undone.
func (s *Service) publish(eventType string, c Checklist, itemIDs []string, templateID string) {
	if s.Publish == nil {
		return
	}
	evt := contracts.ChecklistEvent{
		EventID:      s.NewID(),
		EventType:    eventType,
		ChecklistID:  c.ID,
		ObjectDomain: c.ObjectDomain,
		ObjectID:     c.ObjectID,
		TemplateID:   templateID,
		ItemIDs:      itemIDs,
		Due:          c.Due,
		OccurredAt:   s.Now(),
		ShardID:      sharding.ObjectShardID(c.ObjectDomain, c.ObjectID),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.Log.Error().Err(err).Str("event_type", eventType).Msg("encoding event")
		return
	}
	subject := sharding.EventSubject(c.ObjectDomain, c.ObjectID)
	if err := s.Publish(subject, payload); err != nil {
		eventPublishFailuresTotal.WithLabelValues(eventType).Inc()
		s.Log.Warn().Err(err).
			Str("event_type", eventType).
			Str("subject", subject).
			Str("checklist_id", c.ID).
			Msg("publishing event")
	}
}

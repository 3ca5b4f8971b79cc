package contracts

import "time"

const (
	EventChecklistCreated          = "checklist.created"
	EventChecklistUpdated          = "checklist.updated"
	EventChecklistDeleted          = "checklist.deleted"
	EventChecklistTemplateAssigned = "checklist.template_assigned"
	EventItemCreated               = "item.created"
	EventItemUpdated               = "item.updated"
	EventItemDeleted               = "item.deleted"
	EventItemCompleted             = "item.completed"
	EventItemIncompleted           = "item.incompleted"
)

// ChecklistEvent is published to JetStream after a checklist or its items change.
type ChecklistEvent struct {
	EventID      string     `json:"event_id"`
	EventType    string     `json:"event_type"`
	ChecklistID  string     `json:"checklist_id"`
	ObjectDomain string     `json:"object_domain"`
	ObjectID     string     `json:"object_id"`
	TemplateID   string     `json:"template_id,omitempty"`
	ItemIDs      []string   `json:"item_ids,omitempty"`
	Due          *time.Time `json:"due,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
	ShardID      int        `json:"shard_id"`
}

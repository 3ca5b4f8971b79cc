package checklist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/checklist-api/project/internal/contracts"
	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
)

type Service struct {
	Repo    Repository
	Publish PublishFunc
	Log     zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

func NewService(repo Repository, publish PublishFunc, log zerolog.Logger) *Service {
	return &Service{
		Repo:    repo,
		Publish: publish,
		Log:     log,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

func required(value, field string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrValidation, field)
	}
	return value, nil
}

// NewChecklist describes a checklist to create. Each entry of Items becomes
// an item sharing the checklist's due, urgency and task id.
type NewChecklist struct {
	ObjectDomain string
	ObjectID     string
	Description  string
	Due          *time.Time
	Urgency      *int
	TaskID       *int
	Items        []string
}

func (s *Service) CreateChecklist(ctx context.Context, in NewChecklist) (Checklist, error) {
	var err error
	if in.ObjectDomain, err = required(in.ObjectDomain, "object_domain"); err != nil {
		return Checklist{}, err
	}
	if in.ObjectID, err = required(in.ObjectID, "object_id"); err != nil {
		return Checklist{}, err
	}
	if in.Description, err = required(in.Description, "description"); err != nil {
		return Checklist{}, err
	}

	now := s.Now()
	c := Checklist{
		ID:           s.NewID(),
		ObjectDomain: in.ObjectDomain,
		ObjectID:     in.ObjectID,
		Description:  in.Description,
		Due:          in.Due,
		Urgency:      in.Urgency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, description := range in.Items {
		description, err := required(description, "items")
		if err != nil {
			return Checklist{}, err
		}
		c.Items = append(c.Items, Item{
			ID:          s.NewID(),
			ChecklistID: c.ID,
			Description: description,
			Due:         in.Due,
			Urgency:     in.Urgency,
			TaskID:      in.TaskID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := s.Repo.CreateChecklist(ctx, c); err != nil {
		return Checklist{}, fmt.Errorf("creating checklist: %w", err)
	}
	itemsCreatedTotal.WithLabelValues("checklist").Add(float64(len(c.Items)))
	s.publish(contracts.EventChecklistCreated, c, c.ItemIDs(), "")
	return c, nil
}

func (s *Service) GetChecklist(ctx context.Context, id string) (Checklist, error) {
	c, err := s.Repo.GetChecklist(ctx, id)
	if err != nil {
		return Checklist{}, fmt.Errorf("loading checklist %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) ListChecklists(ctx context.Context, page Page) ([]Checklist, int, error) {
	total, err := s.Repo.CountChecklists(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting checklists: %w", err)
	}
	rows, err := s.Repo.ListChecklists(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("listing checklists: %w", err)
	}
	return rows, total, nil
}

// ChecklistChanges replaces the checklist's identifying fields. Completion
// fields are left alone when nil.
type ChecklistChanges struct {
	ObjectDomain string
	ObjectID     string
	Description  string
	IsCompleted  *bool
	CompletedAt  *time.Time
}

func (s *Service) UpdateChecklist(ctx context.Context, id string, in ChecklistChanges) (Checklist, error) {
	var err error
	if in.ObjectDomain, err = required(in.ObjectDomain, "object_domain"); err != nil {
		return Checklist{}, err
	}
	if in.ObjectID, err = required(in.ObjectID, "object_id"); err != nil {
		return Checklist{}, err
	}
	if in.Description, err = required(in.Description, "description"); err != nil {
		return Checklist{}, err
	}

	current, err := s.GetChecklist(ctx, id)
	if err != nil {
		return Checklist{}, err
	}

	now := s.Now()
	patch := ChecklistPatch{
		ObjectDomain: in.ObjectDomain,
		ObjectID:     in.ObjectID,
		Description:  in.Description,
		IsCompleted:  current.IsCompleted,
		CompletedAt:  current.CompletedAt,
		UpdatedAt:    now,
	}
	if in.IsCompleted != nil {
		patch.IsCompleted = *in.IsCompleted
		switch {
		case !patch.IsCompleted:
			patch.CompletedAt = nil
		case patch.CompletedAt == nil:
			patch.CompletedAt = &now
		}
	}
	if in.CompletedAt != nil {
		patch.CompletedAt = in.CompletedAt
	}

	if err := s.Repo.UpdateChecklist(ctx, id, patch); err != nil {
		return Checklist{}, fmt.Errorf("updating checklist %s: %w", id, err)
	}
	updated, err := s.GetChecklist(ctx, id)
	if err != nil {
		return Checklist{}, err
	}
	s.publish(contracts.EventChecklistUpdated, updated, nil, "")
	return updated, nil
}

// DeleteChecklist removes the checklist together with every item it owns.
func (s *Service) DeleteChecklist(ctx context.Context, id string) error {
	c, err := s.GetChecklist(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteChecklist(ctx, id); err != nil {
		return fmt.Errorf("deleting checklist %s: %w", id, err)
	}
	s.publish(contracts.EventChecklistDeleted, c, c.ItemIDs(), "")
	return nil
}

type NewItem struct {
	Description string
	Due         *time.Time
	Urgency     *int
	AssigneeID  *string
}

// CreateItem appends a new item to the checklist and returns both.
func (s *Service) CreateItem(ctx context.Context, checklistID string, in NewItem) (Checklist, Item, error) {
	description, err := required(in.Description, "description")
	if err != nil {
		return Checklist{}, Item{}, err
	}
	c, err := s.GetChecklist(ctx, checklistID)
	if err != nil {
		return Checklist{}, Item{}, err
	}

	now := s.Now()
	item := Item{
		ID:          s.NewID(),
		ChecklistID: c.ID,
		Description: description,
		Due:         in.Due,
		Urgency:     in.Urgency,
		AssigneeID:  in.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.AppendItems(ctx, c.ID, nil, []Item{item}, now); err != nil {
		return Checklist{}, Item{}, fmt.Errorf("appending item to checklist %s: %w", c.ID, err)
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = now

	itemsCreatedTotal.WithLabelValues("item").Inc()
	s.publish(contracts.EventItemCreated, c, []string{item.ID}, "")
	return c, item, nil
}

// GetItem returns the item together with its checklist. An item that exists
// but belongs to another checklist is reported as not found.
func (s *Service) GetItem(ctx context.Context, checklistID, itemID string) (Checklist, Item, error) {
	c, err := s.GetChecklist(ctx, checklistID)
	if err != nil {
		return Checklist{}, Item{}, err
	}
	item, err := s.Repo.GetItem(ctx, itemID)
	if err != nil {
		return Checklist{}, Item{}, fmt.Errorf("loading item %s: %w", itemID, err)
	}
	if item.ChecklistID != c.ID {
		return Checklist{}, Item{}, fmt.Errorf("item %s in checklist %s: %w", itemID, checklistID, ErrNotFound)
	}
	return c, item, nil
}

// ItemChanges is a partial item update; nil fields are left unchanged.
type ItemChanges struct {
	Description *string
	Due         *time.Time
	Urgency     *int
	AssigneeID  *string
}

func (ch ItemChanges) apply(item *Item) error {
	if ch.Description != nil {
		description, err := required(*ch.Description, "description")
		if err != nil {
			return err
		}
		item.Description = description
	}
	if ch.Due != nil {
		item.Due = ch.Due
	}
	if ch.Urgency != nil {
		item.Urgency = ch.Urgency
	}
	if ch.AssigneeID != nil {
		item.AssigneeID = ch.AssigneeID
	}
	return nil
}

func (s *Service) UpdateItem(ctx context.Context, checklistID, itemID string, in ItemChanges) (Checklist, Item, error) {
	c, item, err := s.GetItem(ctx, checklistID, itemID)
	if err != nil {
		return Checklist{}, Item{}, err
	}
	if err := in.apply(&item); err != nil {
		return Checklist{}, Item{}, err
	}
	item.UpdatedAt = s.Now()
	if err := s.Repo.SaveItem(ctx, item); err != nil {
		return Checklist{}, Item{}, fmt.Errorf("saving item %s: %w", itemID, err)
	}
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i] = item
		}
	}
	s.publish(contracts.EventItemUpdated, c, []string{item.ID}, "")
	return c, item, nil
}

// DeleteItem removes the item, which also detaches it from its checklist.
func (s *Service) DeleteItem(ctx context.Context, checklistID, itemID string) error {
	c, item, err := s.GetItem(ctx, checklistID, itemID)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteItem(ctx, item.ID); err != nil {
		return fmt.Errorf("deleting item %s: %w", itemID, err)
	}
	s.publish(contracts.EventItemDeleted, c, []string{item.ID}, "")
	return nil
}

const (
	BulkActionUpdate = "update"
	BulkActionDelete = "delete"
)

type BulkItemChange struct {
	ID      string
	Action  string
	Changes ItemChanges
}

// BulkItemResult reports one entry of a bulk request with an HTTP status.
type BulkItemResult struct {
	ID     string
	Action string
	Status int
}

// BulkUpdateItems applies each change independently. Entries naming items
// outside the checklist report 404; storage failures abort the batch.
func (s *Service) BulkUpdateItems(ctx context.Context, checklistID string, changes []BulkItemChange) ([]BulkItemResult, error) {
	c, err := s.GetChecklist(ctx, checklistID)
	if err != nil {
		return nil, err
	}

	results := make([]BulkItemResult, 0, len(changes))
	for _, change := range changes {
		action := strings.ToLower(strings.TrimSpace(change.Action))
		if action == "" {
			action = BulkActionUpdate
		}
		result := BulkItemResult{ID: change.ID, Action: change.Action}

		item, err := s.Repo.GetItem(ctx, change.ID)
		switch {
		case errors.Is(err, ErrNotFound) || (err == nil && item.ChecklistID != c.ID):
			result.Status = http.StatusNotFound
			results = append(results, result)
			continue
		case err != nil:
			return nil, fmt.Errorf("loading item %s: %w", change.ID, err)
		}

		switch action {
		case BulkActionUpdate:
			if err := change.Changes.apply(&item); err != nil {
				result.Status = http.StatusUnprocessableEntity
				break
			}
			item.UpdatedAt = s.Now()
			if err := s.Repo.SaveItem(ctx, item); err != nil {
				return nil, fmt.Errorf("saving item %s: %w", item.ID, err)
			}
			result.Status = http.StatusOK
			s.publish(contracts.EventItemUpdated, c, []string{item.ID}, "")
		case BulkActionDelete:
			if err := s.Repo.DeleteItem(ctx, item.ID); err != nil {
				return nil, fmt.Errorf("deleting item %s: %w", item.ID, err)
			}
			result.Status = http.StatusOK
			s.publish(contracts.EventItemDeleted, c, []string{item.ID}, "")
		default:
			result.Status = http.StatusUnprocessableEntity
		}
		results = append(results, result)
	}
	return results, nil
}

type CompletionResult struct {
	ItemID      string
	ChecklistID string
	IsCompleted bool
}

// SetCompletion marks every listed item complete (or incomplete).
func (s *Service) SetCompletion(ctx context.Context, itemIDs []string, completed bool) ([]CompletionResult, error) {
	eventType := contracts.EventItemIncompleted
	if completed {
		eventType = contracts.EventItemCompleted
	}

	checklists := map[string]Checklist{}
	results := make([]CompletionResult, 0, len(itemIDs))
	for _, raw := range itemIDs {
		itemID, err := required(raw, "item_id")
		if err != nil {
			return nil, err
		}
		item, err := s.Repo.GetItem(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("loading item %s: %w", itemID, err)
		}

		now := s.Now()
		item.IsCompleted = completed
		item.CompletedAt = nil
		if completed {
			item.CompletedAt = &now
		}
		item.UpdatedAt = now
		if err := s.Repo.SaveItem(ctx, item); err != nil {
			return nil, fmt.Errorf("saving item %s: %w", itemID, err)
		}
		results = append(results, CompletionResult{
			ItemID:      item.ID,
			ChecklistID: item.ChecklistID,
			IsCompleted: item.IsCompleted,
		})

		c, ok := checklists[item.ChecklistID]
		if !ok {
			if c, err = s.Repo.GetChecklist(ctx, item.ChecklistID); err != nil {
				s.Log.Warn().Err(err).Str("item_id", item.ID).Msg("loading checklist for event")
				continue
			}
			checklists[c.ID] = c
		}
		s.publish(eventType, c, []string{item.ID}, "")
	}
	return results, nil
}

func (s *Service) ListItems(ctx context.Context, page Page) ([]Item, int, error) {
	total, err := s.Repo.CountItems(ctx, ItemFilter{})
	if err != nil {
		return nil, 0, fmt.Errorf("counting items: %w", err)
	}
	rows, err := s.Repo.ListItems(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	return rows, total, nil
}

// TemplateSpec carries every mutable field of a template.
type TemplateSpec struct {
	Name      string
	Checklist ChecklistRule
	Items     []ItemRule
}

func (spec *TemplateSpec) validate() error {
	var err error
	if spec.Name, err = required(spec.Name, "name"); err != nil {
		return err
	}
	for i := range spec.Items {
		field := fmt.Sprintf("items[%d].description", i)
		if spec.Items[i].Description, err = required(spec.Items[i].Description, field); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CreateTemplate(ctx context.Context, spec TemplateSpec) (Template, error) {
	if err := spec.validate(); err != nil {
		return Template{}, err
	}
	now := s.Now()
	t := Template{
		ID:        s.NewID(),
		Name:      spec.Name,
		Checklist: spec.Checklist,
		Items:     spec.Items,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.CreateTemplate(ctx, t); err != nil {
		return Template{}, fmt.Errorf("creating template: %w", err)
	}
	return t, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	t, err := s.Repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, fmt.Errorf("loading template %s: %w", id, err)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, page Page) ([]Template, int, error) {
	total, err := s.Repo.CountTemplates(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting templates: %w", err)
	}
	rows, err := s.Repo.ListTemplates(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("listing templates: %w", err)
	}
	return rows, total, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, spec TemplateSpec) (Template, error) {
	if err := spec.validate(); err != nil {
		return Template{}, err
	}
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	t.Name = spec.Name
	t.Checklist = spec.Checklist
	t.Items = spec.Items
	t.UpdatedAt = s.Now()
	if err := s.Repo.SaveTemplate(ctx, t); err != nil {
		return Template{}, fmt.Errorf("saving template %s: %w", id, err)
	}
	return t, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.Repo.DeleteTemplate(ctx, id); err != nil {
		return fmt.Errorf("deleting template %s: %w", id, err)
	}
	return nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}

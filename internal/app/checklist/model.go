package checklist

import (
	"errors"
	"time"

	"github.com/checklist-api/project/internal/app/cascade"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("required parameter not provided")
)

type Checklist struct {
	ID           string
	ObjectDomain string
	ObjectID     string
	Description  string
	IsCompleted  bool
	CompletedAt  *time.Time
	UpdatedBy    *string
	Due          *time.Time
	Urgency      *int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Items is ordered by insertion; repositories always load it.
	Items []Item
}

func (c Checklist) ItemIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (c Checklist) lastItemDue() *time.Time {
	if len(c.Items) == 0 {
		return nil
	}
	return c.Items[len(c.Items)-1].Due
}

type Item struct {
	ID          string
	ChecklistID string
	Description string
	IsCompleted bool
	CompletedAt *time.Time
	Due         *time.Time
	Urgency     *int
	UpdatedBy   *string
	AssigneeID  *string
	TaskID      *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChecklistRule is the checklist part of a template. It is stored as a
// document, so the json tags double as the storage format.
type ChecklistRule struct {
	Description string     `json:"description,omitempty"`
	DueInterval int        `json:"due_interval"`
	DueUnit     string     `json:"due_unit"`
	Due         *time.Time `json:"due,omitempty"`
}

func (r ChecklistRule) Rule() cascade.Rule {
	return cascade.Rule{Interval: r.DueInterval, Unit: cascade.Unit(r.DueUnit), Due: r.Due}
}

type ItemRule struct {
	Description string     `json:"description"`
	Urgency     *int       `json:"urgency,omitempty"`
	DueInterval int        `json:"due_interval"`
	DueUnit     string     `json:"due_unit"`
	Due         *time.Time `json:"due,omitempty"`
}

func (r ItemRule) Rule() cascade.Rule {
	return cascade.Rule{Interval: r.DueInterval, Unit: cascade.Unit(r.DueUnit), Due: r.Due}
}

type Template struct {
	ID        string
	Name      string
	Checklist ChecklistRule
	Items     []ItemRule
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page is an offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// ItemFilter narrows item counts. Due bounds are half-open: [DueFrom, DueBefore).
type ItemFilter struct {
	ObjectDomain string
	DueFrom      *time.Time
	DueBefore    *time.Time
}

// ChecklistPatch carries the final values of the mutable scalar fields.
// Due and the item list are deliberately absent: only item operations and
// template assignment touch them.
type ChecklistPatch struct {
	ObjectDomain string
	ObjectID     string
	Description  string
	IsCompleted  bool
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

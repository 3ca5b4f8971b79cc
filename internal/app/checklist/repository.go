package checklist

import (
	"context"
	"time"
)

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error

	CreateChecklist(ctx context.Context, c Checklist) error
	GetChecklist(ctx context.Context, id string) (Checklist, error)
	ListChecklists(ctx context.Context, page Page) ([]Checklist, error)
	CountChecklists(ctx context.Context) (int, error)
	FindChecklistsByObject(ctx context.Context, objectDomain, objectID string) ([]Checklist, error)
	UpdateChecklist(ctx context.Context, id string, patch ChecklistPatch) error
	DeleteChecklist(ctx context.Context, id string) error

	// AppendItems inserts items at the end of the checklist's item list and,
	// when due is non-nil, sets the checklist's due date. Both happen in one
	// transaction; existing items are never rewritten.
	AppendItems(ctx context.Context, checklistID string, due *time.Time, items []Item, now time.Time) error

	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, page Page) ([]Item, error)
	CountItems(ctx context.Context, filter ItemFilter) (int, error)
	SaveItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id string) error

	CreateTemplate(ctx context.Context, t Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTemplates(ctx context.Context, page Page) ([]Template, error)
	CountTemplates(ctx context.Context) (int, error)
	SaveTemplate(ctx context.Context, t Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

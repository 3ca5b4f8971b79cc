package checklist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createChecklistsSQL = `
CREATE TABLE IF NOT EXISTS checklists (
  id text PRIMARY KEY,
  object_domain text NOT NULL,
  object_id text NOT NULL,
  description text NOT NULL,
  is_completed boolean NOT NULL DEFAULT false,
  completed_at timestamptz,
  updated_by text,
  due timestamptz,
  urgency integer,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createChecklistsObjectIndexSQL = `
CREATE INDEX IF NOT EXISTS checklists_object_idx
ON checklists (object_domain, object_id)`

const createChecklistItemsSQL = `
CREATE TABLE IF NOT EXISTS checklist_items (
  seq bigint GENERATED ALWAYS AS IDENTITY,
  id text PRIMARY KEY,
  checklist_id text NOT NULL REFERENCES checklists(id) ON DELETE CASCADE,
  description text NOT NULL,
  is_completed boolean NOT NULL DEFAULT false,
  completed_at timestamptz,
  due timestamptz,
  urgency integer,
  updated_by text,
  assignee_id text,
  task_id integer,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createChecklistItemsOrderIndexSQL = `
CREATE INDEX IF NOT EXISTS checklist_items_order_idx
ON checklist_items (checklist_id, seq)`

const createChecklistItemsDueIndexSQL = `
CREATE INDEX IF NOT EXISTS checklist_items_due_idx
ON checklist_items (due)`

const createTemplatesSQL = `
CREATE TABLE IF NOT EXISTS checklist_templates (
  id text PRIMARY KEY,
  name text NOT NULL,
  checklist jsonb NOT NULL,
  items jsonb NOT NULL DEFAULT '[]'::jsonb,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const checklistColumns = `id, object_domain, object_id, description, is_completed, completed_at,
       updated_by, due, urgency, created_at, updated_at`

const itemColumns = `id, checklist_id, description, is_completed, completed_at, due,
       urgency, updated_by, assignee_id, task_id, created_at, updated_at`

const insertItemSQL = `
INSERT INTO checklist_items (
  id, checklist_id, description, is_completed, completed_at, due,
  urgency, updated_by, assignee_id, task_id, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		createChecklistsSQL,
		createChecklistsObjectIndexSQL,
		createChecklistItemsSQL,
		createChecklistItemsOrderIndexSQL,
		createChecklistItemsDueIndexSQL,
		createTemplatesSQL,
	} {
		if _, err := r.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

func (r *PostgresRepository) CreateChecklist(ctx context.Context, c Checklist) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO checklists (
		   id, object_domain, object_id, description, is_completed, completed_at,
		   updated_by, due, urgency, created_at, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ObjectDomain, c.ObjectID, c.Description, c.IsCompleted, c.CompletedAt,
		c.UpdatedBy, c.Due, c.Urgency, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return err
	}
	if err := insertItemsTx(ctx, tx, c.Items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertItemsTx(ctx context.Context, tx pgx.Tx, items []Item) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, insertItemSQL,
			item.ID, item.ChecklistID, item.Description, item.IsCompleted, item.CompletedAt, item.Due,
			item.Urgency, item.UpdatedBy, item.AssigneeID, item.TaskID, item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetChecklist(ctx context.Context, id string) (Checklist, error) {
	checklists, err := r.queryChecklists(ctx,
		`SELECT `+checklistColumns+` FROM checklists WHERE id = $1`, id)
	if err != nil {
		return Checklist{}, err
	}
	if len(checklists) == 0 {
		return Checklist{}, ErrNotFound
	}
	return checklists[0], nil
}

func (r *PostgresRepository) ListChecklists(ctx context.Context, page Page) ([]Checklist, error) {
	return r.queryChecklists(ctx,
		`SELECT `+checklistColumns+`
		 FROM checklists
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
}

func (r *PostgresRepository) CountChecklists(ctx context.Context) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM checklists`).Scan(&n)
	return n, err
}

func (r *PostgresRepository) FindChecklistsByObject(ctx context.Context, objectDomain, objectID string) ([]Checklist, error) {
	return r.queryChecklists(ctx,
		`SELECT `+checklistColumns+`
		 FROM checklists
		 WHERE object_domain = $1 AND object_id = $2
		 ORDER BY created_at, id`,
		objectDomain, objectID,
	)
}

func (r *PostgresRepository) queryChecklists(ctx context.Context, sql string, args ...any) ([]Checklist, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checklists := make([]Checklist, 0)
	for rows.Next() {
		var c Checklist
		if err := rows.Scan(
			&c.ID,
			&c.ObjectDomain,
			&c.ObjectID,
			&c.Description,
			&c.IsCompleted,
			&c.CompletedAt,
			&c.UpdatedBy,
			&c.Due,
			&c.Urgency,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		checklists = append(checklists, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(checklists) == 0 {
		return checklists, nil
	}

	ids := make([]string, 0, len(checklists))
	for _, c := range checklists {
		ids = append(ids, c.ID)
	}
	items, err := queryItems(ctx, r.Pool,
		`SELECT `+itemColumns+`
		 FROM checklist_items
		 WHERE checklist_id = ANY($1)
		 ORDER BY seq`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	byChecklist := make(map[string][]Item, len(checklists))
	for _, item := range items {
		byChecklist[item.ChecklistID] = append(byChecklist[item.ChecklistID], item)
	}
	for i := range checklists {
		checklists[i].Items = byChecklist[checklists[i].ID]
	}
	return checklists, nil
}

func queryItems(ctx context.Context, q pgQuerier, sql string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID,
			&it.ChecklistID,
			&it.Description,
			&it.IsCompleted,
			&it.CompletedAt,
			&it.Due,
			&it.Urgency,
			&it.UpdatedBy,
			&it.AssigneeID,
			&it.TaskID,
			&it.CreatedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresRepository) UpdateChecklist(ctx context.Context, id string, patch ChecklistPatch) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE checklists
		 SET object_domain = $2,
		     object_id = $3,
		     description = $4,
		     is_completed = $5,
		     completed_at = $6,
		     updated_at = $7
		 WHERE id = $1`,
		id, patch.ObjectDomain, patch.ObjectID, patch.Description,
		patch.IsCompleted, patch.CompletedAt, patch.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteChecklist(ctx context.Context, id string) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx, `DELETE FROM checklists WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM checklist_items WHERE checklist_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) AppendItems(ctx context.Context, checklistID string, due *time.Time, items []Item, now time.Time) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// The row update takes the checklist's row lock, so concurrent appends to
	// the same checklist queue up behind each other instead of interleaving.
	res, err := tx.Exec(ctx,
		`UPDATE checklists
		 SET due = COALESCE($2, due),
		     updated_at = $3
		 WHERE id = $1`,
		checklistID, due, now,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := insertItemsTx(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) GetItem(ctx context.Context, id string) (Item, error) {
	items, err := queryItems(ctx, r.Pool,
		`SELECT `+itemColumns+` FROM checklist_items WHERE id = $1`, id)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, ErrNotFound
	}
	return items[0], nil
}

func (r *PostgresRepository) ListItems(ctx context.Context, page Page) ([]Item, error) {
	return queryItems(ctx, r.Pool,
		`SELECT `+itemColumns+`
		 FROM checklist_items
		 ORDER BY seq
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
}

func (r *PostgresRepository) CountItems(ctx context.Context, filter ItemFilter) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT count(*) FROM checklist_items i`)
	args := make([]any, 0, 3)
	conds := make([]string, 0, 3)
	if filter.ObjectDomain != "" {
		sb.WriteString(` INNER JOIN checklists c ON c.id = i.checklist_id`)
		args = append(args, filter.ObjectDomain)
		conds = append(conds, "c.object_domain = $"+strconv.Itoa(len(args)))
	}
	if filter.DueFrom != nil {
		args = append(args, *filter.DueFrom)
		conds = append(conds, "i.due >= $"+strconv.Itoa(len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		conds = append(conds, "i.due < $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	var n int
	err := r.Pool.QueryRow(ctx, sb.String(), args...).Scan(&n)
	return n, err
}

func (r *PostgresRepository) SaveItem(ctx context.Context, item Item) error {
	res, err := r.Pool.Exec(ctx,
		`UPDATE checklist_items
		 SET description = $2,
		     is_completed = $3,
		     completed_at = $4,
		     due = $5,
		     urgency = $6,
		     updated_by = $7,
		     assignee_id = $8,
		     task_id = $9,
		     updated_at = $10
		 WHERE id = $1`,
		item.ID, item.Description, item.IsCompleted, item.CompletedAt, item.Due,
		item.Urgency, item.UpdatedBy, item.AssigneeID, item.TaskID, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteItem(ctx context.Context, id string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM checklist_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateTemplate(ctx context.Context, t Template) error {
	checklistDoc, itemsDoc, err := encodeTemplateDocs(t)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx,
		`INSERT INTO checklist_templates (id, name, checklist, items, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, checklistDoc, itemsDoc, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) GetTemplate(ctx context.Context, id string) (Template, error) {
	templates, err := r.queryTemplates(ctx,
		`SELECT id, name, checklist, items, created_at, updated_at
		 FROM checklist_templates
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return Template{}, err
	}
	if len(templates) == 0 {
		return Template{}, ErrNotFound
	}
	return templates[0], nil
}

func (r *PostgresRepository) ListTemplates(ctx context.Context, page Page) ([]Template, error) {
	return r.queryTemplates(ctx,
		`SELECT id, name, checklist, items, created_at, updated_at
		 FROM checklist_templates
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
}

func (r *PostgresRepository) queryTemplates(ctx context.Context, sql string, args ...any) ([]Template, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		var (
			t             Template
			checklistDoc  []byte
			itemsDocument []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &checklistDoc, &itemsDocument, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeTemplateDocs(&t, checklistDoc, itemsDocument); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *PostgresRepository) CountTemplates(ctx context.Context) (int, error) {
	var n int
	err := r.Pool.QueryRow(ctx, `SELECT count(*) FROM checklist_templates`).Scan(&n)
	return n, err
}

func (r *PostgresRepository) SaveTemplate(ctx context.Context, t Template) error {
	checklistDoc, itemsDoc, err := encodeTemplateDocs(t)
	if err != nil {
		return err
	}
	res, err := r.Pool.Exec(ctx,
		`UPDATE checklist_templates
		 SET name = $2, checklist = $3, items = $4, updated_at = $5
		 WHERE id = $1`,
		t.ID, t.Name, checklistDoc, itemsDoc, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM checklist_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeTemplateDocs(t Template) (string, string, error) {
	checklistDoc, err := json.Marshal(t.Checklist)
	if err != nil {
		return "", "", fmt.Errorf("encode template checklist: %w", err)
	}
	items := t.Items
	if items == nil {
		items = []ItemRule{}
	}
	itemsDoc, err := json.Marshal(items)
	if err != nil {
		return "", "", fmt.Errorf("encode template items: %w", err)
	}
	return string(checklistDoc), string(itemsDoc), nil
}

func decodeTemplateDocs(t *Template, checklistDoc, itemsDoc []byte) error {
	if err := json.Unmarshal(checklistDoc, &t.Checklist); err != nil {
		return fmt.Errorf("decode template %s checklist: %w", t.ID, err)
	}
	if err := json.Unmarshal(itemsDoc, &t.Items); err != nil {
		return fmt.Errorf("decode template %s items: %w", t.ID, err)
	}
	return nil
}
